package roads

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"hexhold/server/internal/hexgrid"
)

// ErrCorruptEncoding is returned when a stored blob does not match its count prefix.
var ErrCorruptEncoding = errors.New("roads: corrupt encoding")

// Blobs are a little-endian uint32 element count followed by the elements:
// float64 pairs for points and int32 pairs for cells.

func EncodePoints(points []hexgrid.Vec2) []byte {
	buf := make([]byte, 4+16*len(points))
	binary.LittleEndian.PutUint32(buf, uint32(len(points)))
	off := 4
	for _, p := range points {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p.X))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(p.Y))
		off += 16
	}
	return buf
}

func DecodePoints(data []byte) ([]hexgrid.Vec2, error) {
	n, err := countPrefix(data, 16)
	if err != nil {
		return nil, err
	}
	points := make([]hexgrid.Vec2, n)
	off := 4
	for i := range points {
		points[i] = hexgrid.Vec2{
			X: math.Float64frombits(binary.LittleEndian.Uint64(data[off:])),
			Y: math.Float64frombits(binary.LittleEndian.Uint64(data[off+8:])),
		}
		off += 16
	}
	return points, nil
}

func EncodeCells(cells []hexgrid.Cell) []byte {
	buf := make([]byte, 4+8*len(cells))
	binary.LittleEndian.PutUint32(buf, uint32(len(cells)))
	off := 4
	for _, c := range cells {
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(c.Q)))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(int32(c.R)))
		off += 8
	}
	return buf
}

func DecodeCells(data []byte) ([]hexgrid.Cell, error) {
	n, err := countPrefix(data, 8)
	if err != nil {
		return nil, err
	}
	cells := make([]hexgrid.Cell, n)
	off := 4
	for i := range cells {
		cells[i] = hexgrid.Cell{
			Q: int(int32(binary.LittleEndian.Uint32(data[off:]))),
			R: int(int32(binary.LittleEndian.Uint32(data[off+4:]))),
		}
		off += 8
	}
	return cells, nil
}

func countPrefix(data []byte, width int) (int, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: %d byte header", ErrCorruptEncoding, len(data))
	}
	n := int(binary.LittleEndian.Uint32(data))
	if want := 4 + n*width; len(data) != want {
		return 0, fmt.Errorf("%w: %d elements need %d bytes, have %d", ErrCorruptEncoding, n, want, len(data))
	}
	return n, nil
}
