package sdf

import (
	"bytes"
	"image/png"
	"math"
	"testing"
)

func testConfig() Config {
	return Config{Resolution: 32, ChunkWorldSize: 32, MaxDistance: 8}
}

func TestRasterizeStraightLineIsZeroOnLineAndMonotone(t *testing.T) {
	cfg := testConfig()
	// Texel centres sit at n+0.5, so the line runs through row 16.
	line := [][]Vec2{{{X: -10, Y: 16.5}, {X: 50, Y: 16.5}}}
	field, err := Rasterize(line, Vec2{}, cfg)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if len(field.Data) != cfg.Resolution*cfg.Resolution {
		t.Fatalf("expected %d texels, got %d", cfg.Resolution*cfg.Resolution, len(field.Data))
	}
	for x := 0; x < cfg.Resolution; x++ {
		if v := field.At(x, 16); v != 0 {
			t.Fatalf("texel (%d,16) on the line = %d, want 0", x, v)
		}
	}
	for x := 0; x < cfg.Resolution; x += 7 {
		prev := field.At(x, 16)
		for y := 17; y < cfg.Resolution; y++ {
			v := field.At(x, y)
			if v < prev {
				t.Fatalf("column %d not monotone at row %d: %d after %d", x, y, v, prev)
			}
			d := float64(y - 16)
			want := byte(math.Round(math.Min(d/cfg.MaxDistance, 1) * 255))
			if v != want {
				t.Fatalf("texel (%d,%d) = %d, want %d", x, y, v, want)
			}
			prev = v
		}
		if field.At(x, 31) != 255 {
			t.Fatalf("texel beyond max distance must clamp to 255")
		}
	}
}

func TestRasterizeEmptyInputIsUniformFar(t *testing.T) {
	field, err := Rasterize(nil, Vec2{}, testConfig())
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if !field.Uniform() || field.Data[0] != 255 {
		t.Fatalf("expected uniform 255 field")
	}
}

func TestRasterizeSinglePointPolyline(t *testing.T) {
	field, err := Rasterize([][]Vec2{{{X: 4.5, Y: 4.5}}}, Vec2{}, testConfig())
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if field.At(4, 4) != 0 {
		t.Fatalf("expected zero at the point, got %d", field.At(4, 4))
	}
	if field.At(20, 20) != 255 {
		t.Fatalf("expected clamp far from the point, got %d", field.At(20, 20))
	}
}

func TestEdgeFilterDropsBoundaryParallelSegments(t *testing.T) {
	cfg := testConfig()
	cfg.EdgeThreshold = 0.25
	seam := [][]Vec2{{{X: 0.1, Y: 0}, {X: 0.1, Y: 32}}}
	filtered, err := Rasterize(seam, Vec2{}, cfg)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if !filtered.Uniform() || filtered.Data[0] != 255 {
		t.Fatalf("expected seam segment to be ignored")
	}

	cfg.EdgeThreshold = 0
	kept, err := Rasterize(seam, Vec2{}, cfg)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if kept.Uniform() {
		t.Fatalf("expected seam segment to contribute without the filter")
	}

	// A segment crossing the boundary is real geometry and stays.
	cfg.EdgeThreshold = 0.25
	crossing, err := Rasterize([][]Vec2{{{X: -5, Y: 10.5}, {X: 5, Y: 10.5}}}, Vec2{}, cfg)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if crossing.At(0, 10) != 0 {
		t.Fatalf("crossing segment must not be filtered")
	}
}

func TestRasterizeIgnoresDistantSegments(t *testing.T) {
	field, err := Rasterize([][]Vec2{{{X: 100, Y: 100}, {X: 120, Y: 100}}}, Vec2{}, testConfig())
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if !field.Uniform() || field.Data[0] != 255 {
		t.Fatalf("distant segment should leave the field at max distance")
	}
}

func TestRasterizeSigned(t *testing.T) {
	cfg := testConfig()
	coast := [][]Vec2{{{X: -1, Y: 16}, {X: 33, Y: 16}}}
	land := func(p Vec2) bool { return p.Y < 16 }
	field, err := RasterizeSigned(coast, Vec2{}, cfg, land)
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if v := field.At(5, 15); v >= 128 {
		t.Fatalf("inside texel next to the coast = %d, want < 128", v)
	}
	if v := field.At(5, 16); v <= 128 {
		t.Fatalf("outside texel next to the coast = %d, want > 128", v)
	}
	if field.At(5, 0) != 0 {
		t.Fatalf("deep inside must quantize to 0, got %d", field.At(5, 0))
	}
	if field.At(5, 31) != 255 {
		t.Fatalf("far outside must quantize to 255, got %d", field.At(5, 31))
	}
}

func TestRasterizeSignedDegenerateUsesChunkCentre(t *testing.T) {
	cfg := testConfig()
	calls := 0
	field, err := RasterizeSigned(nil, Vec2{X: 64, Y: 0}, cfg, func(p Vec2) bool {
		calls++
		if p != (Vec2{X: 80, Y: 16}) {
			t.Fatalf("expected classification at the chunk centre, got %v", p)
		}
		return true
	})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one classification, got %d", calls)
	}
	if !field.Uniform() || field.Data[0] != 0 {
		t.Fatalf("expected all-inside field")
	}
}

func TestQuantizeSignedZeroCrossing(t *testing.T) {
	if quantizeSigned(0) != 128 {
		t.Fatalf("zero distance must map to 128, got %d", quantizeSigned(0))
	}
	if quantizeSigned(-1) != 0 || quantizeSigned(1) != 255 {
		t.Fatalf("extremes must map to 0 and 255")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{Resolution: 0, ChunkWorldSize: 1, MaxDistance: 1},
		{Resolution: 8, ChunkWorldSize: 0, MaxDistance: 1},
		{Resolution: 8, ChunkWorldSize: 1, MaxDistance: 0},
		{Resolution: 8, ChunkWorldSize: 1, MaxDistance: 1, EdgeThreshold: -1},
	}
	for _, cfg := range cases {
		if _, err := Rasterize(nil, Vec2{}, cfg); err == nil {
			t.Fatalf("expected validation error for %+v", cfg)
		}
	}
}

func TestWritePNGScalesPreview(t *testing.T) {
	field, err := Rasterize([][]Vec2{{{X: 0, Y: 0}, {X: 32, Y: 32}}}, Vec2{}, Config{Resolution: 8, ChunkWorldSize: 32, MaxDistance: 8})
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	var buf bytes.Buffer
	if err := WritePNG(&buf, field, 4); err != nil {
		t.Fatalf("write png: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Fatalf("expected 32x32 preview, got %v", img.Bounds())
	}
}
