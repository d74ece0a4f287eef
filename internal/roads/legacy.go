package roads

import (
	"context"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
	loggingroads "hexhold/server/logging/roads"
)

// PathDecoder restores stored cell paths.
type PathDecoder struct {
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

// DecodeCellPath decodes an encoded cell path.
//
// Compatibility: rows written before cell paths were persisted carry no path
// blob. Those are rebuilt as a straight hex line between the endpoints, which
// may cut across terrain the original route avoided. Every rebuild is counted
// under roads.legacy_path_fallback.
func (d PathDecoder) DecodeCellPath(ctx context.Context, segmentID int64, start, end hexgrid.Cell, encoded []byte) ([]hexgrid.Cell, bool, error) {
	if len(encoded) > 0 {
		cells, err := DecodeCells(encoded)
		if err != nil {
			return nil, false, err
		}
		if len(cells) > 0 {
			return cells, false, nil
		}
	}
	if d.Metrics != nil {
		d.Metrics.Add(telemetry.MetricLegacyPathFallback, 1)
	}
	loggingroads.LegacyPath(ctx, d.Publisher, segmentID, loggingroads.LegacyPathPayload{Start: start.String(), End: end.String()}, nil)
	return hexgrid.Line(start, end), true, nil
}
