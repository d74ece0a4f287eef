package net

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/pprof"
	"strconv"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/net/ws"
	"hexhold/server/internal/observability"
	"hexhold/server/internal/sdf"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
)

const (
	defaultPreviewScale = 4
	maxPreviewScale     = 32
)

// ActionSource exposes the processor's active actions.
type ActionSource interface {
	Snapshot() []actions.Info
	TickCount() uint64
}

// ChunkRenderer rasterizes the road field of one chunk.
type ChunkRenderer interface {
	Render(ctx context.Context, chunk hexgrid.ChunkID) (sdf.Field, int, error)
}

type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Clock         logging.Clock
	Actions       ActionSource
	Renderer      ChunkRenderer
	Sessions      *ws.Handler
	Metrics       *logging.Metrics
	RouterStats   func() logging.RouterStats
	Observability observability.Config
}

type actionView struct {
	ID             int64           `json:"id"`
	PlayerID       string          `json:"playerId"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Chunk          hexgrid.ChunkID `json:"chunk"`
	Cell           hexgrid.Cell    `json:"cell"`
	CompletionTime int64           `json:"completionTime"`
	TargetID       int64           `json:"targetId,omitempty"`
}

func NewHTTPHandler(hub *ws.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string               `json:"status"`
			ServerTime int64                `json:"serverTime"`
			Tick       uint64               `json:"tick"`
			Players    []string             `json:"players"`
			Actions    []actionView         `json:"actions"`
			Metrics    map[string]uint64    `json:"metrics"`
			Logging    *logging.RouterStats `json:"logging,omitempty"`
		}{
			Status:     "ok",
			ServerTime: clock.Now().UnixMilli(),
			Players:    []string{},
			Actions:    []actionView{},
			Metrics:    cfg.Metrics.Snapshot(),
		}
		if hub != nil {
			payload.Players = hub.Players()
		}
		if cfg.Actions != nil {
			payload.Tick = cfg.Actions.TickCount()
			for _, info := range cfg.Actions.Snapshot() {
				payload.Actions = append(payload.Actions, actionView{
					ID:             info.ID,
					PlayerID:       info.PlayerID,
					Type:           info.Type.String(),
					Status:         info.Status.String(),
					Chunk:          info.Chunk,
					Cell:           info.Cell,
					CompletionTime: info.CompletionTime.UnixMilli(),
					TargetID:       info.TargetID,
				})
			}
		}
		if cfg.RouterStats != nil {
			stats := cfg.RouterStats()
			payload.Logging = &stats
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/debug/sdf", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if cfg.Renderer == nil {
			httpError(w, "renderer unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		query := r.URL.Query()
		x, errX := strconv.Atoi(query.Get("x"))
		y, errY := strconv.Atoi(query.Get("y"))
		if errX != nil || errY != nil {
			httpError(w, "x and y must be integers", nethttp.StatusBadRequest)
			return
		}
		scale := defaultPreviewScale
		if raw := query.Get("scale"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxPreviewScale {
				httpError(w, "scale must be between 1 and 32", nethttp.StatusBadRequest)
				return
			}
			scale = parsed
		}

		chunk := hexgrid.ChunkID{X: x, Y: y}
		field, segments, err := cfg.Renderer.Render(r.Context(), chunk)
		if err != nil {
			logger.Printf("render preview for %s failed: %v", chunk, err)
			httpError(w, "render failed", nethttp.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		if err := sdf.WritePNG(&buf, field, scale); err != nil {
			logger.Printf("encode preview for %s failed: %v", chunk, err)
			httpError(w, "encode failed", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-Road-Segments", strconv.Itoa(segments))
		w.Write(buf.Bytes())
	})

	if cfg.Sessions != nil {
		mux.HandleFunc("/ws", cfg.Sessions.Handle)
	}

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
