package ws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"hexhold/server/internal/actions"
	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/net/proto"
	"hexhold/server/internal/telemetry"
)

// Hub tracks live sessions and delivers processor notifications to them. It
// implements actions.Notifier.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	logger  telemetry.Logger
	metrics telemetry.Metrics
}

var _ actions.Notifier = (*Hub)(nil)

func NewHub(logger telemetry.Logger, metrics telemetry.Metrics) *Hub {
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register installs a session for playerID. An existing session for the same
// player is closed and returned.
func (h *Hub) Register(playerID string, conn *websocket.Conn) (*Session, *Session) {
	sess := newSession(playerID, conn)
	h.mu.Lock()
	previous := h.sessions[playerID]
	h.sessions[playerID] = sess
	open := len(h.sessions)
	h.mu.Unlock()

	h.metrics.Store(telemetry.MetricSessionsOpen, uint64(open))
	if previous != nil {
		h.logger.Printf("replacing session for %s", playerID)
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "replaced by new session")
		previous.WriteMessage(websocket.CloseMessage, message)
		previous.Close()
	}
	return sess, previous
}

// Unregister removes sess if it is still the player's current session.
func (h *Hub) Unregister(sess *Session) bool {
	if sess == nil {
		return false
	}
	h.mu.Lock()
	current, ok := h.sessions[sess.playerID]
	removed := ok && current == sess
	if removed {
		delete(h.sessions, sess.playerID)
	}
	open := len(h.sessions)
	h.mu.Unlock()

	h.metrics.Store(telemetry.MetricSessionsOpen, uint64(open))
	return removed
}

func (h *Hub) Session(playerID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[playerID]
	return sess, ok
}

// Players lists connected player ids in sorted order.
func (h *Hub) Players() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// NotifyPlayer sends a status update to the owning player. Offline players are
// skipped.
func (h *Hub) NotifyPlayer(_ context.Context, update actions.StatusUpdate) error {
	sess, ok := h.Session(update.PlayerID)
	if !ok {
		return nil
	}
	data, err := proto.Encode(proto.NewActionStatus(update))
	if err != nil {
		return err
	}
	if err := sess.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("notify %s: %w", update.PlayerID, err)
	}
	return nil
}

// BroadcastCompleted sends a completion to every session watching its chunk.
func (h *Hub) BroadcastCompleted(_ context.Context, done actions.Completion) error {
	data, err := proto.Encode(proto.NewActionCompleted(done))
	if err != nil {
		return err
	}
	return h.broadcast(done.Chunk, data)
}

// BroadcastRoadSDF sends a regenerated road field to every session watching
// its chunk.
func (h *Hub) BroadcastRoadSDF(_ context.Context, update actions.ChunkField) error {
	data, err := proto.Encode(proto.NewRoadChunkSDF(update))
	if err != nil {
		return err
	}
	return h.broadcast(update.Chunk, data)
}

func (h *Hub) broadcast(chunk hexgrid.ChunkID, data []byte) error {
	var errs []error
	for _, sess := range h.watchers(chunk) {
		if err := sess.WriteMessage(websocket.TextMessage, data); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", sess.playerID, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) watchers(chunk hexgrid.ChunkID) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Session
	for _, sess := range h.sessions {
		if sess.Watching(chunk) {
			out = append(out, sess)
		}
	}
	return out
}
