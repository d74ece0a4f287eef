package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hexhold/server/internal/hexgrid"
	"hexhold/server/internal/roads"
)

const writeWait = 5 * time.Second

// Session is one player's websocket connection plus the chunks it watches.
type Session struct {
	playerID string
	conn     *websocket.Conn

	writeMu sync.Mutex

	mu           sync.Mutex
	chunks       map[hexgrid.ChunkID]struct{}
	lastSeq      uint64
	lastActionID int64
}

func newSession(playerID string, conn *websocket.Conn) *Session {
	return &Session{
		playerID: playerID,
		conn:     conn,
		chunks:   make(map[hexgrid.ChunkID]struct{}),
	}
}

func (s *Session) PlayerID() string {
	return s.playerID
}

// WriteMessage serializes writes; gorilla connections allow one writer.
func (s *Session) WriteMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// Subscribe adds chunk to the watch set and reports whether it was new.
func (s *Session) Subscribe(chunk hexgrid.ChunkID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[chunk]; ok {
		return false
	}
	s.chunks[chunk] = struct{}{}
	return true
}

// Unsubscribe removes chunk and reports whether it was watched.
func (s *Session) Unsubscribe(chunk hexgrid.ChunkID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[chunk]; !ok {
		return false
	}
	delete(s.chunks, chunk)
	return true
}

func (s *Session) Watching(chunk hexgrid.ChunkID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[chunk]
	return ok
}

// Chunks returns the watched chunks in row-major order.
func (s *Session) Chunks() []hexgrid.ChunkID {
	s.mu.Lock()
	out := make([]hexgrid.ChunkID, 0, len(s.chunks))
	for chunk := range s.chunks {
		out = append(out, chunk)
	}
	s.mu.Unlock()
	roads.SortChunks(out)
	return out
}

// LastAccepted returns the sequence number and action id of the last queued
// request.
func (s *Session) LastAccepted() (uint64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq, s.lastActionID
}

func (s *Session) StoreAccepted(seq uint64, actionID int64) {
	s.mu.Lock()
	s.lastSeq = seq
	s.lastActionID = actionID
	s.mu.Unlock()
}
