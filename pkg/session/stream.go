package session

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/flowchat/pkg/domain"
)

// StreamBuffer is the per-subscriber queue length. Slow clients lose messages
// past it and should reload the full state.
const StreamBuffer = 32

// StreamManager fans JSON state diffs out to per-session subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // session id -> set
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a subscriber. The returned cancel func is idempotent.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, StreamBuffer)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() { sm.unsubscribe(ch) })
	}
}

// unsubscribe searches every session, since Rename may have moved ch.
func (sm *StreamManager) unsubscribe(ch chan string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, subs := range sm.subscribers {
		if _, ok := subs[ch]; !ok {
			continue
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(sm.subscribers, id)
		}
		return
	}
}

// Broadcast sends msg to every subscriber of sessionID without blocking.
func (sm *StreamManager) Broadcast(sessionID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("stream: client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// BroadcastDiff marshals diff and broadcasts it.
func (sm *StreamManager) BroadcastDiff(diff *domain.StateDiff) {
	if diff == nil {
		return
	}
	b, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("stream: failed to marshal diff", "session_id", diff.SessionID, "err", err)
		return
	}
	sm.Broadcast(diff.SessionID, string(b))
}

// Rename moves the subscribers of oldID to newID.
func (sm *StreamManager) Rename(oldID, newID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	subs, ok := sm.subscribers[oldID]
	if !ok {
		return
	}
	delete(sm.subscribers, oldID)
	if dst, ok := sm.subscribers[newID]; ok {
		for ch := range subs {
			dst[ch] = struct{}{}
		}
		return
	}
	sm.subscribers[newID] = subs
}

// CloseSession disconnects every subscriber of sessionID.
func (sm *StreamManager) CloseSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for ch := range sm.subscribers[sessionID] {
		close(ch)
	}
	delete(sm.subscribers, sessionID)
}

// Subscribers counts the subscribers of sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

// MatchesWatch reports whether diff touches any of the watched fields:
// mode, node, typing, timeline, variables, redirect. An empty list matches all.
func MatchesWatch(diff *domain.StateDiff, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	for _, field := range watch {
		switch strings.TrimSpace(field) {
		case "mode":
			if diff.Mode != nil {
				return true
			}
		case "node":
			if diff.CurrentNodeID != nil {
				return true
			}
		case "typing":
			if diff.Typing != nil {
				return true
			}
		case "timeline":
			if len(diff.Appended) > 0 || len(diff.Updated) > 0 || diff.Reset {
				return true
			}
		case "variables":
			if len(diff.Variables) > 0 {
				return true
			}
		case "redirect":
			if diff.RedirectURL != nil {
				return true
			}
		}
	}
	return false
}
