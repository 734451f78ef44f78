package runtime

import (
	"context"
	"strings"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/timing"
)

// NormalizeURL prefixes https:// to a URL that has no scheme.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	if i := strings.Index(u, "://"); i > 0 && !strings.ContainsAny(u[:i], "./?#") {
		return u
	}
	return "https://" + strings.TrimPrefix(u, "//")
}

// scheduleRedirect navigates away once the thank-you message has been visible
// for timing.RedirectDelay. Preview runs never navigate.
func (s *Session) scheduleRedirect(data domain.EndData) {
	if data.RedirectURL == "" || s.state.Preview {
		return
	}
	url := NormalizeURL(data.RedirectURL)
	s.after(timing.RedirectDelay, func() {
		s.state.RedirectURL = url
		s.markDirty()
		if s.engine.navigator == nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.engine.leadTimeout)
		defer cancel()
		if err := s.engine.navigator.Navigate(ctx, s.state.SessionID, url); err != nil {
			s.logger.Warn("redirect failed", "session_id", s.state.SessionID, "url", url, "err", err)
		}
	})
}

// resolveMedia maps a stored media URL to the one shown to the visitor.
// On failure the stored URL is kept so traversal is unaffected.
func (s *Session) resolveMedia(nodeID, raw string) string {
	if s.engine.resolver == nil || raw == "" {
		return raw
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.engine.leadTimeout)
	defer cancel()
	resolved, err := s.engine.resolver.Resolve(ctx, raw)
	if err != nil {
		s.logger.Warn("media resolve failed", "session_id", s.state.SessionID, "node_id", nodeID, "err", err)
		return raw
	}
	return resolved
}
