package http

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

//go:embed openapi.yaml
var rawSpec []byte

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 64 << 10

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return doc, nil
}

// validateBody checks JSON request bodies against the operation's schema.
// The body is buffered and handed on unchanged.
func (s *Server) validateBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		schema, required := s.bodySchema(r)
		if schema == nil {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			if required {
				s.writeError(w, http.StatusBadRequest, "request body is required")
				return
			}
			raw = []byte("{}")
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := schema.VisitJSON(value); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(raw))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) bodySchema(r *http.Request) (*openapi3.Schema, bool) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil, false
	}
	item := s.spec.Paths.Find(rctx.RoutePattern())
	if item == nil {
		return nil, false
	}
	op := item.GetOperation(r.Method)
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil, false
	}
	media := op.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil {
		return nil, false
	}
	return media.Schema.Value, op.RequestBody.Value.Required
}
