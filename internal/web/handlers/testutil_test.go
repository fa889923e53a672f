package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-people/internal/database/memory"
	"github.com/kozaktomas/photo-people/internal/identity"
	"github.com/kozaktomas/photo-people/internal/search"
	"github.com/kozaktomas/photo-people/internal/web/middleware"
)

const testFixture = `
people:
  - {id: pa, owner: u1, name: Alice, thumbnail: f1}
  - {id: pb, owner: u1, thumbnail: f3}
  - {id: ph, owner: u1, name: Hannah, hidden: true, thumbnail: f5}
  - {id: px, owner: u2, name: Mallory}
assets:
  - {id: a1, owner: u1, type: IMAGE, file: beach.jpg, tags: [sea], taken_at: 2024-01-01T00:00:00Z, embedding: [1, 0]}
  - {id: a2, owner: u1, type: IMAGE, file: party.jpg, taken_at: 2024-02-01T00:00:00Z, embedding: [0, 1]}
  - {id: a3, owner: u1, type: VIDEO, file: beach-walk.mp4, taken_at: 2024-03-01T00:00:00Z, embedding: [0.9, 0.1]}
  - {id: a9, owner: u2, type: IMAGE, file: beach.jpg, taken_at: 2024-03-01T00:00:00Z}
faces:
  - {id: f1, owner: u1, asset: a1, person: pa}
  - {id: f2, owner: u1, asset: a2, person: pa}
  - {id: f3, owner: u1, asset: a2, person: pb}
  - {id: f5, owner: u1, asset: a3, person: ph}
  - {id: f6, owner: u1, asset: a1}
  - {id: f9, owner: u2, asset: a9, person: px}
`

var testNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// fixedEmbedder returns the same vector for every text
type fixedEmbedder struct {
	vec []float32
}

func (e fixedEmbedder) EmbedText(context.Context, string) ([]float32, error) { return e.vec, nil }
func (e fixedEmbedder) ModelName() string                                     { return "fixed" }

// testHandlers wires handlers to an in-memory store loaded with testFixture
func testHandlers(t *testing.T) (*PeopleHandler, *SearchHandler, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.SetClock(func() time.Time { return testNow })
	if err := store.Load(context.Background(), strings.NewReader(testFixture)); err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}

	n := 0
	svc, err := identity.NewService(store, identity.Options{
		Now: func() time.Time { return testNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("new-%d", n)
		},
	})
	if err != nil {
		t.Fatalf("failed to create identity service: %v", err)
	}

	executor := search.NewExecutor(store, fixedEmbedder{vec: []float32{1, 0}}, search.ExecutorOptions{})
	return NewPeopleHandler(svc), NewSearchHandler(executor), store
}

// ownerRequest creates a request authenticated as owner, with an optional JSON body
func ownerRequest(t *testing.T, method, path, owner string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner == "" {
		return req
	}
	return req.WithContext(middleware.SetOwnerInContext(req.Context(), owner))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}

// assertErrorKind checks the kind field of a classified error response
func assertErrorKind(t *testing.T, recorder *httptest.ResponseRecorder, expectedKind string) {
	t.Helper()
	var result errorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result.Kind != expectedKind {
		t.Errorf("expected kind '%s', got '%s'\nBody: %s", expectedKind, result.Kind, recorder.Body.String())
	}
}
