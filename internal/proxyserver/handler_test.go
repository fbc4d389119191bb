package proxyserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dingausmwald/proxycache/internal/coordinator"
	"github.com/dingausmwald/proxycache/internal/janitor"
	"github.com/dingausmwald/proxycache/internal/lcpindex"
	"github.com/dingausmwald/proxycache/internal/metastore"
	"github.com/dingausmwald/proxycache/internal/slotmanager"
	"github.com/dingausmwald/proxycache/internal/stats"
)

type fakeUpstream struct{}

func (fakeUpstream) RestoreSlot(ctx context.Context, model string, slotID int, saveID string) error {
	return nil
}
func (fakeUpstream) SaveSlot(ctx context.Context, model string, slotID int, saveID string) error {
	return nil
}
func (fakeUpstream) ForwardCompletion(ctx context.Context, slotID int, path string, body io.Reader, w http.ResponseWriter) error {
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(`{"ok":true}`))
	return err
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	slots, err := slotmanager.New(2)
	if err != nil {
		t.Fatalf("slotmanager.New: %v", err)
	}
	meta := metastore.New(t.TempDir(), zerolog.Nop())
	index := lcpindex.New()
	coord := coordinator.New(coordinator.Config{
		BigThresholdWords: 4,
		WordsPerBlock:     2,
		LCPThreshold:      0.5,
		RequestTimeout:    0,
	}, slots, index, meta, fakeUpstream{}, zerolog.Nop())
	j := janitor.New(janitor.Config{CacheDir: t.TempDir(), TickInterval: 0}, meta, index, zerolog.Nop())
	s := stats.New()
	coord.SetStats(s)

	listSlots := func(ctx context.Context, model string) ([]SlotState, error) {
		return []SlotState{{ID: 0}}, nil
	}
	passthrough := func(ctx context.Context, w http.ResponseWriter) error {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(`{"data":[]}`))
		return err
	}

	return NewHandler(coord, slots, j, s, listSlots, passthrough, zerolog.Nop())
}

func TestHandler_CompletionForwardsAndReturns200(t *testing.T) {
	h := newTestHandler(t)
	body := bytes.NewBufferString(`{"model":"m","messages":[{"role":"user","content":"hi there"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()

	h.handleCompletion(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_CompletionBadRequestOnMissingModel(t *testing.T) {
	h := newTestHandler(t)
	body := bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()

	h.handleCompletion(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Health(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) != 2 {
		t.Fatalf("expected 2 slots reported, got %d", len(resp.Slots))
	}
}

func TestHandler_ModelsPassthrough(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()

	h.handleModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
