// Package coordinator orchestrates a completion request end-to-end:
// fingerprint, candidate lookup, slot assignment, optional restore, backend
// forward, optional save, and metadata update.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dingausmwald/proxycache/internal/fingerprint"
	"github.com/dingausmwald/proxycache/internal/lcpindex"
	"github.com/dingausmwald/proxycache/internal/metastore"
	"github.com/dingausmwald/proxycache/internal/slotmanager"
	"github.com/dingausmwald/proxycache/internal/stats"
)

// Kind classifies an error the coordinator surfaces to the client, so the
// HTTP layer can map it to the right status code without the coordinator
// importing net/http status semantics itself.
type Kind int

const (
	KindNone Kind = iota
	KindBadRequest
	KindBadGateway
	KindGatewayTimeout
)

// Error wraps an underlying cause with the Kind the router should surface.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func badRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Err: fmt.Errorf(format, args...)}
}

func badGateway(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadGateway, Err: fmt.Errorf(format, args...)}
}

func gatewayTimeout(format string, args ...interface{}) *Error {
	return &Error{Kind: KindGatewayTimeout, Err: fmt.Errorf(format, args...)}
}

// UpstreamClient is the subset of internal/upstream.Client the coordinator
// depends on, narrowed to an interface so tests can substitute a fake.
type UpstreamClient interface {
	RestoreSlot(ctx context.Context, model string, slotID int, saveID string) error
	SaveSlot(ctx context.Context, model string, slotID int, saveID string) error
	ForwardCompletion(ctx context.Context, slotID int, path string, body io.Reader, w http.ResponseWriter) error
}

// Config carries the tunables from section 6 that govern gating and
// matching.
type Config struct {
	BigThresholdWords int
	WordsPerBlock     int
	LCPThreshold      float64
	RequestTimeout    time.Duration
}

// Coordinator wires the core components together.
type Coordinator struct {
	cfg      Config
	slots    *slotmanager.Manager
	index    *lcpindex.Index
	meta     *metastore.Store
	upstream UpstreamClient
	logger   zerolog.Logger
	stats    *stats.Counters
}

func New(cfg Config, slots *slotmanager.Manager, index *lcpindex.Index, meta *metastore.Store, upstream UpstreamClient, logger zerolog.Logger) *Coordinator {
	return &Coordinator{cfg: cfg, slots: slots, index: index, meta: meta, upstream: upstream, logger: logger}
}

// SetStats attaches a counters sink. Optional; a Coordinator with no
// counters attached simply skips recording.
func (c *Coordinator) SetStats(s *stats.Counters) { c.stats = s }

// requestBody is the subset of a chat/completion request body the
// coordinator needs to read.
type requestBody struct {
	Model    string                   `json:"model"`
	Messages []map[string]interface{} `json:"messages"`
}

// Handle runs the full per-request algorithm for path against rawBody,
// streaming the backend's response to w.
func (c *Coordinator) Handle(ctx context.Context, path string, rawBody []byte, w http.ResponseWriter) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	// Step 1: parse.
	var body requestBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return badRequest("coordinator: malformed request body: %w", err)
	}
	if body.Model == "" {
		return badRequest("coordinator: missing model field")
	}
	promptText := fingerprint.ExtractPromptText(body.Messages)
	if promptText == "" {
		return badRequest("coordinator: empty prompt")
	}

	// Step 2: fingerprint.
	fp := fingerprint.Compute(promptText, c.cfg.WordsPerBlock)

	// Step 3: gate.
	var entry *metastore.Entry
	if fp.WordCount >= c.cfg.BigThresholdWords && len(fp.Signatures) > 0 {
		// Step 4: lookup.
		entry = c.lookup(body.Model, fp)
	}

	// Step 5: assign.
	preferred := ""
	if entry != nil {
		preferred = entry.SaveID
	}
	waitStart := time.Now()
	slotID, err := c.slots.Assign(ctx, uuid.NewString(), preferred)
	if c.stats != nil {
		c.stats.ObserveSlotWait(time.Since(waitStart))
	}
	if err != nil {
		return gatewayTimeout("coordinator: no slot available: %w", err)
	}

	released := false
	finalSaveID := ""
	release := func() {
		if !released {
			c.slots.Release(slotID, finalSaveID)
			released = true
		}
	}
	defer release()

	// Step 6: restore.
	if entry != nil && c.slots.SlotResident(slotID) != entry.SaveID {
		if err := c.upstream.RestoreSlot(ctx, body.Model, slotID, entry.SaveID); err != nil {
			c.logger.Warn().Err(err).Str("save_id", entry.SaveID).Msg("coordinator: restore failed, continuing without prefix reuse")
			entry = nil
		}
	}
	if c.stats != nil {
		if entry != nil {
			c.stats.IncCacheHit()
		} else {
			c.stats.IncCacheMiss()
		}
	}
	if entry != nil {
		finalSaveID = entry.SaveID
	}

	c.slots.MarkBusy(slotID)

	// Step 7: forward.
	if err := c.upstream.ForwardCompletion(ctx, slotID, path, bytes.NewReader(rawBody), w); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return gatewayTimeout("coordinator: backend forward timed out: %w", err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			// Client disconnected mid-stream: cancel, release, do not admit.
			return nil
		}
		return badGateway("coordinator: backend forward failed: %w", err)
	}
	if ctx.Err() != nil {
		// Client disconnected after the forward call returned but before we
		// observed an error from it; still do not admit.
		return nil
	}

	// Step 8: admit.
	if c.shouldAdmit(fp, entry) {
		saveID := uuid.NewString()
		if err := c.upstream.SaveSlot(ctx, body.Model, slotID, saveID); err != nil {
			c.logger.Warn().Err(err).Msg("coordinator: save failed, skipping admission")
		} else {
			now := time.Now().UTC()
			newEntry := metastore.Entry{
				SaveID:     saveID,
				Model:      body.Model,
				Signatures: fp.Signatures,
				WordCount:  fp.WordCount,
				CreatedAt:  now,
				LastUsedAt: now,
			}
			if err := c.meta.Put(newEntry); err != nil {
				c.logger.Warn().Err(err).Msg("coordinator: metadata write failed, skipping admission")
			} else {
				c.index.Insert(newEntry)
				finalSaveID = saveID
				if c.stats != nil {
					c.stats.IncAdmission()
				}
			}
		}
	} else if entry != nil {
		now := time.Now().UTC()
		_ = c.meta.Touch(entry.SaveID, now)
		c.index.Touch(body.Model, entry.SaveID, now)
	}

	// Step 9: release (via deferred release()).
	return nil
}

func (c *Coordinator) lookup(model string, fp fingerprint.Fingerprint) *metastore.Entry {
	candidates := c.index.Lookup(model, fp.Signatures)
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	ratio := float64(best.MatchedLen) / float64(len(fp.Signatures))
	if ratio < c.cfg.LCPThreshold {
		return nil
	}
	entry := best.Entry
	return &entry
}

// shouldAdmit decides whether a new Cache Entry should be minted: the
// prompt must clear the big-prompt threshold, and either there was no
// existing entry or the new fingerprint strictly extends it.
func (c *Coordinator) shouldAdmit(fp fingerprint.Fingerprint, entry *metastore.Entry) bool {
	if fp.WordCount < c.cfg.BigThresholdWords {
		return false
	}
	if entry == nil {
		return true
	}
	if len(fp.Signatures) <= len(entry.Signatures) {
		return false
	}
	for i, sig := range entry.Signatures {
		if fp.Signatures[i] != sig {
			return false
		}
	}
	return true
}
