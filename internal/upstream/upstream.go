// Package upstream is the minimal client the coordinator uses to talk to
// the inference backend: slot listing, restore, save, completion forwarding,
// and model-discovery passthrough.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

// Client wraps a pooled *http.Transport. There is no client-level timeout:
// streaming forwards can legitimately run for minutes, so per-call deadlines
// are carried by the context passed into each method instead.
type Client struct {
	baseURL   string
	transport *http.Transport
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func (c *Client) httpClient() *http.Client {
	return &http.Client{Transport: c.transport}
}

// SlotState is one backend-reported slot's contents, from ListSlots.
type SlotState struct {
	ID       int    `json:"id"`
	SaveFile string `json:"filename,omitempty"`
}

func (c *Client) slotsURL(model string, slotID int, action, saveID string) string {
	base := fmt.Sprintf("%s/models/%s/slots", c.baseURL, url.PathEscape(model))
	if slotID < 0 {
		return base
	}
	u := fmt.Sprintf("%s/%d", base, slotID)
	if action == "" {
		return u
	}
	q := url.Values{}
	q.Set("action", action)
	if saveID != "" {
		q.Set("filename", saveID)
	}
	return u + "?" + q.Encode()
}

// ListSlots returns a snapshot of the backend's reported slot contents for
// model. Used only by the slot passthrough endpoint — never on the request
// hot path.
func (c *Client) ListSlots(ctx context.Context, model string) ([]SlotState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.slotsURL(model, -1, "", ""), nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build list-slots request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: list slots: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("upstream: list slots: backend returned %s", resp.Status)
	}
	var slots []SlotState
	if err := decodeJSON(resp.Body, &slots); err != nil {
		return nil, fmt.Errorf("upstream: decode list-slots response: %w", err)
	}
	return slots, nil
}

// RestoreSlot instructs the backend to load saveID's KV state into slotID.
// Idempotent when the slot already holds that save; the backend itself
// decides that, this client issues the call unconditionally.
func (c *Client) RestoreSlot(ctx context.Context, model string, slotID int, saveID string) error {
	return c.slotAction(ctx, model, slotID, "restore", saveID)
}

// SaveSlot instructs the backend to persist slotID's current KV state under
// saveID.
func (c *Client) SaveSlot(ctx context.Context, model string, slotID int, saveID string) error {
	return c.slotAction(ctx, model, slotID, "save", saveID)
}

func (c *Client) slotAction(ctx context.Context, model string, slotID int, action, saveID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.slotsURL(model, slotID, action, saveID), nil)
	if err != nil {
		return fmt.Errorf("upstream: build %s request: %w", action, err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("upstream: %s slot %d: %w", action, slotID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("upstream: %s slot %d: backend returned %s", action, slotID, resp.Status)
	}
	return nil
}

// ForwardCompletion forwards body to path on the backend, pinning the
// request to slotID via the id_slot query parameter (the llama.cpp-server
// convention this client targets), and streams a successful (2xx) response
// back to w verbatim: status code, streaming-relevant headers, and body
// bytes as they arrive. A non-2xx backend status is returned as an error and
// nothing is written to w. It never buffers the full body or inspects its
// content — response-body content is out of scope for this client.
func (c *Client) ForwardCompletion(ctx context.Context, slotID int, path string, body io.Reader, w http.ResponseWriter) error {
	u := fmt.Sprintf("%s%s?id_slot=%d", c.baseURL, path, slotID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return fmt.Errorf("upstream: build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("upstream: forward completion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("upstream: forward completion: backend returned %s", resp.Status)
	}

	for _, h := range []string{"Content-Type", "Transfer-Encoding"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("upstream: write to client: %w", writeErr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("upstream: read from backend: %w", readErr)
		}
	}
}

// PassthroughModels proxies the backend's model-discovery endpoint
// unchanged.
func (c *Client) PassthroughModels(ctx context.Context, w http.ResponseWriter) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("upstream: build models request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("upstream: passthrough models: %w", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Content-Type"); v != "" {
		w.Header().Set("Content-Type", v)
	}
	w.WriteHeader(resp.StatusCode)
	_, err = io.Copy(w, resp.Body)
	return err
}
