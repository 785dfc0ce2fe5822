// Package ledgerclient talks to the ordering service that assigns
// sequence numbers and persists the protocol log: session lifecycle
// plus the gap-fill message query.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"dealwatch/internal/protocol"
)

var (
	metricFetchTotal       = expvar.NewInt("ledger_fetch_total")
	metricFetchErrorsTotal = expvar.NewInt("ledger_fetch_errors_total")
)

var (
	ErrEmptyRequest = errors.New("empty_request")
	ErrBadStatus    = errors.New("bad_status")
)

// Session is the identity handed out by create-session: who we are,
// which hand we watch, and where its streams live.
type Session struct {
	SessionID       string            `json:"session_id"`
	GameID          string            `json:"game_id"`
	HandID          string            `json:"hand_id"`
	ViewerSeat      int               `json:"viewer_seat"`
	ViewerPublicKey protocol.HexField `json:"viewer_public_key"`
	PlayerCount     int               `json:"player_count"`
	StreamURL       string            `json:"stream_url"`
	ShuffleStream   string            `json:"shuffle_stream_url,omitempty"`
	DealStream      string            `json:"deal_stream_url,omitempty"`
	Snapshot        json.RawMessage   `json:"snapshot,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateSession registers this observer and returns the hand identity
// and stream locations.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", []byte(`{}`), &sess); err != nil {
		return Session{}, err
	}
	if sess.HandID == "" || sess.StreamURL == "" {
		return Session{}, fmt.Errorf("create session: incomplete response %+v", sess)
	}
	return sess, nil
}

// CloseSession tells the ledger we are done watching.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil, nil)
}

type messagesResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

// FetchRange recovers missing envelopes. The server collapses an
// explicit id set into a contiguous [min,max] fetch, so only the
// bounds are sent. The response may cover more than requested; the
// sequencer discards overlap.
func (c *Client) FetchRange(ctx context.Context, handID string, seqIDs []int64) ([]protocol.FinalizedEnvelope, error) {
	if handID == "" || len(seqIDs) == 0 {
		return nil, ErrEmptyRequest
	}
	lo, hi := seqIDs[0], seqIDs[0]
	for _, id := range seqIDs[1:] {
		if id < lo {
			lo = id
		}
		if id > hi {
			hi = id
		}
	}
	path := fmt.Sprintf("/api/hands/%s/messages?from=%d&to=%d", url.PathEscape(handID), lo, hi)
	return c.fetchMessages(ctx, path)
}

// FetchSince recovers every message at or after a watermark, for
// catching up after a reconnect. Inclusive: the caller passes the next
// id it still needs.
func (c *Client) FetchSince(ctx context.Context, handID string, since int64) ([]protocol.FinalizedEnvelope, error) {
	if handID == "" {
		return nil, ErrEmptyRequest
	}
	path := fmt.Sprintf("/api/hands/%s/messages?since=%d", url.PathEscape(handID), since)
	return c.fetchMessages(ctx, path)
}

func (c *Client) fetchMessages(ctx context.Context, path string) ([]protocol.FinalizedEnvelope, error) {
	metricFetchTotal.Add(1)
	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		metricFetchErrorsTotal.Add(1)
		return nil, err
	}
	out := make([]protocol.FinalizedEnvelope, 0, len(resp.Messages))
	for _, raw := range resp.Messages {
		fin, err := protocol.DecodeFinalizedEnvelope(raw)
		if err != nil {
			// One bad archived message must not sink the whole batch;
			// its hole will be re-fetched like any other gap.
			log.Warn().Err(err).Msg("dropping malformed fetched message")
			continue
		}
		out = append(out, fin)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("X-Request-Id", ulid.Make().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: %s %s: %d %s", ErrBadStatus, method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
