package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// SSETransport subscribes to a text/event-stream feed and reconnects
// with capped exponential backoff. It resumes with Last-Event-ID so a
// well-behaved server can replay, but the sequencer upstream never
// relies on that.
type SSETransport struct {
	Client  *http.Client
	Backoff Backoff

	// CompleteOnEOF treats a clean server-side close as deliberate
	// completion instead of a failure. Phase-scoped streams end this
	// way; the main feed ends with hand_completed instead.
	CompleteOnEOF bool
}

type sseFrame struct {
	event string
	data  string
	id    string
}

type sseSubscription struct {
	cancel context.CancelFunc
}

func (s *sseSubscription) Close() { s.cancel() }

func (t *SSETransport) Subscribe(ctx context.Context, streamURL string, h Handlers) (Subscription, error) {
	if streamURL == "" {
		return nil, fmt.Errorf("sse: empty stream url")
	}
	ctx, cancel := context.WithCancel(ctx)
	go t.run(ctx, streamURL, h)
	return &sseSubscription{cancel: cancel}, nil
}

func (t *SSETransport) run(ctx context.Context, streamURL string, h Handlers) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	attempt := 0
	lastEventID := ""
	for {
		if ctx.Err() != nil {
			return
		}
		body, err := t.open(ctx, client, streamURL, lastEventID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metricStreamReconnectsTotal.Add(1)
			delay := t.Backoff.Delay(attempt)
			attempt++
			log.Warn().Err(err).Dur("retry_in", delay).Str("url", streamURL).Msg("stream connect failed")
			if h.OnError != nil {
				h.OnError(err)
			}
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		// Connection is open again; the backoff counter starts over.
		attempt = 0
		metricStreamConnectsTotal.Add(1)

		done, lastID := t.consume(ctx, body, h, lastEventID)
		_ = body.Close()
		lastEventID = lastID
		if done || ctx.Err() != nil {
			return
		}
		metricStreamReconnectsTotal.Add(1)
		delay := t.Backoff.Delay(attempt)
		attempt++
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (t *SSETransport) open(ctx context.Context, client *http.Client, streamURL, lastEventID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("sse: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// consume reads frames until the stream ends. It reports whether the
// subscription is finished for good (terminal event or deliberate
// close) and the last event id seen.
func (t *SSETransport) consume(ctx context.Context, body io.Reader, h Handlers, lastEventID string) (bool, string) {
	br := bufio.NewReader(body)
	for {
		frame, err := readFrame(br)
		if err != nil {
			if ctx.Err() != nil {
				return true, lastEventID
			}
			if err == io.EOF && t.CompleteOnEOF {
				if h.OnComplete != nil {
					h.OnComplete()
				}
				return true, lastEventID
			}
			if h.OnError != nil {
				h.OnError(fmt.Errorf("sse: stream broke: %w", err))
			}
			return false, lastEventID
		}
		if frame.id != "" {
			lastEventID = frame.id
		}
		if frame.event == "" && frame.data == "" {
			continue // keepalive
		}
		ev, err := Decode(frame.event, frame.id, []byte(frame.data))
		if err != nil {
			// Dropped, not fatal: a bad game_event will come back
			// through a gap fetch.
			metricStreamDecodeErrorsTotal.Add(1)
			log.Warn().Err(err).Str("event", frame.event).Msg("dropping malformed stream event")
			continue
		}
		metricStreamEventsTotal.Add(1)
		if h.OnEvent != nil {
			h.OnEvent(ev)
		}
		if ev.Kind == KindHandCompleted {
			if h.OnComplete != nil {
				h.OnComplete()
			}
			return true, lastEventID
		}
	}
}

// readFrame parses one server-sent event: field lines terminated by a
// blank line. Comment lines (leading colon) are skipped; multiple data
// lines are joined with newlines.
func readFrame(br *bufio.Reader) (sseFrame, error) {
	var f sseFrame
	var data []string
	started := false
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return sseFrame{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !started {
				continue
			}
			f.data = strings.Join(data, "\n")
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		started = true
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.event = value
		case "data":
			data = append(data, value)
		case "id":
			f.id = value
		}
	}
}
