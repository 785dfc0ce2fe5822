package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSTransport is the native-socket alternative to SSE: the same feed
// delivered as JSON frames over a websocket. Reconnect policy matches
// the SSE transport.
type WSTransport struct {
	Dialer  *websocket.Dialer
	Backoff Backoff
}

// wsFrame mirrors the server's stream event shape.
type wsFrame struct {
	Event   string          `json:"event"`
	EventID string          `json:"event_id,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type wsSubscription struct {
	cancel context.CancelFunc
}

func (s *wsSubscription) Close() { s.cancel() }

func (t *WSTransport) Subscribe(ctx context.Context, streamURL string, h Handlers) (Subscription, error) {
	if streamURL == "" {
		return nil, fmt.Errorf("ws: empty stream url")
	}
	ctx, cancel := context.WithCancel(ctx)
	go t.run(ctx, streamURL, h)
	return &wsSubscription{cancel: cancel}, nil
}

func (t *WSTransport) run(ctx context.Context, streamURL string, h Handlers) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := dialer.DialContext(ctx, streamURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metricStreamReconnectsTotal.Add(1)
			delay := t.Backoff.Delay(attempt)
			attempt++
			log.Warn().Err(err).Dur("retry_in", delay).Str("url", streamURL).Msg("ws connect failed")
			if h.OnError != nil {
				h.OnError(err)
			}
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		attempt = 0
		metricStreamConnectsTotal.Add(1)
		closer := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-closer:
			}
		}()

		done := t.consume(ctx, conn, h)
		close(closer)
		_ = conn.Close()
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

func (t *WSTransport) consume(ctx context.Context, conn *websocket.Conn, h Handlers) bool {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				if h.OnComplete != nil {
					h.OnComplete()
				}
				return true
			}
			if h.OnError != nil {
				h.OnError(fmt.Errorf("ws: stream broke: %w", err))
			}
			return false
		}
		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			metricStreamDecodeErrorsTotal.Add(1)
			log.Warn().Err(err).Msg("dropping unparseable ws frame")
			continue
		}
		ev, err := Decode(frame.Event, frame.EventID, frame.Data)
		if err != nil {
			metricStreamDecodeErrorsTotal.Add(1)
			log.Warn().Err(err).Str("event", frame.Event).Msg("dropping malformed stream event")
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
			return true
		}
	}
}
