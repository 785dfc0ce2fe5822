// Package observer wires transport, codec, sequencer, handler and
// reducer into one session. A single run loop applies every event, so
// the sequencer drain and the reducer never interleave with anything.
package observer

import (
	"context"
	"expvar"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dealwatch/internal/game"
	"dealwatch/internal/handler"
	"dealwatch/internal/ledgerclient"
	"dealwatch/internal/protocol"
	"dealwatch/internal/sequencer"
	"dealwatch/internal/stream"
)

var (
	metricEventsApplied   = expvar.NewInt("observer_events_applied_total")
	metricGapsDetected    = expvar.NewInt("observer_gaps_detected_total")
	metricGapFetchRetries = expvar.NewInt("observer_gap_fetch_retries_total")
	metricResets          = expvar.NewInt("observer_resets_total")
)

// Fetcher is the recovery side of the ledger API.
type Fetcher interface {
	FetchRange(ctx context.Context, handID string, seqIDs []int64) ([]protocol.FinalizedEnvelope, error)
	FetchSince(ctx context.Context, handID string, since int64) ([]protocol.FinalizedEnvelope, error)
}

// Config tunes recovery behavior; zero values take defaults.
type Config struct {
	GapRetryMax  int           // extra attempts per hole after the first fetch
	GapRetryBase time.Duration // first retry delay, doubled per attempt
	BufferMax    int           // rebroadcast ring size

	// PhaseTransport subscribes the session's shuffle and deal phase
	// streams when it carries them. Phase streams end by deliberate
	// closure, so this transport should treat a clean EOF as
	// completion. Nil disables phase streams.
	PhaseTransport stream.Transport
}

func (c Config) withDefaults() Config {
	if c.GapRetryMax <= 0 {
		c.GapRetryMax = 3
	}
	if c.GapRetryBase <= 0 {
		c.GapRetryBase = 500 * time.Millisecond
	}
	return c
}

type fetchResult struct {
	ids []int64
	evs []protocol.FinalizedEnvelope
	gen int64 // ordering generation the fetch was launched under
}

// Observer reconstructs one hand from its live feed.
type Observer struct {
	cfg       Config
	session   ledgerclient.Session
	transport stream.Transport
	fetcher   Fetcher

	det  *sequencer.Detector
	hctx *handler.Context

	mu    sync.RWMutex
	state game.State

	buffer *Rebroadcast

	events    chan stream.Event
	fetched   chan fetchResult
	errs      chan error
	phaseEnds chan string
	done      chan struct{}
	once      sync.Once

	// ids with a fetch in flight; owned by the run loop
	inflight map[int64]bool

	// gen counts ordering resets. Fetch results stamped with an older
	// generation belong to a previous hand or connection and are
	// discarded rather than integrated.
	gen int64
}

func New(transport stream.Transport, fetcher Fetcher, session ledgerclient.Session, cfg Config) *Observer {
	cfg = cfg.withDefaults()
	return &Observer{
		cfg:       cfg,
		session:   session,
		transport: transport,
		fetcher:   fetcher,
		det:       sequencer.New(),
		hctx:      handler.New(session.ViewerSeat, string(session.ViewerPublicKey)),
		state:     game.NewState(),
		buffer:    NewRebroadcast(cfg.BufferMax),
		events:    make(chan stream.Event, 128),
		fetched:   make(chan fetchResult, 16),
		errs:      make(chan error, 16),
		phaseEnds: make(chan string, 4),
		done:      make(chan struct{}),
		inflight:  map[int64]bool{},
	}
}

// State returns a snapshot of the reconstructed state. Safe for
// concurrent readers: the reducer never mutates shared maps in place.
func (o *Observer) State() game.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Events exposes the rebroadcast buffer for the debug stream.
func (o *Observer) Events() *Rebroadcast { return o.buffer }

// Run subscribes to the live feed and processes events until the hand
// completes or ctx is cancelled. Teardown closes the subscription,
// cancels pending gap fetches and discards the sequencer buffer as one
// unit.
func (o *Observer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.buffer.Close()

	sub, err := o.transport.Subscribe(ctx, o.session.StreamURL, stream.Handlers{
		OnEvent: func(ev stream.Event) {
			select {
			case o.events <- ev:
			case <-ctx.Done():
			}
		},
		OnError: func(err error) {
			select {
			case o.errs <- err:
			case <-ctx.Done():
			default:
			}
		},
		OnComplete: func() {
			o.once.Do(func() { close(o.done) })
		},
	})
	if err != nil {
		return err
	}
	defer sub.Close()
	o.subscribePhaseStreams(ctx)

	o.applyActions([]game.Action{{Type: game.ActionSessionLoading}}, "session_loading")
	log.Info().Str("hand_id", o.session.HandID).Str("url", o.session.StreamURL).Msg("observing hand")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-o.events:
			o.processEvent(ctx, ev)
		case res := <-o.fetched:
			o.integrateFetched(res)
		case name := <-o.phaseEnds:
			o.phaseStreamEnded(name)
		case err := <-o.errs:
			o.onTransportError(ctx, err)
		case <-o.done:
			// Drain what the transport delivered before closing.
			for {
				select {
				case ev := <-o.events:
					o.processEvent(ctx, ev)
				default:
					log.Info().Str("hand_id", o.session.HandID).Msg("hand stream completed")
					return nil
				}
			}
		}
	}
}

// subscribePhaseStreams opens the shuffle and deal phase streams when
// the session and config provide them. Phase streams carry the same
// event kinds as the main feed and share its pipeline; their deliberate
// closure is itself a signal, surfaced through phaseEnds. Their errors
// never reset main-feed ordering.
func (o *Observer) subscribePhaseStreams(ctx context.Context) {
	pt := o.cfg.PhaseTransport
	if pt == nil {
		return
	}
	streams := []struct {
		name string
		url  string
	}{
		{"shuffle", o.session.ShuffleStream},
		{"deal", o.session.DealStream},
	}
	for _, ps := range streams {
		if ps.url == "" {
			continue
		}
		name := ps.name
		_, err := pt.Subscribe(ctx, ps.url, stream.Handlers{
			OnEvent: func(ev stream.Event) {
				select {
				case o.events <- ev:
				case <-ctx.Done():
				}
			},
			OnError: func(err error) {
				log.Warn().Err(err).Str("stream", name).Msg("phase stream error")
			},
			OnComplete: func() {
				select {
				case o.phaseEnds <- name:
				case <-ctx.Done():
				}
			},
		})
		if err != nil {
			log.Warn().Err(err).Str("stream", name).Msg("phase stream subscribe failed")
		}
	}
}

// phaseStreamEnded projects a phase stream's deliberate closure onto
// the client phase: the shuffle stream closing marks the shuffle done
// even before the first blinding message arrives on the main feed.
func (o *Observer) phaseStreamEnded(name string) {
	switch name {
	case "shuffle":
		o.applyActions([]game.Action{{Type: game.ActionShufflePhaseEnded}}, "shuffle_stream_closed")
	case "deal":
		o.applyActions([]game.Action{{Type: game.ActionUpdateStatus, Status: "deal stream complete"}}, "deal_stream_closed")
	}
}

func (o *Observer) processEvent(ctx context.Context, ev stream.Event) {
	if ev.Kind == stream.KindGameEvent {
		res := o.det.Observe(*ev.GameEvent)
		if res.HasGap {
			metricGapsDetected.Add(1)
			o.requestGapFill(ctx, res.Missing)
		}
		o.applyReady(res.Ready)
		return
	}
	if ev.Kind == stream.KindHandCreated {
		// New hand: ordering restarts from zero. The handler resets
		// its own counters when it sees hand_created.
		o.resetOrdering(0)
	}
	o.applyEvent(ev)
}

// resetOrdering clears the sequencer buffer and the in-flight gap
// bookkeeping as one unit; resetting one without the other reintroduces
// duplicate or stale-gap bugs. Bumping gen invalidates recovery
// fetches already running, so a fill launched for the previous hand
// cannot leak its events into the fresh detector.
func (o *Observer) resetOrdering(startSeq int64) {
	metricResets.Add(1)
	o.det.Reset(startSeq)
	o.inflight = map[int64]bool{}
	o.gen++
}

func (o *Observer) applyReady(evs []protocol.FinalizedEnvelope) {
	for i := range evs {
		fin := evs[i]
		delete(o.inflight, fin.SnapshotSequenceID)
		o.applyEvent(stream.Event{Kind: stream.KindGameEvent, GameEvent: &fin})
	}
}

func (o *Observer) applyEvent(ev stream.Event) {
	actions := o.hctx.Handle(ev)
	if len(actions) == 0 {
		return
	}
	o.applyActions(actions, string(ev.Kind))
}

func (o *Observer) applyActions(actions []game.Action, event string) {
	o.mu.Lock()
	for _, a := range actions {
		o.state = game.Apply(o.state, a)
	}
	snapshot := o.state
	o.mu.Unlock()

	metricEventsApplied.Add(1)
	o.buffer.Append(event, map[string]any{
		"phase":       snapshot.Phase,
		"status":      snapshot.Status,
		"last_seq_id": snapshot.LastSeqID,
	})
}

func (o *Observer) integrateFetched(res fetchResult) {
	if res.gen != o.gen {
		// The fetch was launched before a reset; its envelopes belong
		// to the previous ordering session and must not enter the
		// fresh detector.
		log.Debug().Ints64("ids", res.ids).Msg("dropping stale recovery fetch")
		return
	}
	for _, id := range res.ids {
		delete(o.inflight, id)
	}
	o.applyReady(o.det.Integrate(res.evs))
}

// requestGapFill starts a recovery fetch for holes not already being
// fetched. Repeated detections of the same hole while a fetch is in
// flight are deduplicated here; the sequencer itself never does.
func (o *Observer) requestGapFill(ctx context.Context, missing []int64) {
	var fresh []int64
	for _, id := range missing {
		if !o.inflight[id] {
			o.inflight[id] = true
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return
	}
	log.Debug().Ints64("missing", fresh).Int64("expected", o.det.Expected()).Msg("sequence gap detected")
	go o.fetchMissing(ctx, fresh, 0, o.gen)
}

func (o *Observer) fetchMissing(ctx context.Context, ids []int64, attempt int, gen int64) {
	evs, err := o.fetcher.FetchRange(ctx, o.session.HandID, ids)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if attempt < o.cfg.GapRetryMax {
			metricGapFetchRetries.Add(1)
			delay := o.cfg.GapRetryBase << uint(attempt)
			log.Warn().Err(err).Dur("retry_in", delay).Msg("gap fetch failed")
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			o.fetchMissing(ctx, ids, attempt+1, gen)
			return
		}
		// Out of retries: release the in-flight claim so the next live
		// arrival re-triggers detection and a fresh fetch.
		log.Error().Err(err).Ints64("missing", ids).Msg("gap fetch exhausted retries")
		o.postFetched(ctx, fetchResult{ids: ids, gen: gen})
		return
	}
	o.postFetched(ctx, fetchResult{ids: ids, evs: evs, gen: gen})
}

func (o *Observer) postFetched(ctx context.Context, res fetchResult) {
	select {
	case o.fetched <- res:
	case <-ctx.Done():
	}
}

// onTransportError handles a dropped connection. The transport is
// already reconnecting on its own; here the stale pending buffer is
// discarded at the current watermark and a catch-up fetch covers
// whatever the outage swallowed.
func (o *Observer) onTransportError(ctx context.Context, err error) {
	o.mu.Lock()
	o.state = game.Apply(o.state, game.Action{Type: game.ActionSetError, Err: "reconnecting: " + err.Error()})
	o.mu.Unlock()

	watermark := o.det.Expected()
	o.resetOrdering(watermark)
	gen := o.gen
	go func() {
		evs, ferr := o.fetcher.FetchSince(ctx, o.session.HandID, watermark)
		if ferr != nil {
			if ctx.Err() == nil {
				log.Warn().Err(ferr).Msg("catch-up fetch failed")
			}
			return
		}
		o.postFetched(ctx, fetchResult{evs: evs, gen: gen})
	}()
}
