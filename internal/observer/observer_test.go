package observer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealwatch/internal/game"
	"dealwatch/internal/ledgerclient"
	"dealwatch/internal/protocol"
	"dealwatch/internal/stream"
)

type fakeTransport struct {
	mu sync.Mutex
	hs map[string]stream.Handlers
}

type fakeSub struct{}

func (fakeSub) Close() {}

func (f *fakeTransport) Subscribe(_ context.Context, streamURL string, h stream.Handlers) (stream.Subscription, error) {
	f.mu.Lock()
	if f.hs == nil {
		f.hs = map[string]stream.Handlers{}
	}
	f.hs[streamURL] = h
	f.mu.Unlock()
	return fakeSub{}, nil
}

func (f *fakeTransport) handlersFor(streamURL string) stream.Handlers {
	for i := 0; i < 200; i++ {
		f.mu.Lock()
		h, ok := f.hs[streamURL]
		f.mu.Unlock()
		if ok && h.OnEvent != nil {
			return h
		}
		time.Sleep(5 * time.Millisecond)
	}
	return stream.Handlers{}
}

func (f *fakeTransport) handlers() stream.Handlers {
	return f.handlersFor("http://feed")
}

type fakeFetcher struct {
	mu      sync.Mutex
	archive map[int64]protocol.FinalizedEnvelope
	fail    int // fail this many calls before serving
	ranges  [][]int64

	started chan struct{} // signalled as each range fetch begins
	block   chan struct{} // range fetches stall until this closes
}

func (f *fakeFetcher) FetchRange(_ context.Context, _ string, ids []int64) ([]protocol.FinalizedEnvelope, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, ids)
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("ledger unavailable")
	}
	lo, hi := ids[0], ids[0]
	for _, id := range ids {
		if id < lo {
			lo = id
		}
		if id > hi {
			hi = id
		}
	}
	var out []protocol.FinalizedEnvelope
	for id := lo; id <= hi; id++ {
		if ev, ok := f.archive[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeFetcher) FetchSince(_ context.Context, _ string, since int64) ([]protocol.FinalizedEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.FinalizedEnvelope
	for id, ev := range f.archive {
		if id >= since {
			out = append(out, ev)
		}
	}
	return out, nil
}

func shuffleEnv(seq int64) protocol.FinalizedEnvelope {
	return protocol.FinalizedEnvelope{
		Envelope: protocol.Envelope{
			HandID: "h1", GameID: "g1",
			Actor:   protocol.Actor{Kind: protocol.ActorShuffler, ShufflerID: "sh"},
			Message: protocol.SignedMessage{Value: protocol.Message{Type: protocol.MsgShuffle, Shuffle: &protocol.ShuffleMessage{Proof: "aa"}}},
		},
		SnapshotStatus:     protocol.SnapshotSuccess,
		AppliedPhase:       protocol.PhaseShuffling,
		SnapshotSequenceID: seq,
	}
}

func blindingEnv(seq int64, pos, actorSeat int) protocol.FinalizedEnvelope {
	return protocol.FinalizedEnvelope{
		Envelope: protocol.Envelope{
			HandID: "h1", GameID: "g1",
			Actor: protocol.Actor{Kind: protocol.ActorPlayer, SeatID: actorSeat, PlayerID: "p"},
			Message: protocol.SignedMessage{Value: protocol.Message{
				Type:     protocol.MsgBlinding,
				Blinding: &protocol.ShareMessage{CardInDeckPosition: pos, Share: "ab", Proof: "cd"},
			}},
		},
		SnapshotStatus:     protocol.SnapshotSuccess,
		AppliedPhase:       protocol.PhaseDealing,
		SnapshotSequenceID: seq,
	}
}

func gameEv(fin protocol.FinalizedEnvelope) stream.Event {
	f := fin
	return stream.Event{Kind: stream.KindGameEvent, GameEvent: &f}
}

func handCreatedEv(players, shufflers int) stream.Event {
	return stream.Event{Kind: stream.KindHandCreated, HandCreated: &stream.HandCreated{
		GameID: "g1", HandID: "h1", PlayerCount: players, ShufflerCount: shufflers,
	}}
}

func testSession() ledgerclient.Session {
	return ledgerclient.Session{SessionID: "s1", GameID: "g1", HandID: "h1", StreamURL: "http://feed", PlayerCount: 2}
}

func waitFor(t *testing.T, o *Observer, cond func(game.State) bool, what string) game.State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		s := o.State()
		if cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; state = %+v", what, o.State())
	return game.State{}
}

func TestObserverOrdersOutOfOrderFeed(t *testing.T) {
	tr := &fakeTransport{}
	ff := &fakeFetcher{archive: map[int64]protocol.FinalizedEnvelope{
		2: blindingEnv(2, 0, 1),
		3: blindingEnv(3, 1, 1),
	}}
	o := New(tr, ff, testSession(), Config{GapRetryBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(ctx) }()

	h := tr.handlers()
	h.OnEvent(handCreatedEv(2, 2))
	h.OnEvent(gameEv(shuffleEnv(0)))
	h.OnEvent(gameEv(shuffleEnv(1)))
	// 2 and 3 go missing; 4 arrives early and must wait for the fill.
	h.OnEvent(gameEv(blindingEnv(4, 2, 0)))

	s := waitFor(t, o, func(s game.State) bool { return s.LastSeqID == 4 }, "all five events applied")
	if s.Phase != game.PhaseDealing {
		t.Fatalf("Phase = %q, want dealing", s.Phase)
	}
	if s.ShuffleEventsSeen != 2 {
		t.Fatalf("ShuffleEventsSeen = %d, want 2", s.ShuffleEventsSeen)
	}
	cs, ok := s.CardAt(0, 0)
	if !ok || len(cs.BlindingShares) != 1 {
		t.Fatalf("card (0,0) = %+v, want one blinding share", cs)
	}
	if cs2, _ := s.CardAt(0, 1); len(cs2.BlindingShares) != 1 {
		t.Fatalf("card (0,1) = %+v, want one blinding share from the gap fill", cs2)
	}

	h.OnEvent(stream.Event{Kind: stream.KindHandCompleted})
	h.OnComplete()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not finish after hand_completed")
	}
	if o.State().Phase != game.PhaseComplete {
		t.Fatalf("Phase = %q, want complete", o.State().Phase)
	}
}

func TestObserverDuplicateDeliveryAppliesOnce(t *testing.T) {
	tr := &fakeTransport{}
	ff := &fakeFetcher{archive: map[int64]protocol.FinalizedEnvelope{}}
	o := New(tr, ff, testSession(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	h := tr.handlers()
	h.OnEvent(handCreatedEv(2, 3))
	h.OnEvent(gameEv(shuffleEnv(0)))
	h.OnEvent(gameEv(shuffleEnv(0)))
	h.OnEvent(gameEv(shuffleEnv(1)))

	s := waitFor(t, o, func(s game.State) bool { return s.LastSeqID == 1 }, "two distinct events applied")
	if s.ShuffleEventsSeen != 2 {
		t.Fatalf("ShuffleEventsSeen = %d, want 2 (duplicate must not re-apply)", s.ShuffleEventsSeen)
	}
}

func TestObserverRetriesFailedGapFetch(t *testing.T) {
	tr := &fakeTransport{}
	ff := &fakeFetcher{
		fail:    1,
		archive: map[int64]protocol.FinalizedEnvelope{1: shuffleEnv(1)},
	}
	o := New(tr, ff, testSession(), Config{GapRetryMax: 2, GapRetryBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	h := tr.handlers()
	h.OnEvent(handCreatedEv(2, 3))
	h.OnEvent(gameEv(shuffleEnv(0)))
	h.OnEvent(gameEv(shuffleEnv(2))) // hole at 1

	waitFor(t, o, func(s game.State) bool { return s.LastSeqID == 2 }, "gap filled after retry")
	ff.mu.Lock()
	calls := len(ff.ranges)
	ff.mu.Unlock()
	if calls < 2 {
		t.Fatalf("fetch calls = %d, want at least 2 (one failure, one retry)", calls)
	}
}

func TestObserverNewHandDiscardsInFlightGapFetch(t *testing.T) {
	tr := &fakeTransport{}
	ff := &fakeFetcher{
		archive: map[int64]protocol.FinalizedEnvelope{
			1: shuffleEnv(1),
			2: shuffleEnv(2),
		},
		started: make(chan struct{}, 8),
		block:   make(chan struct{}),
	}
	o := New(tr, ff, testSession(), Config{GapRetryBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	h := tr.handlers()
	h.OnEvent(handCreatedEv(2, 3))
	h.OnEvent(gameEv(shuffleEnv(0)))
	h.OnEvent(gameEv(shuffleEnv(3))) // hole at 1 and 2; fetch stalls

	select {
	case <-ff.started:
	case <-time.After(3 * time.Second):
		t.Fatal("gap fetch never started")
	}

	// A new hand arrives while the old hand's fetch is still running.
	h.OnEvent(handCreatedEv(2, 3))
	waitFor(t, o, func(s game.State) bool { return s.LastSeqID == -1 }, "fresh hand state")

	// The stalled fetch now returns the old hand's envelopes 1 and 2.
	close(ff.block)
	time.Sleep(50 * time.Millisecond)

	h.OnEvent(gameEv(shuffleEnv(0)))
	s := waitFor(t, o, func(s game.State) bool { return s.LastSeqID == 0 }, "new hand's first event")
	time.Sleep(50 * time.Millisecond)

	s = o.State()
	if s.LastSeqID != 0 {
		t.Fatalf("LastSeqID = %d, want 0 (old hand's fetch leaked)", s.LastSeqID)
	}
	if s.ShuffleEventsSeen != 1 {
		t.Fatalf("ShuffleEventsSeen = %d, want 1 (old hand's fetch leaked)", s.ShuffleEventsSeen)
	}
}

func TestObserverPhaseStreamClosureMarksShuffleComplete(t *testing.T) {
	tr := &fakeTransport{}
	ff := &fakeFetcher{archive: map[int64]protocol.FinalizedEnvelope{}}
	sess := testSession()
	sess.ShuffleStream = "http://feed/shuffle"
	o := New(tr, ff, sess, Config{PhaseTransport: tr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	main := tr.handlers()
	shuffle := tr.handlersFor("http://feed/shuffle")
	if shuffle.OnComplete == nil {
		t.Fatal("shuffle phase stream never subscribed")
	}

	main.OnEvent(handCreatedEv(2, 5))
	main.OnEvent(gameEv(shuffleEnv(0)))
	main.OnEvent(gameEv(shuffleEnv(1)))
	waitFor(t, o, func(s game.State) bool { return s.ShuffleEventsSeen == 2 }, "shuffle progress")

	shuffle.OnComplete()
	s := waitFor(t, o, func(s game.State) bool { return s.Phase == game.PhaseShuffleComplete }, "phase stream closure projected")
	if s.ShuffleProgress != 100 {
		t.Fatalf("ShuffleProgress = %d, want 100", s.ShuffleProgress)
	}

	// The main feed's first blinding still moves the hand to dealing.
	main.OnEvent(gameEv(blindingEnv(2, 0, 1)))
	waitFor(t, o, func(s game.State) bool { return s.Phase == game.PhaseDealing }, "dealing after blinding")
}

func TestObserverTransportErrorTriggersCatchUp(t *testing.T) {
	tr := &fakeTransport{}
	ff := &fakeFetcher{archive: map[int64]protocol.FinalizedEnvelope{
		0: shuffleEnv(0),
		1: shuffleEnv(1),
	}}
	o := New(tr, ff, testSession(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Run(ctx) }()

	h := tr.handlers()
	h.OnEvent(handCreatedEv(2, 2))
	h.OnError(errors.New("connection reset"))

	s := waitFor(t, o, func(s game.State) bool { return s.LastSeqID == 1 }, "catch-up fetch applied")
	if s.ShuffleEventsSeen != 2 {
		t.Fatalf("ShuffleEventsSeen = %d, want 2", s.ShuffleEventsSeen)
	}
	if s.ErrMsg == "" {
		t.Fatal("transport error should surface as a transient error message")
	}
}
