package game

import (
	"testing"

	"dealwatch/internal/protocol"
)

func initialized(t *testing.T, players int) State {
	t.Helper()
	s := Apply(NewState(), Action{
		Type:        ActionInitGame,
		GameID:      "g1",
		HandID:      "h1",
		PlayerCount: players,
	})
	if s.Phase != PhaseReady {
		t.Fatalf("Phase after init = %q, want ready", s.Phase)
	}
	return s
}

func dealing(t *testing.T, players int) State {
	t.Helper()
	s := initialized(t, players)
	s = Apply(s, Action{Type: ActionStartShuffle, TotalShuffleEvents: players})
	s = Apply(s, Action{Type: ActionShuffleComplete})
	s = Apply(s, Action{Type: ActionStartDealing})
	return s
}

func TestShuffleLifecycle(t *testing.T) {
	s := initialized(t, 7)
	s = Apply(s, Action{Type: ActionStartShuffle, TotalShuffleEvents: 7})
	if s.Phase != PhaseShuffling {
		t.Fatalf("Phase = %q, want shuffling", s.Phase)
	}
	for i := 0; i < 7; i++ {
		s = Apply(s, Action{Type: ActionShuffleProgress})
	}
	if s.ShuffleEventsSeen != 7 || s.ShuffleProgress != 100 {
		t.Fatalf("progress = %d/%d (%d%%), want 7/7 (100%%)", s.ShuffleEventsSeen, s.TotalShuffleEvents, s.ShuffleProgress)
	}
	s = Apply(s, Action{Type: ActionShuffleComplete})
	if s.Phase != PhaseDealing {
		t.Fatalf("Phase after shuffle complete = %q, want dealing", s.Phase)
	}
}

func TestPhaseTransitionsNeverSkipOrRewind(t *testing.T) {
	s := initialized(t, 3)

	// Completing a shuffle that never started must not move the phase.
	if got := Apply(s, Action{Type: ActionShuffleComplete}); got.Phase != PhaseReady {
		t.Fatalf("Phase = %q, want ready (no skip)", got.Phase)
	}

	s = Apply(s, Action{Type: ActionStartShuffle, TotalShuffleEvents: 3})
	s = Apply(s, Action{Type: ActionShuffleComplete})

	// A stray start_shuffle must not drag the phase backwards.
	if got := Apply(s, Action{Type: ActionStartShuffle}); got.Phase != PhaseDealing {
		t.Fatalf("Phase = %q, want dealing (no rewind)", got.Phase)
	}
}

func TestSessionLoadingPhase(t *testing.T) {
	s := Apply(NewState(), Action{Type: ActionSessionLoading})
	if s.Phase != PhaseLoading {
		t.Fatalf("Phase = %q, want loading", s.Phase)
	}
	// Loading is pre-hand only; it must not drag an active hand back.
	busy := initialized(t, 2)
	busy = Apply(busy, Action{Type: ActionStartShuffle, TotalShuffleEvents: 2})
	if got := Apply(busy, Action{Type: ActionSessionLoading}); got.Phase != PhaseShuffling {
		t.Fatalf("Phase = %q, want shuffling (no rewind)", got.Phase)
	}
}

func TestShufflePhaseEndedProjection(t *testing.T) {
	s := initialized(t, 3)
	s = Apply(s, Action{Type: ActionStartShuffle, TotalShuffleEvents: 3})
	s = Apply(s, Action{Type: ActionShufflePhaseEnded})
	if s.Phase != PhaseShuffleComplete || s.ShuffleProgress != 100 {
		t.Fatalf("state = %q %d%%, want shuffle_complete 100%%", s.Phase, s.ShuffleProgress)
	}
	// The main feed's completion still moves on to dealing.
	s = Apply(s, Action{Type: ActionShuffleComplete})
	if s.Phase != PhaseDealing {
		t.Fatalf("Phase = %q, want dealing", s.Phase)
	}
	// Redundant closure signals after dealing started are no-ops.
	if got := Apply(s, Action{Type: ActionShufflePhaseEnded}); got.Phase != PhaseDealing {
		t.Fatalf("Phase = %q, want dealing (closure after dealing ignored)", got.Phase)
	}
}

func TestDealQueueOrder(t *testing.T) {
	s := dealing(t, 3)
	want := []CardKey{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {2, 1}}
	if len(s.DealQueue) != len(want) {
		t.Fatalf("DealQueue = %v, want %v", s.DealQueue, want)
	}
	for i, k := range s.DealQueue {
		if k != want[i] {
			t.Fatalf("DealQueue[%d] = %v, want %v", i, k, want[i])
		}
	}
	if len(s.Cards) != 6 {
		t.Fatalf("seeded %d cards, want 6", len(s.Cards))
	}
	for key, cs := range s.Cards {
		if cs.RequiredShares != 3 {
			t.Fatalf("card %v RequiredShares = %d, want 3", key, cs.RequiredShares)
		}
	}
}

func TestStartDealingIsIdempotent(t *testing.T) {
	s := dealing(t, 2)
	s = Apply(s, Action{Type: ActionBlindingShareReceived, Seat: 0, CardIndex: 0, SourceSeat: 1, Share: "aa"})
	again := Apply(s, Action{Type: ActionStartDealing})
	cs, _ := again.CardAt(0, 0)
	if len(cs.BlindingShares) != 1 {
		t.Fatalf("second start_dealing wiped shares: %+v", cs)
	}
}

func TestShareAccumulation(t *testing.T) {
	s := dealing(t, 3)
	s = Apply(s, Action{Type: ActionBlindingShareReceived, Seat: 1, CardIndex: 0, SourceSeat: 0, Share: "aa"})
	s = Apply(s, Action{Type: ActionBlindingShareReceived, Seat: 1, CardIndex: 0, SourceSeat: 2, Share: "bb"})
	s = Apply(s, Action{Type: ActionBlindingShareReceived, Seat: 1, CardIndex: 0, SourceSeat: 2, Share: "bb"})
	s = Apply(s, Action{Type: ActionPartialUnblindingShare, Seat: 1, CardIndex: 0, SourceSeat: protocol.UnknownSeat, Share: "cc"})

	cs, ok := s.CardAt(1, 0)
	if !ok {
		t.Fatal("card (1,0) not seeded")
	}
	if len(cs.BlindingShares) != 2 {
		t.Fatalf("BlindingShares = %v, want 2 distinct sources", cs.BlindingShares)
	}
	if len(cs.PartialUnblindingShares) != 1 {
		t.Fatalf("PartialUnblindingShares = %v, want 1", cs.PartialUnblindingShares)
	}
	other, _ := s.CardAt(1, 1)
	if len(other.BlindingShares) != 0 {
		t.Fatalf("unrelated card gained shares: %+v", other)
	}
}

func TestDecryptableTargetsExactCard(t *testing.T) {
	s := dealing(t, 3)
	s = Apply(s, Action{Type: ActionCardDecryptable, Seat: 2, CardIndex: 1})
	for key, cs := range s.Cards {
		want := key == CardKey{Seat: 2, Index: 1}
		if cs.Decryptable != want {
			t.Fatalf("card %v Decryptable = %v, want %v", key, cs.Decryptable, want)
		}
	}
}

func TestRevealPrivacyBoundary(t *testing.T) {
	s := dealing(t, 3) // viewer seat 0
	s = Apply(s, Action{Type: ActionCardRevealed, Seat: 0, CardIndex: 0, Card: "As"})
	s = Apply(s, Action{Type: ActionCardRevealed, Seat: 1, CardIndex: 0, Card: "Kd"})
	s = Apply(s, Action{Type: ActionCardRevealed, Seat: 2, CardIndex: 1, Card: "Qh"})
	s = Apply(s, Action{Type: ActionCardRevealed, Seat: 1, CardIndex: 0, Card: "Kd"})

	own, _ := s.CardAt(0, 0)
	if !own.Revealed || own.DisplayCard != "As" {
		t.Fatalf("viewer card not revealed: %+v", own)
	}
	for _, key := range []CardKey{{1, 0}, {2, 1}} {
		cs, _ := s.CardAt(key.Seat, key.Index)
		if cs.Revealed || cs.DisplayCard != "" {
			t.Fatalf("non-viewer card %v leaked: %+v", key, cs)
		}
	}
}

func TestWatermarkMonotonic(t *testing.T) {
	s := NewState()
	s = Apply(s, Action{Type: ActionEventProcessed, SeqID: 5, AppliedPhase: protocol.PhaseShuffling})
	s = Apply(s, Action{Type: ActionEventProcessed, SeqID: 3})
	if s.LastSeqID != 5 {
		t.Fatalf("LastSeqID = %d, want 5 (monotonic)", s.LastSeqID)
	}
	if s.AppliedPhase != protocol.PhaseShuffling {
		t.Fatalf("AppliedPhase = %q, want shuffling", s.AppliedPhase)
	}
	s = Apply(s, Action{Type: ActionEventProcessed, SeqID: 9})
	if s.LastSeqID != 9 {
		t.Fatalf("LastSeqID = %d, want 9", s.LastSeqID)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	before := dealing(t, 2)
	_ = Apply(before, Action{Type: ActionCardDecryptable, Seat: 0, CardIndex: 0})
	cs, _ := before.CardAt(0, 0)
	if cs.Decryptable {
		t.Fatal("Apply mutated its input state")
	}
}

func TestUnknownActionIsNoOp(t *testing.T) {
	s := dealing(t, 2)
	got := Apply(s, Action{Type: "teleport"})
	if got.Phase != s.Phase || len(got.Cards) != len(s.Cards) {
		t.Fatalf("unknown action changed state: %+v", got)
	}
}
