package game

import "fmt"

// Apply is the reducer: given a state and an action it returns the
// next state. It never panics on malformed actions; unknown or
// out-of-phase transitions leave the state unchanged. The client phase
// walks idle → shuffling → dealing → complete, one transition per
// action, never skipped and never backwards.
func Apply(s State, a Action) State {
	switch a.Type {
	case ActionSessionLoading:
		if s.Phase != PhaseIdle {
			return s
		}
		s.Phase = PhaseLoading
		s.Status = "loading"
		return s

	case ActionInitGame:
		next := NewState()
		next.GameID = a.GameID
		next.HandID = a.HandID
		next.ViewerPublicKey = a.ViewerPublicKey
		next.ViewerSeat = a.ViewerSeat
		next.PlayerCount = a.PlayerCount
		next.Phase = PhaseReady
		next.Status = "waiting for shuffle"
		return next

	case ActionStartShuffle:
		if s.Phase != PhaseIdle && s.Phase != PhaseLoading && s.Phase != PhaseReady {
			return s
		}
		s.Phase = PhaseShuffling
		s.TotalShuffleEvents = a.TotalShuffleEvents
		s.ShuffleEventsSeen = 0
		s.ShuffleProgress = 0
		s.Status = "shuffling"
		return s

	case ActionShuffleProgress:
		if s.Phase != PhaseShuffling {
			return s
		}
		s.ShuffleEventsSeen++
		if s.TotalShuffleEvents > 0 {
			s.ShuffleProgress = 100 * s.ShuffleEventsSeen / s.TotalShuffleEvents
			if s.ShuffleProgress > 100 {
				s.ShuffleProgress = 100
			}
		}
		s.Status = fmt.Sprintf("shuffling %d/%d", s.ShuffleEventsSeen, s.TotalShuffleEvents)
		return s

	case ActionShufflePhaseEnded:
		// The shuffle phase stream closed deliberately: the shuffle is
		// done, but dealing has not started on the main feed yet.
		if s.Phase != PhaseShuffling {
			return s
		}
		s.Phase = PhaseShuffleComplete
		s.ShuffleProgress = 100
		s.Status = "shuffle complete"
		return s

	case ActionShuffleComplete:
		if s.Phase != PhaseShuffling && s.Phase != PhaseShuffleComplete {
			return s
		}
		s.Phase = PhaseDealing
		s.ShuffleProgress = 100
		s.Status = "shuffle complete"
		return s

	case ActionStartDealing:
		if s.Phase != PhaseDealing || len(s.DealQueue) > 0 {
			return s
		}
		return seedDeal(s)

	case ActionCardDealt:
		return withCard(s, a.Seat, a.CardIndex, func(cs CardState) CardState {
			cs.Dealt = true
			return cs
		})

	case ActionBlindingShareReceived:
		return withCard(s, a.Seat, a.CardIndex, func(cs CardState) CardState {
			cs.BlindingShares = cloneShares(cs.BlindingShares)
			cs.BlindingShares[a.SourceSeat] = a.Share
			return cs
		})

	case ActionPartialUnblindingShare:
		return withCard(s, a.Seat, a.CardIndex, func(cs CardState) CardState {
			cs.PartialUnblindingShares = cloneShares(cs.PartialUnblindingShares)
			cs.PartialUnblindingShares[a.SourceSeat] = a.Share
			return cs
		})

	case ActionCardDecryptable:
		return withCard(s, a.Seat, a.CardIndex, func(cs CardState) CardState {
			cs.Decryptable = true
			return cs
		})

	case ActionCardRevealed:
		// Confidentiality boundary: only the viewer's own cards are
		// ever shown face up, even if the server mistakenly sends
		// another seat's opening to this client.
		viewer := a.Seat == s.ViewerSeat
		return withCard(s, a.Seat, a.CardIndex, func(cs CardState) CardState {
			if viewer {
				cs.Revealed = true
				cs.DisplayCard = a.Card
			}
			return cs
		})

	case ActionHandComplete:
		if s.Phase == PhaseComplete {
			return s
		}
		s.Phase = PhaseComplete
		s.Status = "hand complete"
		return s

	case ActionUpdateStatus:
		s.Status = a.Status
		return s

	case ActionSetError:
		s.ErrMsg = a.Err
		return s

	case ActionEventProcessed:
		// Diagnostic high-water mark only; ordering authority stays
		// with the sequencer.
		if a.SeqID > s.LastSeqID {
			s.LastSeqID = a.SeqID
		}
		if a.AppliedPhase != "" {
			s.AppliedPhase = a.AppliedPhase
		}
		return s

	default:
		return s
	}
}

// seedDeal creates the per-card bookkeeping and the deal queue: card 0
// for every seat in seat order, then card 1 for every seat. The
// presentation layer staggers deal animations off this exact order.
func seedDeal(s State) State {
	s.Cards = cloneCards(s.Cards)
	queue := make([]CardKey, 0, 2*s.PlayerCount)
	for index := 0; index < 2; index++ {
		for seat := 0; seat < s.PlayerCount; seat++ {
			key := CardKey{Seat: seat, Index: index}
			s.Cards[key] = CardState{
				BlindingShares:          map[int]string{},
				PartialUnblindingShares: map[int]string{},
				RequiredShares:          s.PlayerCount,
			}
			queue = append(queue, key)
		}
	}
	s.DealQueue = queue
	s.Status = "dealing"
	return s
}

func withCard(s State, seat, index int, update func(CardState) CardState) State {
	key := CardKey{Seat: seat, Index: index}
	cs, ok := s.Cards[key]
	if !ok {
		// Share or reveal for a card that was never seeded; ignore
		// rather than fabricate state for an out-of-range seat.
		return s
	}
	s.Cards = cloneCards(s.Cards)
	s.Cards[key] = update(cs)
	return s
}
