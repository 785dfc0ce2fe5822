package game

import "dealwatch/internal/protocol"

// DemoPhase is the client-side projection of the hand lifecycle,
// coarser than the server's applied phase and driven by stream
// lifecycle events.
type DemoPhase string

const (
	PhaseIdle            DemoPhase = "idle"
	PhaseLoading         DemoPhase = "loading"
	PhaseReady           DemoPhase = "ready"
	PhaseShuffling       DemoPhase = "shuffling"
	PhaseShuffleComplete DemoPhase = "shuffle_complete"
	PhaseDealing         DemoPhase = "dealing"
	PhaseComplete        DemoPhase = "complete"
)

// Card is a display rank+suit string such as "As" or "Td".
type Card string

// CardKey addresses one hole card: a seat and a per-seat index (0 or 1).
type CardKey struct {
	Seat  int `json:"seat"`
	Index int `json:"index"`
}

// CardState is the per-card decryption bookkeeping. Decryptable is
// mirrored from the server's card_decryptable event, never recomputed
// from the share counts here.
type CardState struct {
	BlindingShares          map[int]string `json:"blinding_shares"`
	PartialUnblindingShares map[int]string `json:"partial_unblinding_shares"`
	RequiredShares          int            `json:"required_shares"`
	Dealt                   bool           `json:"dealt"`
	Decryptable             bool           `json:"decryptable"`
	Revealed                bool           `json:"revealed"`
	DisplayCard             Card           `json:"display_card,omitempty"`
}

// State is the reconstructed view of one hand. The reducer owns it:
// nothing mutates a State in place, Apply returns a fresh value.
type State struct {
	GameID          string `json:"game_id"`
	HandID          string `json:"hand_id"`
	ViewerPublicKey string `json:"viewer_public_key"`
	ViewerSeat      int    `json:"viewer_seat"`
	PlayerCount     int    `json:"player_count"`

	Phase        DemoPhase      `json:"phase"`
	AppliedPhase protocol.Phase `json:"applied_phase,omitempty"`

	ShuffleEventsSeen  int `json:"shuffle_events_seen"`
	TotalShuffleEvents int `json:"total_shuffle_events"`
	ShuffleProgress    int `json:"shuffle_progress"`

	Cards     map[CardKey]CardState `json:"-"`
	DealQueue []CardKey             `json:"deal_queue"`

	LastSeqID int64  `json:"last_seq_id"`
	Status    string `json:"status"`
	ErrMsg    string `json:"error,omitempty"`
}

// NewState returns the pre-session idle state.
func NewState() State {
	return State{
		Phase:     PhaseIdle,
		LastSeqID: -1,
		Cards:     map[CardKey]CardState{},
	}
}

// CardAt returns the bookkeeping for one card, if it has been seeded.
func (s State) CardAt(seat, index int) (CardState, bool) {
	cs, ok := s.Cards[CardKey{Seat: seat, Index: index}]
	return cs, ok
}

// CardEntry is the JSON-friendly projection of one card's state.
type CardEntry struct {
	CardKey
	CardState
}

// CardList returns all seeded cards in deal order: card 0 for every
// seat, then card 1.
func (s State) CardList() []CardEntry {
	out := make([]CardEntry, 0, len(s.Cards))
	for index := 0; index < 2; index++ {
		for seat := 0; seat < s.PlayerCount; seat++ {
			key := CardKey{Seat: seat, Index: index}
			if cs, ok := s.Cards[key]; ok {
				out = append(out, CardEntry{CardKey: key, CardState: cs})
			}
		}
	}
	return out
}

func cloneCards(in map[CardKey]CardState) map[CardKey]CardState {
	out := make(map[CardKey]CardState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneShares(in map[int]string) map[int]string {
	out := make(map[int]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
