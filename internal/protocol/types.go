package protocol

import (
	"encoding/json"
	"fmt"
)

// Phase is the server-authoritative stage of a hand's lifecycle. The
// observer never computes phases itself; it mirrors what the ledger
// stamped onto each finalized envelope.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseShuffling Phase = "shuffling"
	PhaseDealing   Phase = "dealing"
	PhaseBetting   Phase = "betting"
	PhaseReveals   Phase = "reveals"
	PhaseShowdown  Phase = "showdown"
	PhaseComplete  Phase = "complete"
	PhaseCancelled Phase = "cancelled"
)

var knownPhases = map[Phase]bool{
	PhasePending:   true,
	PhaseShuffling: true,
	PhaseDealing:   true,
	PhaseBetting:   true,
	PhaseReveals:   true,
	PhaseShowdown:  true,
	PhaseComplete:  true,
	PhaseCancelled: true,
}

type SnapshotStatus string

const (
	SnapshotSuccess SnapshotStatus = "success"
	SnapshotFailure SnapshotStatus = "failure"
)

// ActorKind tags who signed a protocol message.
type ActorKind string

const (
	ActorNone     ActorKind = "none"
	ActorPlayer   ActorKind = "player"
	ActorShuffler ActorKind = "shuffler"
)

// UnknownSeat is reported when an envelope's actor carries no seat,
// e.g. shuffle messages signed by a shuffler rather than a player.
const UnknownSeat = -1

// Actor is the tagged attribution variant on an envelope.
type Actor struct {
	Kind       ActorKind
	SeatID     int
	PlayerID   string
	ShufflerID string
}

// Seat returns the acting player's seat, or UnknownSeat for shuffler
// and anonymous actors.
func (a Actor) Seat() int {
	if a.Kind == ActorPlayer {
		return a.SeatID
	}
	return UnknownSeat
}

type actorWire struct {
	Type       string  `json:"type"`
	SeatID     *int    `json:"seat_id,omitempty"`
	PlayerID   *string `json:"player_id,omitempty"`
	ShufflerID *string `json:"shuffler_id,omitempty"`
}

func (a *Actor) UnmarshalJSON(data []byte) error {
	var w actorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch ActorKind(w.Type) {
	case ActorNone:
		*a = Actor{Kind: ActorNone}
	case ActorPlayer:
		if w.SeatID == nil || w.PlayerID == nil {
			return fmt.Errorf("actor player: missing seat_id or player_id")
		}
		*a = Actor{Kind: ActorPlayer, SeatID: *w.SeatID, PlayerID: *w.PlayerID}
	case ActorShuffler:
		if w.ShufflerID == nil {
			return fmt.Errorf("actor shuffler: missing shuffler_id")
		}
		*a = Actor{Kind: ActorShuffler, ShufflerID: *w.ShufflerID}
	default:
		return fmt.Errorf("actor: unknown type %q", w.Type)
	}
	return nil
}

func (a Actor) MarshalJSON() ([]byte, error) {
	w := actorWire{Type: string(a.Kind)}
	switch a.Kind {
	case ActorPlayer:
		w.SeatID = &a.SeatID
		w.PlayerID = &a.PlayerID
	case ActorShuffler:
		w.ShufflerID = &a.ShufflerID
	}
	return json.Marshal(w)
}

// SignedMessage pairs a protocol message with the signature and
// Fiat-Shamir transcript produced by its author. Both are opaque here.
type SignedMessage struct {
	Value      Message  `json:"value"`
	Signature  HexField `json:"signature"`
	Transcript HexField `json:"transcript"`
}

// Envelope is one signed, attributed protocol message.
//
// Nonce is strictly increasing per actor within a hand; the ledger
// enforces that upstream. Ordering here relies solely on the finalized
// snapshot sequence id, never on nonces.
type Envelope struct {
	HandID    string        `json:"hand_id"`
	GameID    string        `json:"game_id"`
	Actor     Actor         `json:"actor"`
	Nonce     uint64        `json:"nonce"`
	PublicKey HexField      `json:"public_key"`
	Message   SignedMessage `json:"message"`
}

// FinalizedEnvelope is an envelope the ledger has ordered and applied.
// SnapshotSequenceID is the globally unique, monotonically increasing
// ordering key this client reconstructs order from. Immutable once
// observed.
type FinalizedEnvelope struct {
	Envelope

	SnapshotStatus     SnapshotStatus `json:"snapshot_status"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	AppliedPhase       Phase          `json:"applied_phase"`
	SnapshotSequenceID int64          `json:"snapshot_sequence_id"`
	CreatedTimestamp   int64          `json:"created_timestamp"`
}
