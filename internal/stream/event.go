package stream

import (
	"encoding/json"
	"fmt"

	"dealwatch/internal/protocol"
)

// Kind names the live-feed event kinds sharing one subscription.
type Kind string

const (
	KindPlayerCreated      Kind = "player_created"
	KindHandCreated        Kind = "hand_created"
	KindGameEvent          Kind = "game_event"
	KindCommunityDecrypted Kind = "community_decrypted"
	KindCardDecryptable    Kind = "card_decryptable"
	KindHoleCardsDecrypted Kind = "hole_cards_decrypted"
	KindHandCompleted      Kind = "hand_completed"
)

// ErrUnknownKind marks event kinds this client does not know. They are
// dropped where they are read; newer servers may emit kinds we skip.
var ErrUnknownKind = fmt.Errorf("unknown event kind")

type PlayerCreated struct {
	SeatID    int               `json:"seat_id"`
	PlayerID  string            `json:"player_id"`
	PublicKey protocol.HexField `json:"public_key"`
}

// HandCreated opens a hand: participant counts plus the full opening
// snapshot, which this client stores opaquely.
type HandCreated struct {
	GameID        string          `json:"game_id"`
	HandID        string          `json:"hand_id"`
	PlayerCount   int             `json:"player_count"`
	ShufflerCount int             `json:"shuffler_count"`
	Snapshot      json.RawMessage `json:"snapshot,omitempty"`
}

type CommunityDecrypted struct {
	CardPosition int    `json:"card_position"`
	Card         string `json:"card"`
}

type CardDecryptable struct {
	Seat         int `json:"seat"`
	CardPosition int `json:"card_position"`
}

type HoleCardsDecrypted struct {
	Seat         int    `json:"seat"`
	CardPosition int    `json:"card_position"`
	Card         string `json:"card"`
}

// Event is one decoded live-feed delivery. Exactly one payload pointer
// matching Kind is set; hand_completed carries none.
type Event struct {
	Kind Kind
	ID   string

	PlayerCreated      *PlayerCreated
	HandCreated        *HandCreated
	GameEvent          *protocol.FinalizedEnvelope
	CommunityDecrypted *CommunityDecrypted
	CardDecryptable    *CardDecryptable
	HoleCardsDecrypted *HoleCardsDecrypted
}

// Decode validates one raw delivery. game_event payloads go through
// the full envelope codec; a failure there must be treated as if the
// message never arrived so the sequencer can fetch it as a gap later.
func Decode(kind, id string, data []byte) (Event, error) {
	ev := Event{Kind: Kind(kind), ID: id}
	switch ev.Kind {
	case KindPlayerCreated:
		var p PlayerCreated
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, fmt.Errorf("player_created: %w", err)
		}
		ev.PlayerCreated = &p
	case KindHandCreated:
		var h HandCreated
		if err := json.Unmarshal(data, &h); err != nil {
			return Event{}, fmt.Errorf("hand_created: %w", err)
		}
		if h.HandID == "" || h.GameID == "" {
			return Event{}, fmt.Errorf("hand_created: missing hand_id or game_id")
		}
		if h.PlayerCount <= 0 {
			return Event{}, fmt.Errorf("hand_created: player_count %d", h.PlayerCount)
		}
		ev.HandCreated = &h
	case KindGameEvent:
		fin, err := protocol.DecodeFinalizedEnvelope(data)
		if err != nil {
			return Event{}, err
		}
		ev.GameEvent = &fin
	case KindCommunityDecrypted:
		var c CommunityDecrypted
		if err := json.Unmarshal(data, &c); err != nil {
			return Event{}, fmt.Errorf("community_decrypted: %w", err)
		}
		ev.CommunityDecrypted = &c
	case KindCardDecryptable:
		var c CardDecryptable
		if err := json.Unmarshal(data, &c); err != nil {
			return Event{}, fmt.Errorf("card_decryptable: %w", err)
		}
		ev.CardDecryptable = &c
	case KindHoleCardsDecrypted:
		var c HoleCardsDecrypted
		if err := json.Unmarshal(data, &c); err != nil {
			return Event{}, fmt.Errorf("hole_cards_decrypted: %w", err)
		}
		if c.Card == "" {
			return Event{}, fmt.Errorf("hole_cards_decrypted: missing card")
		}
		ev.HoleCardsDecrypted = &c
	case KindHandCompleted:
		// Terminal sentinel, no payload.
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return ev, nil
}
