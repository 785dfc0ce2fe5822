package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType tags the closed set of protocol message variants.
type MessageType string

const (
	MsgShuffle           MessageType = "shuffle"
	MsgBlinding          MessageType = "blinding"
	MsgPartialUnblinding MessageType = "partial_unblinding"
	MsgPlayerPreflop     MessageType = "player_preflop"
	MsgPlayerFlop        MessageType = "player_flop"
	MsgPlayerTurn        MessageType = "player_turn"
	MsgPlayerRiver       MessageType = "player_river"
	MsgShowdown          MessageType = "showdown"
)

// Message is the tagged union of protocol payloads. Exactly one of the
// variant pointers is non-nil, matching Type. Cryptographic contents
// (ciphertexts, proofs, scalars) are validated for shape only.
type Message struct {
	Type MessageType

	Shuffle           *ShuffleMessage
	Blinding          *ShareMessage
	PartialUnblinding *ShareMessage
	PlayerAction      *PlayerActionMessage
	Showdown          *ShowdownMessage
}

// Ciphertext is an ElGamal pair carried as two hex-encoded points.
type Ciphertext struct {
	C1 HexField `json:"c1"`
	C2 HexField `json:"c2"`
}

// ShuffleMessage carries one shuffler's re-encrypted deck and its
// shuffle proof.
type ShuffleMessage struct {
	Deck  []Ciphertext `json:"deck"`
	Proof HexField     `json:"proof"`
}

// ShareMessage carries one participant's blinding or partial
// unblinding contribution for a single card in the deck.
type ShareMessage struct {
	CardInDeckPosition int      `json:"card_in_deck_position"`
	Share              HexField `json:"share"`
	Proof              HexField `json:"proof"`
}

// PlayerActionMessage carries a betting-street action. The observer
// only surfaces these as status text.
type PlayerActionMessage struct {
	Action string `json:"action"`
	Amount int64  `json:"amount,omitempty"`
}

// ShowdownMessage carries the final card openings.
type ShowdownMessage struct {
	Openings []HexField `json:"openings"`
}

type messageWire struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return fmt.Errorf("message: missing type")
	}
	if len(w.Value) == 0 {
		return fmt.Errorf("message %s: missing value", w.Type)
	}
	m.Type = MessageType(w.Type)
	switch m.Type {
	case MsgShuffle:
		var v ShuffleMessage
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return fmt.Errorf("message shuffle: %w", err)
		}
		if len(v.Deck) == 0 {
			return fmt.Errorf("message shuffle: empty deck")
		}
		for i, ct := range v.Deck {
			if !validHex(ct.C1) || !validHex(ct.C2) {
				return fmt.Errorf("message shuffle: deck[%d]: malformed ciphertext", i)
			}
		}
		if !validHex(v.Proof) {
			return fmt.Errorf("message shuffle: malformed proof")
		}
		m.Shuffle = &v
	case MsgBlinding, MsgPartialUnblinding:
		var v ShareMessage
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return fmt.Errorf("message %s: %w", m.Type, err)
		}
		if v.CardInDeckPosition < 0 || v.CardInDeckPosition > 51 {
			return fmt.Errorf("message %s: card_in_deck_position %d out of range", m.Type, v.CardInDeckPosition)
		}
		if !validHex(v.Share) {
			return fmt.Errorf("message %s: malformed share", m.Type)
		}
		if !validHex(v.Proof) {
			return fmt.Errorf("message %s: malformed proof", m.Type)
		}
		if m.Type == MsgBlinding {
			m.Blinding = &v
		} else {
			m.PartialUnblinding = &v
		}
	case MsgPlayerPreflop, MsgPlayerFlop, MsgPlayerTurn, MsgPlayerRiver:
		var v PlayerActionMessage
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return fmt.Errorf("message %s: %w", m.Type, err)
		}
		if v.Action == "" {
			return fmt.Errorf("message %s: missing action", m.Type)
		}
		m.PlayerAction = &v
	case MsgShowdown:
		var v ShowdownMessage
		if err := json.Unmarshal(w.Value, &v); err != nil {
			return fmt.Errorf("message showdown: %w", err)
		}
		for i, op := range v.Openings {
			if !validHex(op) {
				return fmt.Errorf("message showdown: openings[%d]: malformed", i)
			}
		}
		m.Showdown = &v
	default:
		return fmt.Errorf("message: unknown type %q", w.Type)
	}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	var value any
	switch m.Type {
	case MsgShuffle:
		value = m.Shuffle
	case MsgBlinding:
		value = m.Blinding
	case MsgPartialUnblinding:
		value = m.PartialUnblinding
	case MsgPlayerPreflop, MsgPlayerFlop, MsgPlayerTurn, MsgPlayerRiver:
		value = m.PlayerAction
	case MsgShowdown:
		value = m.Showdown
	default:
		return nil, fmt.Errorf("message: unknown type %q", m.Type)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageWire{Type: string(m.Type), Value: raw})
}
