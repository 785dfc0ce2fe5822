// Package handler maps in-order live-feed events to state-machine
// actions, tracking the cross-cutting counters no single message
// carries: shuffle progress and the one-shot shuffle→dealing flip.
package handler

import (
	"fmt"

	"dealwatch/internal/game"
	"dealwatch/internal/protocol"
	"dealwatch/internal/stream"
)

// Context is the per-hand dispatch state. Construct once per hand and
// Reset between hands; it is owned by the observer's run loop and not
// safe for concurrent use.
type Context struct {
	viewerSeat      int
	viewerPublicKey string

	playerCount        int
	totalShuffleEvents int
	shuffleEvents      int
	dealingStarted     bool
	dealt              map[game.CardKey]bool
}

func New(viewerSeat int, viewerPublicKey string) *Context {
	c := &Context{viewerSeat: viewerSeat, viewerPublicKey: viewerPublicKey}
	c.Reset()
	return c
}

// Reset clears all per-hand counters. Must be called between hands;
// stale shuffle counts would mis-time the next hand's phase flips.
func (c *Context) Reset() {
	c.playerCount = 0
	c.totalShuffleEvents = 0
	c.shuffleEvents = 0
	c.dealingStarted = false
	c.dealt = map[game.CardKey]bool{}
}

// CardForDeckPosition maps a deck slot (0..51, two consecutive slots
// per seat in seat order) to its owning seat and per-seat card index.
func CardForDeckPosition(pos int) game.CardKey {
	return game.CardKey{Seat: pos / 2, Index: pos % 2}
}

// Handle turns one decoded event into zero or more actions. Unknown
// message tags and per-message oddities no-op; nothing here may stop
// the stream.
func (c *Context) Handle(ev stream.Event) []game.Action {
	switch ev.Kind {
	case stream.KindHandCreated:
		return c.handleHandCreated(*ev.HandCreated)

	case stream.KindPlayerCreated:
		return []game.Action{{
			Type:   game.ActionUpdateStatus,
			Status: fmt.Sprintf("seat %d joined", ev.PlayerCreated.SeatID),
		}}

	case stream.KindGameEvent:
		return c.handleGameEvent(*ev.GameEvent)

	case stream.KindCardDecryptable:
		return []game.Action{{
			Type:      game.ActionCardDecryptable,
			Seat:      ev.CardDecryptable.Seat,
			CardIndex: ev.CardDecryptable.CardPosition,
		}}

	case stream.KindHoleCardsDecrypted:
		return []game.Action{{
			Type:      game.ActionCardRevealed,
			Seat:      ev.HoleCardsDecrypted.Seat,
			CardIndex: ev.HoleCardsDecrypted.CardPosition,
			Card:      game.Card(ev.HoleCardsDecrypted.Card),
		}}

	case stream.KindCommunityDecrypted:
		return []game.Action{{
			Type:   game.ActionUpdateStatus,
			Status: fmt.Sprintf("community card %d: %s", ev.CommunityDecrypted.CardPosition, ev.CommunityDecrypted.Card),
		}}

	case stream.KindHandCompleted:
		return []game.Action{{Type: game.ActionHandComplete}}

	default:
		// Forward compatible: kinds we do not know are skipped.
		return nil
	}
}

func (c *Context) handleHandCreated(h stream.HandCreated) []game.Action {
	c.Reset()
	c.playerCount = h.PlayerCount
	actions := []game.Action{{
		Type:            game.ActionInitGame,
		GameID:          h.GameID,
		HandID:          h.HandID,
		ViewerSeat:      c.viewerSeat,
		ViewerPublicKey: c.viewerPublicKey,
		PlayerCount:     h.PlayerCount,
	}}
	if h.ShufflerCount <= 0 {
		// No authoritative shuffler count means no honest way to report
		// shuffle progress; surface it instead of guessing.
		return append(actions, game.Action{
			Type: game.ActionSetError,
			Err:  "hand_created carried no shuffler count",
		})
	}
	c.totalShuffleEvents = h.ShufflerCount
	return append(actions, game.Action{
		Type:               game.ActionStartShuffle,
		TotalShuffleEvents: h.ShufflerCount,
	})
}

func (c *Context) handleGameEvent(fin protocol.FinalizedEnvelope) []game.Action {
	processed := game.Action{
		Type:         game.ActionEventProcessed,
		SeqID:        fin.SnapshotSequenceID,
		AppliedPhase: fin.AppliedPhase,
	}
	if fin.SnapshotStatus == protocol.SnapshotFailure {
		// The ledger recorded the message but rejected its effect;
		// only the watermark moves.
		return []game.Action{processed}
	}

	var actions []game.Action
	switch fin.Message.Value.Type {
	case protocol.MsgShuffle:
		c.shuffleEvents++
		actions = append(actions, game.Action{Type: game.ActionShuffleProgress})
		if c.totalShuffleEvents > 0 && c.shuffleEvents >= c.totalShuffleEvents {
			actions = append(actions, game.Action{Type: game.ActionShuffleComplete})
		}

	case protocol.MsgBlinding:
		if !c.dealingStarted {
			// First blinding message flips to dealing exactly once, no
			// matter how many more follow.
			c.dealingStarted = true
			actions = append(actions,
				game.Action{Type: game.ActionShuffleComplete},
				game.Action{Type: game.ActionStartDealing},
			)
		}
		actions = append(actions, c.shareActions(fin, fin.Message.Value.Blinding, game.ActionBlindingShareReceived)...)

	case protocol.MsgPartialUnblinding:
		actions = append(actions, c.shareActions(fin, fin.Message.Value.PartialUnblinding, game.ActionPartialUnblindingShare)...)

	case protocol.MsgPlayerPreflop, protocol.MsgPlayerFlop, protocol.MsgPlayerTurn, protocol.MsgPlayerRiver:
		if fin.Message.Value.PlayerAction != nil {
			actions = append(actions, game.Action{
				Type:   game.ActionUpdateStatus,
				Status: betStatus(fin),
			})
		}

	case protocol.MsgShowdown:
		actions = append(actions, game.Action{Type: game.ActionUpdateStatus, Status: "showdown"})

	default:
		// Unrecognized message tag: forward-compatible no-op.
	}
	return append(actions, processed)
}

func (c *Context) shareActions(fin protocol.FinalizedEnvelope, share *protocol.ShareMessage, kind game.ActionType) []game.Action {
	if share == nil {
		return nil
	}
	key := CardForDeckPosition(share.CardInDeckPosition)
	if c.playerCount > 0 && key.Seat >= c.playerCount {
		// A deck slot beyond the seated players carries no hole card
		// for this hand.
		return nil
	}
	var actions []game.Action
	if !c.dealt[key] {
		c.dealt[key] = true
		actions = append(actions, game.Action{
			Type:      game.ActionCardDealt,
			Seat:      key.Seat,
			CardIndex: key.Index,
		})
	}
	return append(actions, game.Action{
		Type:       kind,
		Seat:       key.Seat,
		CardIndex:  key.Index,
		SourceSeat: fin.Actor.Seat(),
		Share:      string(share.Share),
	})
}

func betStatus(fin protocol.FinalizedEnvelope) string {
	act := fin.Message.Value.PlayerAction
	street := string(fin.Message.Value.Type)
	seat := fin.Actor.Seat()
	if act.Amount > 0 {
		return fmt.Sprintf("%s: seat %d %s %d", street, seat, act.Action, act.Amount)
	}
	return fmt.Sprintf("%s: seat %d %s", street, seat, act.Action)
}
