package game

import "dealwatch/internal/protocol"

// ActionType enumerates the closed set of state transitions.
type ActionType string

const (
	ActionSessionLoading           ActionType = "session_loading"
	ActionInitGame                 ActionType = "init_game"
	ActionStartShuffle             ActionType = "start_shuffle"
	ActionShufflePhaseEnded        ActionType = "shuffle_phase_ended"
	ActionShuffleProgress          ActionType = "shuffle_progress"
	ActionShuffleComplete          ActionType = "shuffle_complete"
	ActionStartDealing             ActionType = "start_dealing"
	ActionCardDealt                ActionType = "card_dealt"
	ActionBlindingShareReceived    ActionType = "blinding_share_received"
	ActionPartialUnblindingShare   ActionType = "partial_unblinding_share_received"
	ActionCardDecryptable          ActionType = "card_decryptable"
	ActionCardRevealed             ActionType = "card_revealed"
	ActionHandComplete             ActionType = "hand_complete"
	ActionUpdateStatus             ActionType = "update_status"
	ActionSetError                 ActionType = "set_error"
	ActionEventProcessed           ActionType = "event_processed"
)

// Action carries one state transition. Fields beyond Type are read
// only by the variants that name them.
type Action struct {
	Type ActionType

	// init_game
	GameID          string
	HandID          string
	ViewerPublicKey string
	ViewerSeat      int
	PlayerCount     int

	// start_shuffle
	TotalShuffleEvents int

	// card targeting (deals, shares, decryptable, reveals)
	Seat      int
	CardIndex int

	// share attribution; protocol.UnknownSeat when the contributor has
	// no seat
	SourceSeat int
	Share      string

	// card_revealed
	Card Card

	// applied-phase mirror and watermark
	AppliedPhase protocol.Phase
	SeqID        int64

	// status / errors
	Status string
	Err    string
}
