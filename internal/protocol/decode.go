package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError marks a payload that failed structural validation. The
// caller drops the single offending message; it must never advance the
// sequence watermark for it, so a later gap fill can re-fetch a good
// copy.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.Reason, e.Err)
	}
	return "decode " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}

// IsDecodeError reports whether err stems from payload validation
// rather than transport or I/O.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// game_event wire shape: the finalized fields travel flattened next to
// the nested signed envelope and are merged before validation.
type finalizedWire struct {
	SnapshotStatus     string          `json:"snapshot_status"`
	FailureReason      string          `json:"failure_reason"`
	AppliedPhase       string          `json:"applied_phase"`
	SnapshotSequenceID *int64          `json:"snapshot_sequence_id"`
	CreatedTimestamp   int64           `json:"created_timestamp"`
	Envelope           json.RawMessage `json:"envelope"`
}

// DecodeFinalizedEnvelope validates a raw game_event payload and
// returns the merged finalized envelope. Pure: no side effects on any
// failure path.
func DecodeFinalizedEnvelope(data []byte) (FinalizedEnvelope, error) {
	var w finalizedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return FinalizedEnvelope{}, decodeErr("game_event", err)
	}
	if w.SnapshotSequenceID == nil {
		return FinalizedEnvelope{}, decodeErr("game_event", fmt.Errorf("missing snapshot_sequence_id"))
	}
	if *w.SnapshotSequenceID < 0 {
		return FinalizedEnvelope{}, decodeErr("game_event", fmt.Errorf("negative snapshot_sequence_id %d", *w.SnapshotSequenceID))
	}
	status := SnapshotStatus(w.SnapshotStatus)
	if status != SnapshotSuccess && status != SnapshotFailure {
		return FinalizedEnvelope{}, decodeErr("game_event", fmt.Errorf("unknown snapshot_status %q", w.SnapshotStatus))
	}
	if status == SnapshotFailure && w.FailureReason == "" {
		return FinalizedEnvelope{}, decodeErr("game_event", fmt.Errorf("failure without reason"))
	}
	phase := Phase(w.AppliedPhase)
	if !knownPhases[phase] {
		return FinalizedEnvelope{}, decodeErr("game_event", fmt.Errorf("unknown applied_phase %q", w.AppliedPhase))
	}
	if len(w.Envelope) == 0 {
		return FinalizedEnvelope{}, decodeErr("game_event", fmt.Errorf("missing envelope"))
	}

	var env Envelope
	if err := json.Unmarshal(w.Envelope, &env); err != nil {
		return FinalizedEnvelope{}, decodeErr("envelope", err)
	}
	if env.HandID == "" || env.GameID == "" {
		return FinalizedEnvelope{}, decodeErr("envelope", fmt.Errorf("missing hand_id or game_id"))
	}
	if !validHex(env.PublicKey) {
		return FinalizedEnvelope{}, decodeErr("envelope", fmt.Errorf("malformed public_key"))
	}
	if !validHex(env.Message.Signature) {
		return FinalizedEnvelope{}, decodeErr("envelope", fmt.Errorf("malformed signature"))
	}
	if env.Message.Transcript != "" && !validHex(env.Message.Transcript) {
		return FinalizedEnvelope{}, decodeErr("envelope", fmt.Errorf("malformed transcript"))
	}

	return FinalizedEnvelope{
		Envelope:           env,
		SnapshotStatus:     status,
		FailureReason:      w.FailureReason,
		AppliedPhase:       phase,
		SnapshotSequenceID: *w.SnapshotSequenceID,
		CreatedTimestamp:   w.CreatedTimestamp,
	}, nil
}
