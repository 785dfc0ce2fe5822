package httptransport

import (
	"encoding/json"
	"net/http"

	"dealwatch/internal/game"
	"dealwatch/internal/observer"
)

// stateView flattens the reconstructed hand for JSON consumers; the
// card map keys are not directly serializable.
type stateView struct {
	game.State
	Cards []game.CardEntry `json:"cards"`
}

func StateHandler(obs *observer.Observer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := obs.State()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stateView{State: s, Cards: s.CardList()})
	}
}
