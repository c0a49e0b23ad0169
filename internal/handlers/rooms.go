package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jason-s-yu/dealroom/internal/room"
)

type roomSummary struct {
	Name      string    `json:"name"`
	Players   int       `json:"players"`
	Connected int       `json:"connected"`
	Started   bool      `json:"started"`
	Phase     string    `json:"phase,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListRoomsHandler returns every running room.
func ListRoomsHandler(mgr *room.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := mgr.List(r.Context())
		out := make([]roomSummary, 0, len(infos))
		for _, info := range infos {
			out = append(out, roomSummary{
				Name:      info.Name,
				Players:   info.Players,
				Connected: info.Connected,
				Started:   info.Started,
				Phase:     string(info.Phase),
				CreatedAt: info.CreatedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, "failed to write response", http.StatusInternalServerError)
		}
	}
}

// NewRouter mounts every endpoint.
func NewRouter(mgr *room.Manager, wrap func(http.Handler) http.Handler, ws http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", wrap(http.HandlerFunc(PingHandler)))
	mux.Handle("GET /rooms", wrap(ListRoomsHandler(mgr)))
	mux.Handle("GET /room/ws/{room}", wrap(ws))
	return mux
}
