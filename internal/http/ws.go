package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/courier-dispatch/internal/models"
)

var upgrader = websocket.Upgrader{}

// handleWS serves the persistent rider channel. Every connection is a
// viewer subscription to that rider's stream; frames received from the
// connection are treated as location samples from the rider's own device
// and go through the same relay path as the POST fallback.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["rider_id"]
	if riderID == "" {
		http.Error(w, "rider id required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		return
	}
	session := s.Registry.Subscribe(riderID, conn)
	defer func() {
		// a disconnect removes only this session, nobody else's
		s.Registry.Unsubscribe(riderID, session)
		_ = conn.Close()
	}()

	for {
		var report models.LocationReport
		if err := conn.ReadJSON(&report); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("ws read error", "rider_id", riderID, "error", err)
			}
			return
		}
		if err := report.Validate(); err != nil {
			s.logger.Debug("dropping malformed location frame", "rider_id", riderID, "error", err)
			continue
		}
		if _, err := s.Relay.Report(r.Context(), riderID, *report.Latitude, *report.Longitude); err != nil {
			s.logger.Warn("ws location report failed", "rider_id", riderID, "error", err)
		}
	}
}
