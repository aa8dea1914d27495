package api

import (
	"net/http"
)

type healthResponse struct {
	Status           string `json:"status"`
	EventSubscribers int    `json:"event_subscribers"`
	WebsocketClients int    `json:"websocket_clients"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		EventSubscribers: s.broker.Subscribers(),
		WebsocketClients: s.hub.Clients(),
	})
}
