package api

import (
	"net/http"

	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/types"
)

// websocketHandler upgrades the connection and hands it to the hub. A token may be given as bearer token or as
// "token" query parameter, the connection is then bound to that user.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userId := ""
	if token != "" {
		user, err := s.authenticate(r.Context(), token)
		if err != nil {
			respondError(w, r, err)
			return
		}
		userId = user.Id
	} else if s.requireToken {
		respondError(w, r, types.Unauthorized("not authorized, no token"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		globals.AppLogger.Warn("websocket upgrade error", "error", err)
		return
	}
	s.hub.Serve(conn, userId)
}
