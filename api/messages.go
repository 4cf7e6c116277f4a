package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

type messageRequest struct {
	Content string `json:"content" validate:"required"`
	ChatId  string `json:"chatId" validate:"required"`
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	req := messageRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	message, err := s.messages.AppendMessage(r.Context(), UserFromContext(r.Context()).Id, req.ChatId, req.Content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, message)
}

func (s *Server) allMessagesHandler(w http.ResponseWriter, r *http.Request) {
	chatId := mux.Vars(r)["chatId"]
	messages, err := s.messages.ListMessages(r.Context(), UserFromContext(r.Context()).Id, chatId)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondCached(w, r, messageVersions(messages), messages)
}
