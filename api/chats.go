package api

import (
	"encoding/json"
	"net/http"

	"github.com/tcriess/bingo-chat/types"
)

type accessChatRequest struct {
	UserId string `json:"userId" validate:"required"`
}

// groupRequest.Users is either a JSON array of user ids or a string holding one.
type groupRequest struct {
	Users json.RawMessage `json:"users" validate:"required"`
	Name  string          `json:"name" validate:"required"`
}

type renameRequest struct {
	ChatId   string `json:"chatId" validate:"required"`
	ChatName string `json:"chatName" validate:"required"`
}

type memberRequest struct {
	ChatId string `json:"chatId" validate:"required"`
	UserId string `json:"userId" validate:"required"`
}

type leaveRequest struct {
	ChatId string `json:"chatId" validate:"required"`
	UserId string `json:"userId"`
}

func parseUserIds(raw json.RawMessage) ([]string, error) {
	ids := make([]string, 0)
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, types.InvalidRequest("users must be a list of user ids")
	}
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return nil, types.InvalidRequest("users must be a list of user ids")
	}
	return ids, nil
}

func (s *Server) accessChatHandler(w http.ResponseWriter, r *http.Request) {
	req := accessChatRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	chat, err := s.directory.GetOrCreateDirectChat(r.Context(), UserFromContext(r.Context()).Id, req.UserId)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chat)
}

func (s *Server) fetchChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := s.directory.ListChatsForUser(r.Context(), UserFromContext(r.Context()).Id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondCached(w, r, chatVersions(chats), chats)
}

func (s *Server) createGroupHandler(w http.ResponseWriter, r *http.Request) {
	req := groupRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	ids, err := parseUserIds(req.Users)
	if err != nil {
		respondError(w, r, err)
		return
	}
	chat, err := s.directory.CreateGroupChat(r.Context(), UserFromContext(r.Context()).Id, ids, req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chat)
}

func (s *Server) renameGroupHandler(w http.ResponseWriter, r *http.Request) {
	req := renameRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	chat, err := s.directory.RenameGroup(r.Context(), UserFromContext(r.Context()).Id, req.ChatId, req.ChatName)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chat)
}

func (s *Server) addToGroupHandler(w http.ResponseWriter, r *http.Request) {
	req := memberRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	chat, err := s.directory.AddMember(r.Context(), UserFromContext(r.Context()).Id, req.ChatId, req.UserId)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chat)
}

func (s *Server) removeFromGroupHandler(w http.ResponseWriter, r *http.Request) {
	req := memberRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	chat, err := s.directory.RemoveMember(r.Context(), UserFromContext(r.Context()).Id, req.ChatId, req.UserId)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chat)
}

func (s *Server) leaveGroupHandler(w http.ResponseWriter, r *http.Request) {
	req := leaveRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user := UserFromContext(r.Context())
	if req.UserId != "" && req.UserId != user.Id {
		respondError(w, r, types.Forbidden("you can only remove yourself from a group"))
		return
	}
	chat, err := s.directory.LeaveGroup(r.Context(), user.Id, req.ChatId)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, chat)
}
