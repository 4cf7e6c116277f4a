package api

import (
	"net/http"

	"github.com/tcriess/bingo-chat/types"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Pic      string `json:"pic"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	req := registerRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	session, err := s.accounts.Register(r.Context(), req.Name, req.Email, req.Password, req.Pic)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	req := loginRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	session, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) searchUsersHandler(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	users, err := s.accounts.Search(r.Context(), user.Id, r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Revoke(tokenFromContext(r.Context())); err != nil {
		respondError(w, r, types.Internal(err, "could not end the session"))
		return
	}
	s.users.Remove(UserFromContext(r.Context()).Id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) changePasswordHandler(w http.ResponseWriter, r *http.Request) {
	req := changePasswordRequest{}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user := UserFromContext(r.Context())
	if err := s.accounts.ChangePassword(r.Context(), user.Id, req.OldPassword, req.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	s.users.Remove(user.Id)
	w.WriteHeader(http.StatusNoContent)
}
