package http

import (
	"net/http"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/log"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.users.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.issueToken(w, r, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.issueToken(w, r, http.StatusOK, user)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, status int, user core.User) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		s.fail(w, r, apperrors.Wrap(err, apperrors.CodeInternal, "issue token"))
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Access token issued", log.FieldUserID, user.ID)
	s.ok(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		User:        newUserResponse(user),
	})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.users.Profile(r.Context(), getUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, newProfileResponse(profile))
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.Context(), getUserID(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	s.noContent(w)
}
