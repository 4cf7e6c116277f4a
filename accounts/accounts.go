// Package accounts implements registration, login and user lookup on top of the persister and the session store.
package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tcriess/bingo-chat/auth"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/persistence"
	"github.com/tcriess/bingo-chat/types"
)

var validate = newValidator()

const errPasswordTooLong = "password must not be longer than 72 bytes"

func newValidator() *validator.Validate {
	v := validator.New()
	// bcrypt limits the byte length, the builtin max tag counts runes
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= auth.MaxPasswordLength
	})
	return v
}

type passwordChange struct {
	New string `validate:"required,password"`
}

// TokenIssuer hands out bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userId string) (string, error)
}

type Service struct {
	persister persistence.Persister
	tokens    TokenIssuer
}

func NewService(persister persistence.Persister, tokens TokenIssuer) *Service {
	return &Service{persister: persister, tokens: tokens}
}

// Session is a user together with a freshly issued token.
type Session struct {
	*types.User
	Token string `json:"token"`
}

type registration struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,password"`
}

func (s *Service) Register(ctx context.Context, name, email, password, pic string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Struct(registration{Name: name, Email: email, Password: password}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			switch verrs[0].Tag() {
			case "email":
				return nil, types.InvalidRequest("invalid email address")
			case "password":
				return nil, types.InvalidRequest(errPasswordTooLong)
			}
		}
		return nil, types.InvalidRequest("please enter all the fields")
	}
	if _, err := s.persister.GetUserByEmail(ctx, email); err == nil {
		return nil, types.InvalidRequest("user already exists")
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, types.Internal(err, "could not create the user")
	}
	if pic == "" {
		pic = types.DefaultPic
	}
	user := &types.User{Name: name, Email: email, Password: hash, Pic: pic}
	if err := s.persister.StoreUser(ctx, user); err != nil {
		return nil, err
	}
	globals.AppLogger.Info("registered user", "user", user.Id)
	return s.newSession(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, types.InvalidRequest("please enter all the fields")
	}
	user, err := s.persister.GetUserByEmail(ctx, email)
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	ok, err := auth.ComparePassword(password, user.Password)
	if err != nil {
		return nil, types.Internal(err, "could not verify credentials")
	}
	if !ok {
		return nil, types.Unauthorized("invalid credentials")
	}
	return s.newSession(user)
}

func (s *Service) GetUser(ctx context.Context, userId string) (*types.User, error) {
	return s.persister.GetUser(ctx, userId)
}

// Search returns all users except the requester whose name or email contains keyword (case-insensitive).
func (s *Service) Search(ctx context.Context, requesterId, keyword string) ([]*types.User, error) {
	return s.persister.SearchUsers(ctx, strings.TrimSpace(keyword), requesterId)
}

func (s *Service) ChangePassword(ctx context.Context, userId, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return types.InvalidRequest("please enter all the fields")
	}
	if err := validate.Struct(passwordChange{New: newPassword}); err != nil {
		return types.InvalidRequest(errPasswordTooLong)
	}
	user, err := s.persister.GetUser(ctx, userId)
	if err != nil {
		return err
	}
	ok, err := auth.ComparePassword(oldPassword, user.Password)
	if err != nil {
		return types.Internal(err, "could not verify credentials")
	}
	if !ok {
		return types.Unauthorized("invalid credentials")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return types.Internal(err, "could not change the password")
	}
	return s.persister.UpdatePassword(ctx, userId, hash)
}

func (s *Service) newSession(user *types.User) (*Session, error) {
	token, err := s.tokens.Issue(user.Id)
	if err != nil {
		return nil, types.Internal(err, "could not issue token")
	}
	return &Session{User: user, Token: token}, nil
}
