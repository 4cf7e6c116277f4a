package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tcriess/bingo-chat/config"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tidwall/buntdb"
)

const (
	sessionKeyPrefix = "session:"
	issuer           = "bingo-chat"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of a session token. The token id (jti) references the session record in the store.
type Claims struct {
	UserId string `json:"id"`
	jwt.RegisteredClaims
}

// SessionStore issues signed bearer tokens and keeps a record of every live session in buntdb, so that tokens can
// be revoked before they expire.
type SessionStore struct {
	secret []byte
	ttl    time.Duration
	db     *buntdb.DB
	lock   *flock.Flock
}

func NewSessionStore(cfg *config.Config) (*SessionStore, error) {
	return OpenSessionStore(cfg.SessionConfig.Path, cfg.SessionConfig.Secret, cfg.SessionConfig.TTL)
}

// OpenSessionStore opens (or creates) the session file at path. Use ":memory:" for a non-persistent store.
// A file backed store is guarded by an exclusive lock file, only one process may use it at a time.
func OpenSessionStore(path, secret string, ttl time.Duration) (*SessionStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret cannot be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	var lock *flock.Flock
	if path != ":memory:" {
		lock = flock.New(path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("session store %s is locked by another process", path)
		}
	}
	db, err := buntdb.Open(path)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, err
	}
	return &SessionStore{secret: []byte(secret), ttl: ttl, db: db, lock: lock}, nil
}

// Issue creates a new session for userId and returns its signed token.
func (s *SessionStore) Issue(userId string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userId,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(sessionKeyPrefix+claims.ID, userId, &buntdb.SetOptions{Expires: true, TTL: s.ttl})
		return err
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *SessionStore) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ID == "" || claims.UserId == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify checks the token's signature and expiry and that its session has not been revoked. It returns the
// user id the token was issued for.
func (s *SessionStore) Verify(tokenString string) (string, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return "", err
	}
	var userId string
	err = s.db.View(func(tx *buntdb.Tx) error {
		var err error
		userId, err = tx.Get(sessionKeyPrefix + claims.ID)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return "", fmt.Errorf("%w: session revoked or expired", ErrInvalidToken)
	}
	if err != nil {
		return "", err
	}
	if userId != claims.UserId {
		return "", ErrInvalidToken
	}
	return userId, nil
}

// Revoke ends the session of the given token. Revoking an unknown session is not an error.
func (s *SessionStore) Revoke(tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(sessionKeyPrefix + claims.ID)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

// Sessions returns the number of live sessions.
func (s *SessionStore) Sessions() (int, error) {
	n := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(sessionKeyPrefix+"*", func(key, value string) bool {
			n++
			return true
		})
	})
	return n, err
}

// Compact rewrites the session file, dropping expired and deleted records.
func (s *SessionStore) Compact() error {
	err := s.db.Shrink()
	if err != nil && !errors.Is(err, buntdb.ErrShrinkInProcess) {
		return err
	}
	globals.AppLogger.Debug("compacted session store")
	return nil
}

func (s *SessionStore) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if uErr := s.lock.Unlock(); uErr != nil && err == nil {
			err = uErr
		}
	}
	return err
}
