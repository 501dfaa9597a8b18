package session

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/storage"
)

// Persisted keys of the session.
const (
	TokenKey = "squid.token"
	UserKey  = "squid.user"
)

// Store persists the session token and user profile. Only the Manager writes to it.
type Store struct {
	storage *storage.Storage
}

func NewStore(s *storage.Storage) *Store {
	return &Store{storage: s}
}

// Token returns the raw bearer token. Storage failures read as no token.
func (s *Store) Token() (string, bool) {
	v, ok := s.storage.Get(TokenKey)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// User returns the cached profile. A corrupt record reads as no user.
func (s *Store) User() (model.UserProfile, bool) {
	v, ok := s.storage.Get(UserKey)
	if !ok || v == "" || v == "null" {
		return model.UserProfile{}, false
	}
	var u model.UserProfile
	if err := json.Unmarshal([]byte(v), &u); err != nil {
		log.Warnf("ignoring unreadable session user: %v", err)
		return model.UserProfile{}, false
	}
	return u, true
}

func (s *Store) Session() model.Session {
	var sess model.Session
	sess.Token, _ = s.Token()
	if u, ok := s.User(); ok {
		sess.User = &u
	}
	return sess
}

// save writes token and user. An empty token or nil user removes that key.
func (s *Store) save(sess model.Session) bool {
	ok := true
	if sess.Token != "" {
		ok = s.storage.Set(TokenKey, sess.Token) && ok
	} else {
		ok = s.storage.Remove(TokenKey) && ok
	}
	if sess.User == nil {
		return s.storage.Remove(UserKey) && ok
	}
	b, err := json.Marshal(sess.User)
	if err != nil {
		log.Warnf("unable to encode session user: %v", err)
		return false
	}
	return s.storage.Set(UserKey, string(b)) && ok
}

// clear removes both keys, attempting each even if the other fails.
func (s *Store) clear() bool {
	userOK := s.storage.Remove(UserKey)
	tokenOK := s.storage.Remove(TokenKey)
	return userOK && tokenOK
}
