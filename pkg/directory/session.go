package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// UserInfo identifies the signed-in counsellor.
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Auth is the persisted token/user pair.
type Auth struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         UserInfo `json:"user"`
}

// Profile is the persisted counsellor profile.
type Profile struct {
	DisplayName    string `json:"display_name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization"`
	Phone          string `json:"phone"`
	Slug           string `json:"slug"`
}

type sessionFile struct {
	Auth    *Auth    `json:"auth,omitempty"`
	Profile *Profile `json:"profile,omitempty"`
}

// SessionStore persists the auth pair and profile as JSON in a single file.
// The file is re-read on every Token call, so a token written by another
// process (or a refresh flow) is picked up on the next request.
type SessionStore struct {
	path string
	mu   sync.Mutex
}

// NewSessionStore builds a store at the given path, creating parent
// directories as needed.
func NewSessionStore(path string) (*SessionStore, error) {
	if path == "" {
		return nil, errors.New("session store path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &SessionStore{path: path}, nil
}

func (s *SessionStore) load() (sessionFile, error) {
	var state sessionFile
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("read session file: %w", err)
	}
	if len(raw) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("parse session file: %w", err)
	}
	return state, nil
}

func (s *SessionStore) save(state sessionFile) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// SetAuth persists the token/user pair.
func (s *SessionStore) SetAuth(auth Auth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	state.Auth = &auth
	return s.save(state)
}

// Auth returns the persisted pair, reporting whether one exists.
func (s *SessionStore) Auth() (Auth, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return Auth{}, false, err
	}
	if state.Auth == nil {
		return Auth{}, false, nil
	}
	return *state.Auth, true, nil
}

// SetProfile persists the counsellor profile.
func (s *SessionStore) SetProfile(profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	state.Profile = &profile
	return s.save(state)
}

// Profile returns the persisted profile, reporting whether one exists.
func (s *SessionStore) Profile() (Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return Profile{}, false, err
	}
	if state.Profile == nil {
		return Profile{}, false, nil
	}
	return *state.Profile, true, nil
}

// Clear removes the session file, implementing logout.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Token implements TokenSource by reading the access token from disk at
// call time.
func (s *SessionStore) Token() (string, error) {
	auth, ok, err := s.Auth()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return auth.AccessToken, nil
}
