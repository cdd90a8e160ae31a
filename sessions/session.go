package sessions

import (
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// TokenSet is the access/refresh token pair with its lifetime. It is always
// read and written as a unit.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds, as of issuance
}

// Session is the per-user server-side record of tokens and navigation-resume state.
// All access goes through methods holding the session lock, so a concurrent reader
// never sees a half-updated token triple.
type Session struct {
	mu            sync.Mutex
	data          sessionData
	loadedVersion int // token version this copy was decoded with
}

type sessionData struct {
	ID              string    `json:"id"`
	AccessToken     string    `json:"access_token,omitempty"`
	RefreshToken    string    `json:"refresh_token,omitempty"`
	ExpiresIn       int       `json:"expires_in,omitempty"`
	TokenIssuedAt   time.Time `json:"token_issued_at,omitempty"`
	TokenVersion    int       `json:"token_version,omitempty"` // bumped on every token change
	PendingRedirect string    `json:"pending_redirect,omitempty"` // where to resume after login
	UserID          string    `json:"user_id,omitempty"`          // external id cached from the provider
	RecentDatasets  []string  `json:"recent_datasets,omitempty"`  // anonymous history, most recent first
	CreatedAt       time.Time `json:"created_at"`
}

func New(id string, createdAt time.Time) *Session {
	return &Session{data: sessionData{ID: id, CreatedAt: createdAt}}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ID
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreatedAt
}

// Tokens returns a consistent snapshot of the token triple and when it was issued.
func (s *Session) Tokens() (TokenSet, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TokenSet{
		AccessToken:  s.data.AccessToken,
		RefreshToken: s.data.RefreshToken,
		ExpiresIn:    s.data.ExpiresIn,
	}, s.data.TokenIssuedAt
}

func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AccessToken
}

// SetTokens replaces all three token fields. There is no partial update.
func (s *Session) SetTokens(ts TokenSet, issuedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.AccessToken = ts.AccessToken
	s.data.RefreshToken = ts.RefreshToken
	s.data.ExpiresIn = ts.ExpiresIn
	s.data.TokenIssuedAt = issuedAt
	s.data.TokenVersion++
}

// CompareAndSetTokens replaces the triple only if the refresh token is still
// the one the caller refreshed with. It reports whether the swap happened.
func (s *Session) CompareAndSetTokens(oldRefreshToken string, ts TokenSet, issuedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.RefreshToken != oldRefreshToken {
		return false
	}
	s.data.AccessToken = ts.AccessToken
	s.data.RefreshToken = ts.RefreshToken
	s.data.ExpiresIn = ts.ExpiresIn
	s.data.TokenIssuedAt = issuedAt
	s.data.TokenVersion++
	return true
}

func (s *Session) ClearTokens() {
	s.SetTokens(TokenSet{}, time.Time{})
}

// TokenVersion counts token changes over the session's life.
func (s *Session) TokenVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.TokenVersion
}

// ReconcileTokens settles the token triple against stored, the copy currently
// persisted, before s is written over it. If another writer changed the tokens
// since s was loaded, their set is kept unless s also changed its tokens and
// issued them later. It reports whether the stored set was adopted.
func (s *Session) ReconcileTokens(stored *Session) bool {
	stored.mu.Lock()
	theirs := stored.data
	stored.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if theirs.TokenVersion == s.loadedVersion {
		return false
	}
	changed := s.data.TokenVersion != s.loadedVersion
	adopt := !changed || !s.data.TokenIssuedAt.After(theirs.TokenIssuedAt)
	if adopt {
		s.data.AccessToken = theirs.AccessToken
		s.data.RefreshToken = theirs.RefreshToken
		s.data.ExpiresIn = theirs.ExpiresIn
		s.data.TokenIssuedAt = theirs.TokenIssuedAt
		s.data.TokenVersion = theirs.TokenVersion
	} else {
		s.data.TokenVersion = theirs.TokenVersion + 1
	}
	s.loadedVersion = theirs.TokenVersion
	return adopt
}

func (s *Session) PendingRedirect() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.PendingRedirect
}

func (s *Session) SetPendingRedirect(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PendingRedirect = target
}

// PopPendingRedirect returns the stored resume target and clears it.
func (s *Session) PopPendingRedirect() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.data.PendingRedirect
	s.data.PendingRedirect = ""
	return target
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UserID
}

func (s *Session) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.UserID = id
}

// RecentDatasets returns a copy of the anonymous history, most recent first.
func (s *Session) RecentDatasets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.RecentDatasets)
}

// PushRecentDataset moves id to the front of the anonymous history, dropping
// duplicates and anything beyond limit entries.
func (s *Session) PushRecentDataset(id string, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recent := make([]string, 0, limit)
	recent = append(recent, id)
	for _, existing := range s.data.RecentDatasets {
		if len(recent) >= limit {
			break
		}
		if existing != id {
			recent = append(recent, existing)
		}
	}
	s.data.RecentDatasets = recent
}

func (s *Session) ClearRecentDatasets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RecentDatasets = []string{}
}

func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.data)
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var data sessionData
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.loadedVersion = data.TokenVersion
	return nil
}
