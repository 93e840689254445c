package steam

import (
	"errors"
	"net/http"

	"booster-trader/internal/cache"
)

// Session is the cookie state passed into every market call. It is an
// explicit value, not client-global state: calls that receive updated
// cookies report the change and the caller decides whether to flush.
type Session map[string]string

// LoadSession reads stored cookies, returning an empty session when the
// file does not exist yet.
func LoadSession(store *cache.Store, file string) (Session, error) {
	s := Session{}
	if err := store.Load(file, &s); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	if s == nil {
		s = Session{}
	}
	return s, nil
}

// Save writes the session through to disk.
func (s Session) Save(store *cache.Store, file string) error {
	return store.Save(file, s)
}

// Absorb merges response cookies into the session and reports whether any
// value actually changed, so the caller can skip redundant disk writes.
func (s Session) Absorb(cookies []*http.Cookie) bool {
	changed := false
	for _, c := range cookies {
		if c.Name == "" || c.Value == "" {
			continue
		}
		if s[c.Name] != c.Value {
			s[c.Name] = c.Value
			changed = true
		}
	}
	return changed
}

// Authenticated reports whether the session carries a login token.
func (s Session) Authenticated() bool {
	return s["steamLoginSecure"] != ""
}
