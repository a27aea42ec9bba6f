package fnos

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Session is the opaque credential handed out by a successful login.
// It is owned by the SessionManager; callers hold it only for the duration
// of a single API call.
type Session struct {
	Token    string
	IssuedAt time.Time
}

// loginFunc performs the actual login call. Injected so tests can exercise
// the manager without a live appliance.
type loginFunc func(ctx context.Context) (Session, error)

// SessionManager owns the single process-wide session with the appliance.
// It logs in lazily on first use, hands the same session to every caller
// until it is invalidated, and guarantees that no two logins ever run
// concurrently (the mutex is held across the login call).
type SessionManager struct {
	mu      sync.Mutex
	login   loginFunc
	current Session
	valid   bool
	logins  int // total successful logins, readable via Logins() in tests
}

func newSessionManager(login loginFunc) *SessionManager {
	return &SessionManager{login: login}
}

// Ensure returns a valid session, performing a login if none exists or the
// current one is known-invalid. A login failure surfaces as *AuthError and
// is not retried here — retry timing belongs to the next poll cycle.
func (m *SessionManager) Ensure(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		return m.current, nil
	}

	sess, err := m.login(ctx)
	if err != nil {
		if IsAuth(err) || IsTransport(err) || IsMalformed(err) {
			return Session{}, err
		}
		return Session{}, &AuthError{Op: "login", Err: err}
	}

	m.current = sess
	m.valid = true
	m.logins++
	slog.Info("fnos: session established", "issued_at", sess.IssuedAt)
	return sess, nil
}

// Invalidate marks the session as dead so the next Ensure re-logs-in.
// The token is compared so a caller holding a stale session cannot
// invalidate a newer one established in the meantime.
func (m *SessionManager) Invalidate(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.current.Token == s.Token {
		m.valid = false
		slog.Debug("fnos: session invalidated")
	}
}

// Logins returns the number of successful logins performed so far.
func (m *SessionManager) Logins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins
}
