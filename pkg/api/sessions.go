package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"campuspay/pkg/account"
	"campuspay/pkg/notify"
	"campuspay/pkg/payment"

	"github.com/google/uuid"
)

// SessionHeader carries the token returned by sign-in.
const SessionHeader = "X-Session-Token"

// clientSession is one signed-in client: the account session and its
// payment machine. updates holds at most one pending settlement signal.
type clientSession struct {
	token   string
	account *account.Session
	machine *payment.Machine
	updates chan notify.Event
	done    chan struct{}
	once    sync.Once
}

// signal leaves e pending for the client unless one already is.
func (cs *clientSession) signal(e notify.Event) bool {
	select {
	case cs.updates <- e:
		return true
	default:
		return false
	}
}

func (cs *clientSession) close() {
	cs.once.Do(func() {
		close(cs.done)
		cs.machine.Close()
	})
}

type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*clientSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*clientSession)}
}

func (r *sessionRegistry) add(a *account.Session, m *payment.Machine) *clientSession {
	cs := &clientSession{
		token:   uuid.NewString(),
		account: a,
		machine: m,
		updates: make(chan notify.Event, 1),
		done:    make(chan struct{}),
	}
	r.mu.Lock()
	r.sessions[cs.token] = cs
	r.mu.Unlock()
	return cs
}

func (r *sessionRegistry) get(token string) (*clientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.sessions[token]
	return cs, ok
}

func (r *sessionRegistry) remove(token string) {
	r.mu.Lock()
	cs, ok := r.sessions[token]
	delete(r.sessions, token)
	r.mu.Unlock()
	if ok {
		cs.close()
	}
}

// forAccount returns the open sessions of accountID.
func (r *sessionRegistry) forAccount(accountID string) []*clientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*clientSession
	for _, cs := range r.sessions {
		if cs.account.ID() == accountID {
			out = append(out, cs)
		}
	}
	return out
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*clientSession)
	r.mu.Unlock()
	for _, cs := range sessions {
		cs.close()
	}
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, cs *clientSession)

// authenticated resolves the session token before calling next.
func (s *Server) authenticated(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(SessionHeader))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing "+SessionHeader+" header")
			return
		}
		cs, ok := s.sessions.get(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown or expired session")
			return
		}
		next(w, r, cs)
	}
}

// requestContext bounds store work done for one request.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}
