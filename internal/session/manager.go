package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/cart"
	"github.com/ycliao/daigou-storefront/internal/domain"
)

const cookieName = "storefront_session"

// Session is one authenticated browser session: the remote API token, the
// identity it belongs to, and the session's own cart store. Nothing here is
// shared across sessions and nothing survives a process restart; the remote
// API is the only durable state.
type Session struct {
	ID        string
	Token     string
	User      domain.User
	Client    *api.Client
	Cart      *cart.Store
	CreatedAt time.Time
}

// Manager owns the session lifecycle: created on login, destroyed on
// logout. Destroying a session closes its cart store so responses still in
// flight land nowhere.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

func (m *Manager) Create(token string, user domain.User, client *api.Client, store *cart.Store) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		Client:    client,
		Cart:      store,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Cart.Close()
	}
}

// FromRequest resolves the session referenced by the request's cookie.
func (m *Manager) FromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return nil, false
	}
	return m.Get(cookie.Value)
}

func SetCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
