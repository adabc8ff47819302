// Package auth owns the bearer-token lifecycle for one client instance:
// acquire, keep-alive renewal and invalidation against three independently
// configured endpoints.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/restbound/restbound/pkg/transport"
)

// TokenTTL is the lifetime granted to a token by a successful authenticate or
// keep-alive response.
const TokenTTL = 30 * time.Minute

// ErrCredentialsDiscarded is returned by EnsureValid after Invalidate has
// dropped the credential pair; no further authentication is possible on this
// instance.
var ErrCredentialsDiscarded = errors.New("auth: credentials discarded, client is closed")

// Error reports a non-success response from an auth endpoint.
type Error struct {
	Op     string // authenticate, keep-alive or invalidate
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.Status, e.Body)
}

// State is the manager's position in the token lifecycle.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Endpoints are the absolute URLs of the three token-lifecycle calls.
type Endpoints struct {
	Token      string
	KeepAlive  string
	Invalidate string
}

// Credentials is the basic-auth pair used for initial acquisition.
type Credentials struct {
	Username string
	Password string
}

// Doer executes HTTP requests. Satisfied by *transport.Transport.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Result, error)
}

// Manager guards the token state for one client. It is safe for concurrent
// use; overlapping refreshes collapse into a single network round-trip.
type Manager struct {
	doer     Doer
	eps      Endpoints
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	creds  *Credentials
	token  string
	expiry time.Time
}

// NewManager builds a Manager in the Unauthenticated state.
func NewManager(doer Doer, eps Endpoints, creds Credentials, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		doer:     doer,
		eps:      eps,
		creds:    &creds,
		logger:   logger.With(zap.String("component", "auth")),
		interval: TokenTTL,
		now:      time.Now,
	}
}

// State reports the current lifecycle state. The expiry check is lazy; no
// background timer runs.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.token == "":
		return Unauthenticated
	case m.now().Before(m.expiry):
		return Authenticated
	default:
		return Expired
	}
}

// Token returns the currently held bearer token, or "" when absent.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// EnsureValid guarantees a live token before a dispatch: it authenticates
// when none is held and renews via keep-alive when the held one has expired.
// Concurrent callers share one in-flight refresh.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if m.valid() {
		return nil
	}
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		// A caller that lost the race may arrive after the winning
		// flight already refreshed.
		if m.valid() {
			return nil, nil
		}
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != "" && m.now().Before(m.expiry)
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	creds := m.creds
	m.mu.Unlock()

	if creds == nil {
		return ErrCredentialsDiscarded
	}

	var (
		req transport.Request
		op  string
	)
	if token == "" {
		op = "authenticate"
		req = transport.Request{
			Method: http.MethodPost,
			URL:    m.eps.Token,
			Header: http.Header{
				"Accept":        []string{"application/json"},
				"Authorization": []string{basicAuth(creds.Username, creds.Password)},
			},
		}
	} else {
		op = "keep-alive"
		req = transport.Request{
			Method: http.MethodPost,
			URL:    m.eps.KeepAlive,
			Header: http.Header{
				"Accept":        []string{"application/json"},
				"Authorization": []string{"Bearer " + token},
			},
		}
	}
	m.logger.Debug("refreshing token", zap.String("op", op), zap.String("url", req.URL))

	res, err := m.doer.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.Status != http.StatusOK {
		return &Error{Op: op, Status: res.Status, Body: string(res.Body)}
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil || payload.Token == "" {
		return &Error{Op: op, Status: res.Status, Body: "response carried no token"}
	}

	m.mu.Lock()
	m.token = payload.Token
	m.expiry = m.now().Add(m.interval)
	m.mu.Unlock()
	return nil
}

// Invalidate releases the token server-side and discards the credential pair.
// The held token is always cleared, even when the endpoint rejects the call,
// so the instance cannot authenticate again.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.token = ""
	m.expiry = time.Time{}
	m.creds = nil
	m.mu.Unlock()

	if token == "" {
		return nil
	}

	res, err := m.doer.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    m.eps.Invalidate,
		Header: http.Header{
			"Accept":        []string{"*/*"},
			"Authorization": []string{"Bearer " + token},
		},
	})
	if err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	if res.Status != http.StatusNoContent {
		return &Error{Op: "invalidate", Status: res.Status, Body: string(res.Body)}
	}
	m.logger.Debug("token invalidated")
	return nil
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
