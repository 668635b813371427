// Package session owns the process-wide login state that gates every
// privileged input component.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotAuthorized is returned by RequireAuthorized before any successful login.
	ErrNotAuthorized = errors.New("session: authentication required")

	// ErrDenied is returned by Authenticate when the credential check fails.
	ErrDenied = errors.New("session: credentials rejected")
)

// tokenMask is XORed into every token byte. Obfuscation only.
const tokenMask = 0x5A

// Identity is what the operator types at login.
type Identity struct {
	Username string
	Password string
}

// Session is the material derived at a successful login.
type Session struct {
	ID        string
	Username  string
	Token     []byte
	Material  string // opaque value handed back by the credential check
	CreatedAt time.Time
}

// CredentialChecker validates a username/password pair. Implementations may
// call out to a server; material is opaque to the guard.
type CredentialChecker interface {
	Check(ctx context.Context, username, password string) (ok bool, material string, err error)
}

// MachineIdentity provides machine-identifying strings mixed into the token.
// Empty strings are acceptable when the platform cannot provide them.
type MachineIdentity interface {
	MachineGUID() string
	VolumeSerial() string
}

// Authorizer is implemented by Guard and accepted by privileged components.
type Authorizer interface {
	RequireAuthorized() error
}

// Guard holds the current session. Writes happen only at login; reads are
// lock-free from any goroutine.
type Guard struct {
	checker CredentialChecker
	machine MachineIdentity
	nonce   [16]byte
	current atomic.Pointer[Session]
	now     func() time.Time
}

// NewGuard creates a guard with a fresh per-process nonce.
func NewGuard(checker CredentialChecker, machine MachineIdentity) (*Guard, error) {
	g := &Guard{
		checker: checker,
		machine: machine,
		now:     time.Now,
	}
	if _, err := rand.Read(g.nonce[:]); err != nil {
		return nil, fmt.Errorf("session nonce: %w", err)
	}
	return g, nil
}

// Authenticate runs the credential check and, on success, replaces the
// current session. On failure the current session is left untouched.
func (g *Guard) Authenticate(ctx context.Context, id Identity) (*Session, error) {
	ok, material, err := g.checker.Check(ctx, id.Username, id.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDenied, err)
	}
	if !ok {
		return nil, ErrDenied
	}

	var guid, serial string
	if g.machine != nil {
		guid = g.machine.MachineGUID()
		serial = g.machine.VolumeSerial()
	}

	now := g.now()
	s := &Session{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Username:  id.Username,
		Token:     deriveToken(g.nonce[:], id.Username, id.Password, guid, serial),
		Material:  material,
		CreatedAt: now,
	}
	g.current.Store(s)

	log.WithField("session", s.ID).Infof("Session: %s logged in", id.Username)
	return s, nil
}

// RequireAuthorized fails with ErrNotAuthorized when no session is present.
// The token content is not inspected: any login authorizes.
func (g *Guard) RequireAuthorized() error {
	if !g.Authorized() {
		return ErrNotAuthorized
	}
	return nil
}

// Authorized reports whether a non-empty session token is present.
func (g *Guard) Authorized() bool {
	s := g.current.Load()
	return s != nil && len(s.Token) > 0
}

// Current returns the active session or nil.
func (g *Guard) Current() *Session {
	return g.current.Load()
}

// deriveToken computes SHA-256(nonce || user|pass|guid|serial) and masks
// every byte.
func deriveToken(nonce []byte, username, password, guid, serial string) []byte {
	h := sha256.New()
	h.Write(nonce)
	h.Write([]byte(username + "|" + password + "|" + guid + "|" + serial))
	sum := h.Sum(nil)
	for i := range sum {
		sum[i] ^= tokenMask
	}
	return sum
}
