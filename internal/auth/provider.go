package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlasdatatech/mvt-server/internal/apperr"
	"github.com/atlasdatatech/mvt-server/internal/applog"
	"github.com/atlasdatatech/mvt-server/internal/catalog"
)

const tokenTTL = 14 * 24 * time.Hour

// SessionCookieName is the cookie an authenticated browser session
// carries; its value is a JWT minted the same way IssueToken mints a
// bearer token.
const SessionCookieName = "session"

// Provider is the concrete AuthGate: it resolves a request down to a
// User (via bearer JWT or HTTP Basic), issues tokens, and answers the
// group-overlap question a Layer's access list poses.
//
// Users are cached in memory behind a RWMutex, following catalog's
// persist-then-mutate pattern: writes go to Store first, then update
// the cache, so a Store failure never leaves memory and disk disagreeing.
type Provider struct {
	mu        sync.RWMutex
	users     []User
	store     Store
	jwtSecret []byte
}

// NewProvider loads every user from store into memory.
func NewProvider(store Store, jwtSecret string) (*Provider, error) {
	users, err := store.ListUsers()
	if err != nil {
		return nil, &apperr.AuthProviderError{Detail: err}
	}
	return &Provider{users: users, store: store, jwtSecret: []byte(jwtSecret)}, nil
}

func (p *Provider) findByID(id string) *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := range p.users {
		if p.users[i].ID == id {
			u := p.users[i]
			return &u
		}
	}
	return nil
}

func (p *Provider) findByUsername(username string) *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := range p.users {
		if p.users[i].Username == username {
			u := p.users[i]
			return &u
		}
	}
	return nil
}

// IssueToken validates username/password with bcrypt and, on success,
// signs a JWT carrying the user's id.
func (p *Provider) IssueToken(username, password string) (string, error) {
	u := p.findByUsername(username)
	if u == nil {
		return "", &apperr.AuthProviderError{Detail: errInvalidCredentials}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", &apperr.AuthProviderError{Detail: errInvalidCredentials}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, newClaims(u.ID, tokenTTL))
	signed, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return "", &apperr.AuthProviderError{Detail: err}
	}
	return signed, nil
}

// authenticateBearer decodes and verifies a "Bearer <token>" value and
// returns the user it names, or nil if the token is absent or invalid.
func (p *Provider) authenticateBearer(token string) *User {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil
	}
	return p.findByID(c.UserID)
}

// authenticateBasic decodes a raw "Authorization: Basic <b64>" value
// and returns the named user if its password matches.
func (p *Provider) authenticateBasic(header string) *User {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return nil
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return nil
	}
	u := p.findByUsername(parts[0])
	if u == nil {
		return nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(parts[1])) != nil {
		return nil
	}
	return u
}

// AuthenticatedUser resolves a request's Bearer or Basic credentials to
// a User, or nil if neither is present or valid. Handlers use this for
// admin routes, where a concrete identity (not just "is someone logged
// in") is required.
func (p *Provider) AuthenticatedUser(req *http.Request) *User {
	authorization := req.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(authorization, "Bearer "):
		return p.authenticateBearer(strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer ")))
	case authorization != "":
		return p.authenticateBasic(authorization)
	default:
		return nil
	}
}

// SessionAuthenticated reports whether the request carries a valid
// session cookie, independent of any Authorization header -- this is
// the "is_auth" half of validate_user_groups' unconditional OR.
func (p *Provider) SessionAuthenticated(req *http.Request) bool {
	cookie, err := req.Cookie(SessionCookieName)
	if err != nil {
		return false
	}
	return p.authenticateBearer(cookie.Value) != nil
}

// Authorize mirrors validate_user_groups: a Layer with no configured
// groups is open to everyone. Otherwise the caller must either share a
// group with the layer (via Bearer or Basic credentials) or already
// hold an authenticated session (sessionAuthenticated) -- "any
// authenticated session may browse" is an unconditional OR, not a
// fallback gated on the absence of an Authorization header.
func (p *Provider) Authorize(req *http.Request, layer catalog.Layer, sessionAuthenticated bool) bool {
	if len(layer.Groups) == 0 {
		return true
	}

	authorization := req.Header.Get("Authorization")

	var user *User
	switch {
	case strings.HasPrefix(authorization, "Bearer "):
		user = p.authenticateBearer(strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer ")))
	case authorization != "":
		user = p.authenticateBasic(authorization)
	}

	hasCommonGroup := user != nil && groupsOverlap(user.Groups, layer.Groups)
	return hasCommonGroup || sessionAuthenticated
}

func groupsOverlap(a, b []catalog.Group) bool {
	ids := make(map[string]struct{}, len(a))
	for _, g := range a {
		ids[g.ID] = struct{}{}
	}
	for _, g := range b {
		if _, ok := ids[g.ID]; ok {
			return true
		}
	}
	return false
}

// CreateUser hashes the plaintext password, persists, then caches.
func (p *Provider) CreateUser(u User, plaintextPassword string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextPassword), bcrypt.DefaultCost)
	if err != nil {
		return User{}, &apperr.AuthProviderError{Detail: err}
	}
	u.PasswordHash = string(hash)

	created, err := p.store.CreateUser(u)
	if err != nil {
		return User{}, &apperr.AuthProviderError{Detail: err}
	}

	p.mu.Lock()
	p.users = append(p.users, created)
	p.mu.Unlock()
	return created, nil
}

// UpdateUser persists then updates the cached copy; an id absent from
// the cache is logged and otherwise ignored, following catalog's
// missing-id-update behavior.
func (p *Provider) UpdateUser(u User) error {
	if err := p.store.UpdateUser(u); err != nil {
		return &apperr.AuthProviderError{Detail: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.users {
		if p.users[i].ID == u.ID {
			p.users[i] = u
			return nil
		}
	}
	applog.Warnf("auth: update for unknown user id %s", u.ID)
	return nil
}

// DeleteUser persists then drops the cached copy.
func (p *Provider) DeleteUser(id string) error {
	if err := p.store.DeleteUser(id); err != nil {
		return &apperr.AuthProviderError{Detail: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, u := range p.users {
		if u.ID == id {
			p.users = append(p.users[:i], p.users[i+1:]...)
			break
		}
	}
	return nil
}

// Users returns a snapshot of every cached user.
func (p *Provider) Users() []User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]User, len(p.users))
	copy(out, p.users)
	return out
}

type credentialsError string

func (e credentialsError) Error() string { return string(e) }

const errInvalidCredentials = credentialsError("invalid username or password")
