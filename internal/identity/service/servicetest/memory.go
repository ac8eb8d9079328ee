// Package servicetest provides in-memory stores for exercising the auth service in tests.
// Each store honors the same atomicity contract as its Postgres counterpart.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	identitydomain "blog-cms/backend/internal/identity/domain"
	identityrepo "blog-cms/backend/internal/identity/repository"
	resetdomain "blog-cms/backend/internal/passwordreset/domain"
	refreshdomain "blog-cms/backend/internal/refreshtoken/domain"
	"blog-cms/backend/internal/security"
	userdomain "blog-cms/backend/internal/user/domain"
)

// ErrInjected is returned by stores whose Fail flag is set.
var ErrInjected = errors.New("injected store failure")

// Users is an in-memory user store.
type Users struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
	Fail bool
}

func NewUsers() *Users { return &Users{byID: make(map[string]*userdomain.User)} }

func (r *Users) Add(u *userdomain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *u
	c.Email = userdomain.NormalizeEmail(c.Email)
	r.byID[u.ID] = &c
}

func (r *Users) SetStatus(id string, status userdomain.UserStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.Status = status
	}
}

func (r *Users) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return nil, ErrInjected
	}
	if u, ok := r.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return nil, ErrInjected
	}
	email = userdomain.NormalizeEmail(email)
	for _, u := range r.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

// Identities is an in-memory identity store. It also backs Resets.ConsumeAndSetPassword.
type Identities struct {
	mu sync.Mutex
	m  map[string]*identitydomain.Identity
}

func NewIdentities() *Identities { return &Identities{m: make(map[string]*identitydomain.Identity)} }

func (r *Identities) Add(i *identitydomain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *i
	r.m[i.ID] = &c
}

func (r *Identities) GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.UserID == userID && i.Provider == provider {
			c := *i
			return &c, nil
		}
	}
	return nil, nil
}

func (r *Identities) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.m[id]
	if !ok {
		return identityrepo.ErrIdentityNotFound
	}
	i.PasswordHash = passwordHash
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// LocalHash returns the user's local password hash.
func (r *Identities) LocalHash(userID string) string {
	i, _ := r.GetByUserAndProvider(context.Background(), userID, identitydomain.IdentityProviderLocal)
	if i == nil {
		return ""
	}
	return i.PasswordHash
}

func (r *Identities) setLocalLocked(userID, hash string, at time.Time) error {
	for _, i := range r.m {
		if i.UserID == userID && i.Provider == identitydomain.IdentityProviderLocal {
			i.PasswordHash = hash
			i.UpdatedAt = at
			return nil
		}
	}
	return identityrepo.ErrIdentityNotFound
}

// Roles resolves fixed role assignments.
type Roles struct {
	mu          sync.Mutex
	roles       map[string][]string
	permissions map[string][]string
}

func NewRoles() *Roles {
	return &Roles{roles: make(map[string][]string), permissions: make(map[string][]string)}
}

// Grant replaces the user's roles and permission set.
func (r *Roles) Grant(userID string, roles, permissions []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[userID] = append([]string(nil), roles...)
	r.permissions[userID] = append([]string(nil), permissions...)
}

func (r *Roles) ResolveForUser(ctx context.Context, userID string) ([]string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roles := append([]string(nil), r.roles[userID]...)
	perms := append([]string(nil), r.permissions[userID]...)
	sort.Strings(roles)
	sort.Strings(perms)
	return roles, perms, nil
}

// RefreshTokens is an in-memory refresh token store.
type RefreshTokens struct {
	mu sync.Mutex
	m  map[string]*refreshdomain.RefreshToken
}

func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{m: make(map[string]*refreshdomain.RefreshToken)}
}

func (r *RefreshTokens) Create(ctx context.Context, rt *refreshdomain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt.DeviceID != "" {
		for _, t := range r.m {
			if t.UserID == rt.UserID && t.DeviceID == rt.DeviceID && t.RevokedAt == nil {
				at := rt.CreatedAt
				t.RevokedAt = &at
				t.RevokeReason = refreshdomain.RevokeReasonSuperseded
			}
		}
	}
	c := *rt
	r.m[rt.ID] = &c
	return nil
}

func (r *RefreshTokens) FindByValue(ctx context.Context, value string) (*refreshdomain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value == "" {
		return nil, nil
	}
	h := security.HashToken(value)
	for _, t := range r.m {
		if t.TokenHash == h {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *RefreshTokens) Revoke(ctx context.Context, id, replacedByID string, reason refreshdomain.RevokeReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[id]; ok && t.RevokedAt == nil {
		t.RevokedAt = &at
		t.ReplacedBy = replacedByID
		t.RevokeReason = reason
	}
	return nil
}

func (r *RefreshTokens) RotateAtomic(ctx context.Context, oldID string, next *refreshdomain.RefreshToken, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	old, ok := r.m[oldID]
	if !ok || !old.IsActive(at) {
		return refreshdomain.ErrTokenNotActive
	}
	old.RevokedAt = &at
	old.ReplacedBy = next.ID
	old.RevokeReason = refreshdomain.RevokeReasonRotated
	c := *next
	r.m[next.ID] = &c
	return nil
}

func (r *RefreshTokens) RevokeFamily(ctx context.Context, familyID string, reason refreshdomain.RevokeReason, at time.Time) (int64, error) {
	return r.revokeWhere(func(t *refreshdomain.RefreshToken) bool { return t.FamilyID == familyID }, reason, at), nil
}

func (r *RefreshTokens) RevokeAllForUser(ctx context.Context, userID string, reason refreshdomain.RevokeReason, at time.Time) (int64, error) {
	return r.revokeWhere(func(t *refreshdomain.RefreshToken) bool { return t.UserID == userID }, reason, at), nil
}

func (r *RefreshTokens) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.revokeWhere(func(t *refreshdomain.RefreshToken) bool { return !now.Before(t.ExpiresAt) }, refreshdomain.RevokeReasonExpired, now), nil
}

func (r *RefreshTokens) revokeWhere(match func(*refreshdomain.RefreshToken) bool, reason refreshdomain.RevokeReason, at time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.m {
		if t.RevokedAt == nil && match(t) {
			t.RevokedAt = &at
			t.RevokeReason = reason
			n++
		}
	}
	return n
}

// Get returns a copy of the record with id.
func (r *RefreshTokens) Get(id string) *refreshdomain.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.m[id]; ok {
		c := *t
		return &c
	}
	return nil
}

// Snapshot returns copies of every record, for asserting that a call did not mutate the store.
func (r *RefreshTokens) Snapshot() map[string]refreshdomain.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]refreshdomain.RefreshToken, len(r.m))
	for id, t := range r.m {
		out[id] = *t
	}
	return out
}

// Resets is an in-memory password reset token store. ConsumeAndSetPassword writes through to identities.
type Resets struct {
	mu         sync.Mutex
	m          map[string]*resetdomain.ResetToken
	identities *Identities
}

func NewResets(identities *Identities) *Resets {
	return &Resets{m: make(map[string]*resetdomain.ResetToken), identities: identities}
}

func (r *Resets) Create(ctx context.Context, t *resetdomain.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *t
	r.m[t.ID] = &c
	return nil
}

func (r *Resets) GetByValue(ctx context.Context, value string) (*resetdomain.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := security.HashToken(value)
	for _, t := range r.m {
		if t.TokenHash == h {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *Resets) FindValid(ctx context.Context, value, userID string, now time.Time) (*resetdomain.ResetToken, error) {
	t, err := r.GetByValue(ctx, value)
	if err != nil || t == nil {
		return nil, err
	}
	if err := t.Check(userID, now); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Resets) Consume(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumeLocked(id, at)
}

func (r *Resets) consumeLocked(id string, at time.Time) error {
	if err := r.claimableLocked(id, at); err != nil {
		return err
	}
	r.m[id].ConsumedAt = &at
	return nil
}

func (r *Resets) claimableLocked(id string, at time.Time) error {
	t, ok := r.m[id]
	switch {
	case !ok:
		return resetdomain.ErrExpired
	case t.ConsumedAt != nil:
		return resetdomain.ErrConsumed
	case !at.Before(t.ExpiresAt):
		return resetdomain.ErrExpired
	}
	return nil
}

func (r *Resets) ConsumeAndSetPassword(ctx context.Context, id, userID, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claimableLocked(id, at); err != nil {
		return err
	}
	r.identities.mu.Lock()
	defer r.identities.mu.Unlock()
	if err := r.identities.setLocalLocked(userID, passwordHash, at); err != nil {
		return err
	}
	return r.consumeLocked(id, at)
}

func (r *Resets) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.m {
		if t.ExpiresAt.Before(before) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored reset tokens.
func (r *Resets) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Dispatcher records reset messages instead of sending them.
type Dispatcher struct {
	mu   sync.Mutex
	Sent []Message
	Err  error
}

// Message is one recorded dispatch.
type Message struct {
	UserID string
	Email  string
	Token  string
}

func (d *Dispatcher) SendPasswordResetMessage(ctx context.Context, userID, email, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Sent = append(d.Sent, Message{UserID: userID, Email: email, Token: token})
	return d.Err
}

// Messages returns a copy of the recorded dispatches.
func (d *Dispatcher) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.Sent...)
}
