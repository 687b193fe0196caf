// Package memstore is an in-process implementation of store.Store.
//
// Transactions are fully serialized: WithinTx holds a single mutex for the
// whole callback and works on a copy of the data that replaces the committed
// state only when the callback returns nil. Holding the mutex gives the Lock*
// methods their row-lock semantics for free.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/phoneauth/internal/store"
)

// ErrInjected is the default error returned by an injected fault.
var ErrInjected = errors.New("memstore: injected fault")

type state struct {
	users      map[string]store.User
	challenges []store.Challenge
	sessions   map[string]store.Session
}

func (s *state) clone() *state {
	out := &state{
		users:      make(map[string]store.User, len(s.users)),
		challenges: make([]store.Challenge, len(s.challenges)),
		sessions:   make(map[string]store.Session, len(s.sessions)),
	}
	for k, u := range s.users {
		out.users[k] = copyUser(u)
	}
	for i, c := range s.challenges {
		out.challenges[i] = copyChallenge(c)
	}
	for k, sess := range s.sessions {
		out.sessions[k] = copySession(sess)
	}
	return out
}

// Store keeps every record in memory.
type Store struct {
	mu     sync.Mutex
	data   *state
	faults map[string]error
	closed bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		data: &state{
			users:    map[string]store.User{},
			sessions: map[string]store.Session{},
		},
		faults: map[string]error{},
	}
}

// InjectFault makes the next call to the named Tx method fail with err (or
// ErrInjected when err is nil). Method names match the store.Tx interface.
func (s *Store) InjectFault(method string, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	s.faults[method] = err
	s.mu.Unlock()
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrUnavailable
	}

	working := s.data.clone()
	if err := fn(ctx, &tx{store: s, data: working}); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrUnavailable
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Users returns a snapshot of all committed users.
func (s *Store) Users() []store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.User, 0, len(s.data.users))
	for _, u := range s.data.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Challenges returns a snapshot of all committed challenges in creation order.
func (s *Store) Challenges() []store.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Challenge, len(s.data.challenges))
	for i, c := range s.data.challenges {
		out[i] = copyChallenge(c)
	}
	return out
}

// Sessions returns a snapshot of all committed sessions.
func (s *Store) Sessions() []store.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Session, 0, len(s.data.sessions))
	for _, sess := range s.data.sessions {
		out = append(out, copySession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type tx struct {
	store *Store
	data  *state
}

// fault is called with the store mutex already held by WithinTx.
func (t *tx) fault(method string) error {
	if err, ok := t.store.faults[method]; ok {
		delete(t.store.faults, method)
		return err
	}
	return nil
}

func (t *tx) UserByID(_ context.Context, id string) (*store.User, error) {
	if err := t.fault("UserByID"); err != nil {
		return nil, err
	}
	u, ok := t.data.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := copyUser(u)
	return &out, nil
}

func (t *tx) UserByPhone(_ context.Context, countryCode, phone string) (*store.User, error) {
	if err := t.fault("UserByPhone"); err != nil {
		return nil, err
	}
	for _, u := range t.data.users {
		if eq(u.CountryCode, countryCode) && eq(u.Phone, phone) {
			out := copyUser(u)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) UserByEmail(_ context.Context, email string) (*store.User, error) {
	if err := t.fault("UserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range t.data.users {
		if eq(u.Email, email) {
			out := copyUser(u)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) UserByExternalID(_ context.Context, externalID string) (*store.User, error) {
	if err := t.fault("UserByExternalID"); err != nil {
		return nil, err
	}
	for _, u := range t.data.users {
		if eq(u.ExternalID, externalID) {
			out := copyUser(u)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) CreateUser(_ context.Context, u *store.User) error {
	if err := t.fault("CreateUser"); err != nil {
		return err
	}
	if _, exists := t.data.users[u.ID]; exists {
		return store.ErrConflict
	}
	if err := t.checkUserUnique(u); err != nil {
		return err
	}
	t.data.users[u.ID] = copyUser(*u)
	return nil
}

func (t *tx) SaveUser(_ context.Context, u *store.User) error {
	if err := t.fault("SaveUser"); err != nil {
		return err
	}
	if _, exists := t.data.users[u.ID]; !exists {
		return store.ErrNotFound
	}
	if err := t.checkUserUnique(u); err != nil {
		return err
	}
	t.data.users[u.ID] = copyUser(*u)
	return nil
}

func (t *tx) checkUserUnique(u *store.User) error {
	for id, other := range t.data.users {
		if id == u.ID {
			continue
		}
		if u.Phone != nil && u.CountryCode != nil && eq(other.Phone, *u.Phone) && eq(other.CountryCode, *u.CountryCode) {
			return store.ErrConflict
		}
		if u.Email != nil && eq(other.Email, *u.Email) {
			return store.ErrConflict
		}
		if u.ExternalID != nil && eq(other.ExternalID, *u.ExternalID) {
			return store.ErrConflict
		}
	}
	return nil
}

func (t *tx) CreateChallenge(_ context.Context, c *store.Challenge) error {
	if err := t.fault("CreateChallenge"); err != nil {
		return err
	}
	for _, existing := range t.data.challenges {
		if existing.ID == c.ID {
			return store.ErrConflict
		}
	}
	t.data.challenges = append(t.data.challenges, copyChallenge(*c))
	return nil
}

func (t *tx) LockLatestChallenge(_ context.Context, target store.Target, typ store.ChallengeType) (*store.Challenge, error) {
	if err := t.fault("LockLatestChallenge"); err != nil {
		return nil, err
	}
	var latest *store.Challenge
	for i := range t.data.challenges {
		c := &t.data.challenges[i]
		if c.Type != typ || !sameTarget(c, target) {
			continue
		}
		if latest == nil || !c.CreatedAt.Before(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	out := copyChallenge(*latest)
	return &out, nil
}

func (t *tx) SaveChallenge(_ context.Context, c *store.Challenge) error {
	if err := t.fault("SaveChallenge"); err != nil {
		return err
	}
	for i := range t.data.challenges {
		if t.data.challenges[i].ID == c.ID {
			t.data.challenges[i] = copyChallenge(*c)
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *tx) CreateSession(_ context.Context, s *store.Session) error {
	if err := t.fault("CreateSession"); err != nil {
		return err
	}
	for _, existing := range t.data.sessions {
		if existing.ID == s.ID || (existing.UserID == s.UserID && existing.DeviceID == s.DeviceID) {
			return store.ErrConflict
		}
	}
	t.data.sessions[s.ID] = copySession(*s)
	return nil
}

func (t *tx) DeleteSessionByDevice(_ context.Context, userID, deviceID string) error {
	if err := t.fault("DeleteSessionByDevice"); err != nil {
		return err
	}
	for id, s := range t.data.sessions {
		if s.UserID == userID && s.DeviceID == deviceID {
			delete(t.data.sessions, id)
		}
	}
	return nil
}

func (t *tx) LockSessionByRefreshDigest(_ context.Context, digest string) (*store.Session, error) {
	if err := t.fault("LockSessionByRefreshDigest"); err != nil {
		return nil, err
	}
	for _, s := range t.data.sessions {
		if s.RefreshDigest == digest {
			out := copySession(s)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) SessionByAccessDigest(_ context.Context, digest string) (*store.Session, error) {
	if err := t.fault("SessionByAccessDigest"); err != nil {
		return nil, err
	}
	for _, s := range t.data.sessions {
		if s.AccessDigest == digest {
			out := copySession(s)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) SaveSession(_ context.Context, s *store.Session) error {
	if err := t.fault("SaveSession"); err != nil {
		return err
	}
	if _, ok := t.data.sessions[s.ID]; !ok {
		return store.ErrNotFound
	}
	t.data.sessions[s.ID] = copySession(*s)
	return nil
}

func (t *tx) TouchSession(_ context.Context, sessionID string, at time.Time) error {
	if err := t.fault("TouchSession"); err != nil {
		return err
	}
	s, ok := t.data.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	s.LastUsedAt = at
	t.data.sessions[sessionID] = s
	return nil
}

func (t *tx) ListSessions(_ context.Context, userID string, activeOnly bool) ([]store.Session, error) {
	if err := t.fault("ListSessions"); err != nil {
		return nil, err
	}
	out := make([]store.Session, 0)
	for _, s := range t.data.sessions {
		if s.UserID != userID || (activeOnly && !s.IsActive) {
			continue
		}
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (t *tx) DeactivateSessions(_ context.Context, filter store.SessionFilter, at time.Time) (int, error) {
	if err := t.fault("DeactivateSessions"); err != nil {
		return 0, err
	}
	n := 0
	for id, s := range t.data.sessions {
		if s.UserID != filter.UserID || !s.IsActive {
			continue
		}
		if filter.DeviceID != "" && s.DeviceID != filter.DeviceID {
			continue
		}
		if filter.ExceptDeviceID != "" && s.DeviceID == filter.ExceptDeviceID {
			continue
		}
		s.IsActive = false
		s.UpdatedAt = at
		t.data.sessions[id] = s
		n++
	}
	return n, nil
}

func sameTarget(c *store.Challenge, target store.Target) bool {
	if target.IsPhone() {
		return c.CountryCode == target.CountryCode && c.Phone == target.Phone
	}
	return c.Email == target.Email && c.UserID != nil && *c.UserID == target.UserID
}

func eq(p *string, v string) bool {
	return p != nil && *p == v
}

func copyUser(u store.User) store.User {
	u.CountryCode = dup(u.CountryCode)
	u.Phone = dup(u.Phone)
	u.Email = dup(u.Email)
	u.ExternalID = dup(u.ExternalID)
	u.DisplayName = dup(u.DisplayName)
	u.PendingEmail = dup(u.PendingEmail)
	u.PendingCountryCode = dup(u.PendingCountryCode)
	u.PendingPhone = dup(u.PendingPhone)
	if u.Interests != nil {
		u.Interests = append([]string(nil), u.Interests...)
	}
	return u
}

func copyChallenge(c store.Challenge) store.Challenge {
	c.UserID = dup(c.UserID)
	if c.ProviderMeta != nil {
		meta := make(map[string]string, len(c.ProviderMeta))
		for k, v := range c.ProviderMeta {
			meta[k] = v
		}
		c.ProviderMeta = meta
	}
	return c
}

func copySession(s store.Session) store.Session {
	s.PushToken = dup(s.PushToken)
	return s
}

func dup(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
