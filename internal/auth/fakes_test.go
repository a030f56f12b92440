package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redmonkez12/go-session-auth/internal/logging"
	"github.com/redmonkez12/go-session-auth/internal/user"
)

// fastArgon2Params keeps hashing cheap in tests
var fastArgon2Params = Argon2Params{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memUserRepo struct {
	mu        sync.Mutex
	users     map[string]*user.User
	err       error
	createErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*user.User)}
}

func (r *memUserRepo) Create(ctx context.Context, id, fullName, email string, passwordHash *string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return nil, user.ErrDuplicateEmail
		}
	}
	u := &user.User{ID: id, FullName: fullName, Email: email, PasswordHash: passwordHash}
	r.users[id] = u
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	u, ok := r.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = &passwordHash
	return nil
}

// put inserts a user directly, bypassing validation
func (r *memUserRepo) put(u *user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]Session
	err      error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	s := *session
	s.Fresh = false
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) Find(ctx context.Context, sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (r *memSessionRepo) UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.ExpiresAt = expiresAt
	r.sessions[sessionID] = s
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *memSessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (r *memSessionRepo) count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

type memResetRepo struct {
	mu     sync.Mutex
	tokens map[string]PasswordResetToken
	calls  int
	err    error
}

func newMemResetRepo() *memResetRepo {
	return &memResetRepo{tokens: make(map[string]PasswordResetToken)}
}

func (r *memResetRepo) Replace(ctx context.Context, token *PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	for fp, t := range r.tokens {
		if t.UserID == token.UserID {
			delete(r.tokens, fp)
		}
	}
	r.tokens[token.Fingerprint] = *token
	return nil
}

func (r *memResetRepo) FindByUser(ctx context.Context, userID string) (*PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for _, t := range r.tokens {
		if t.UserID == userID {
			return &t, nil
		}
	}
	return nil, ErrResetTokenNotFound
}

func (r *memResetRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.tokens[fingerprint]
	if !ok {
		return nil, ErrResetTokenNotFound
	}
	return &t, nil
}

func (r *memResetRepo) DeleteByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.tokens[fingerprint]
	delete(r.tokens, fingerprint)
	return ok, nil
}

func (r *memResetRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for fp, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, fp)
		}
	}
	return nil
}

func (r *memResetRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (r *memResetRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type sentEmail struct {
	To   string
	Link string
	Name string
}

type recordingEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *recordingEmailSender) SendPasswordResetEmail(ctx context.Context, toEmail, resetLink, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{To: toEmail, Link: resetLink, Name: displayName})
	return nil
}

func (s *recordingEmailSender) last(t *testing.T) sentEmail {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("no email sent")
	}
	return s.sent[len(s.sent)-1]
}

var errStoreDown = errors.New("store unavailable")

type testEnv struct {
	service  *Service
	clock    *fakeClock
	users    *memUserRepo
	sessions *memSessionRepo
	resets   *memResetRepo
	email    *recordingEmailSender
}

const (
	testBaseURL         = "https://app.example.com"
	testSessionDuration = 30 * 24 * time.Hour
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    newFakeClock(),
		users:    newMemUserRepo(),
		sessions: newMemSessionRepo(),
		resets:   newMemResetRepo(),
		email:    &recordingEmailSender{},
	}

	manager := NewSessionManager(env.sessions, testSessionDuration, DefaultCookieConfig(false), nil)
	manager.now = env.clock.Now

	env.service = NewService(
		env.users,
		manager,
		env.resets,
		NewArgon2Hasher(fastArgon2Params),
		env.email,
		logging.Discard(),
		testBaseURL,
		0,
	)
	env.service.now = env.clock.Now

	return env
}

// resetSecret extracts the raw secret from the last emailed link
func (e *testEnv) resetSecret(t *testing.T) string {
	t.Helper()
	link := e.email.last(t).Link
	idx := strings.Index(link, "token=")
	if idx < 0 {
		t.Fatalf("no token in link %q", link)
	}
	return link[idx+len("token="):]
}
