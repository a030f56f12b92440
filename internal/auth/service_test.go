package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-session-auth/internal/user"
)

func registerJane(t *testing.T, env *testEnv) *AuthResult {
	t.Helper()
	result, err := env.service.Register(context.Background(), RegisterInput{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	return result
}

func TestRegister_CreatesUserAndSession(t *testing.T) {
	env := newTestEnv(t)

	result := registerJane(t, env)

	require.NotNil(t, result.User)
	assert.NotEmpty(t, result.User.ID)
	assert.Equal(t, "Jane Doe", result.User.FullName)
	require.NotNil(t, result.User.PasswordHash)
	assert.NotEqual(t, "secret1", *result.User.PasswordHash)

	require.NotNil(t, result.Session)
	assert.Equal(t, result.User.ID, result.Session.UserID)
	assert.Equal(t, 1, env.sessions.count(result.User.ID))

	assert.Equal(t, "auth_session", result.Cookie.Name)
	assert.Equal(t, result.Session.ID, result.Cookie.Value)
	assert.True(t, result.Cookie.Attributes.HTTPOnly)
	assert.Greater(t, result.Cookie.Attributes.MaxAge, 0)
}

func TestRegister_DuplicateEmailIgnoresCase(t *testing.T) {
	env := newTestEnv(t)
	registerJane(t, env)

	_, err := env.service.Register(context.Background(), RegisterInput{
		FullName: "Jane Doe",
		Email:    "JANE@EXAMPLE.COM",
		Password: "secret1",
	})
	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.Equal(t, "User with email already exist.", UserMessage(err))
}

func TestRegister_DuplicateFromStoreRace(t *testing.T) {
	env := newTestEnv(t)
	// Another request inserted the same email between lookup and insert
	env.users.createErr = user.ErrDuplicateEmail

	_, err := env.service.Register(context.Background(), RegisterInput{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Password: "secret1",
	})
	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.NotErrorIs(t, err, ErrTransientFailure)
}

func TestRegister_ValidationErrorBeforeStore(t *testing.T) {
	env := newTestEnv(t)
	env.users.err = errStoreDown

	_, err := env.service.Register(context.Background(), RegisterInput{
		FullName: "Jo",
		Email:    "not-an-email",
		Password: "123",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "fullname")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Equal(t, "Invalid data.", UserMessage(err))
}

func TestRegister_SessionFailureIsTransient(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.err = errStoreDown

	_, err := env.service.Register(context.Background(), RegisterInput{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Password: "secret1",
	})
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.ErrorIs(t, err, errStoreDown)

	// The account exists and can sign in once the store recovers
	env.sessions.err = nil
	_, err = env.service.Login(context.Background(), LoginInput{Email: "jane@example.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	registered := registerJane(t, env)

	result, err := env.service.Login(context.Background(), LoginInput{
		Email:    "Jane@Example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, result.User.ID)
	assert.NotEqual(t, registered.Session.ID, result.Session.ID)
	assert.Equal(t, 2, env.sessions.count(registered.User.ID))
}

func TestLogin_FailuresShareOneMessage(t *testing.T) {
	env := newTestEnv(t)
	registerJane(t, env)
	env.users.put(&user.User{ID: "external", Email: "oauth@example.com", FullName: "External User"})

	cases := []struct {
		name  string
		input LoginInput
	}{
		{"wrong password", LoginInput{Email: "jane@example.com", Password: "wrong-password"}},
		{"unknown email", LoginInput{Email: "nobody@example.com", Password: "secret1"}},
		{"no password hash", LoginInput{Email: "oauth@example.com", Password: "secret1"}},
	}

	var messages []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.service.Login(context.Background(), tc.input)
			require.ErrorIs(t, err, ErrInvalidCredentials)
			messages = append(messages, UserMessage(err))
			assert.Equal(t, ErrInvalidCredentials, err)
		})
	}

	require.Len(t, messages, 3)
	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[1], messages[2])
	assert.Equal(t, "Wrong username and password combination.", messages[0])
}

type countingHasher struct {
	PasswordHasher
	mu       sync.Mutex
	hashes   int
	verifies int
}

func (h *countingHasher) Hash(password string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return h.PasswordHasher.Hash(password)
}

func (h *countingHasher) Verify(encodedHash, password string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.PasswordHasher.Verify(encodedHash, password)
}

func TestLogin_MissingAccountsStillVerifyAPassword(t *testing.T) {
	env := newTestEnv(t)
	registerJane(t, env)
	env.users.put(&user.User{ID: "external", Email: "oauth@example.com", FullName: "External User"})
	hasher := &countingHasher{PasswordHasher: NewArgon2Hasher(fastArgon2Params)}
	env.service.hasher = hasher

	for _, in := range []LoginInput{
		{Email: "nobody@example.com", Password: "secret1"},
		{Email: "oauth@example.com", Password: "secret1"},
		{Email: "jane@example.com", Password: "wrong-password"},
	} {
		_, err := env.service.Login(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	assert.Equal(t, 3, hasher.verifies)
	assert.Equal(t, 1, hasher.hashes)
}

func TestLogin_StoreFailureIsTransient(t *testing.T) {
	env := newTestEnv(t)
	env.users.err = errStoreDown

	_, err := env.service.Login(context.Background(), LoginInput{Email: "jane@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrTransientFailure)
	assert.Equal(t, "Something went wrong. Please try again.", UserMessage(err))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)

	blank, err := env.service.Logout(context.Background(), result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "auth_session", blank.Name)
	assert.Empty(t, blank.Value)
	assert.Equal(t, 0, blank.Attributes.MaxAge)
	assert.Equal(t, 0, env.sessions.count(result.User.ID))

	// The session is terminal
	_, err = env.service.Logout(context.Background(), result.Session.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Logout(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.service.Logout(context.Background(), strings.Repeat("a", 40))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Unauthorized", UserMessage(err))
}

func TestForgotPassword_SendsLinkWithName(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)

	err := env.service.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "jane@example.com"})
	require.NoError(t, err)

	sent := env.email.last(t)
	assert.Equal(t, "jane@example.com", sent.To)
	assert.Equal(t, "Jane Doe", sent.Name)
	assert.True(t, strings.HasPrefix(sent.Link, testBaseURL+"/auth/reset-password?token="))

	secret := env.resetSecret(t)
	assert.Len(t, secret, 40)

	stored, err := env.resets.FindByUser(context.Background(), result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(secret), stored.Fingerprint)
	assert.NotEqual(t, secret, stored.Fingerprint)
	assert.Equal(t, env.clock.Now().Add(2*time.Hour), stored.ExpiresAt)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, "User not found.", UserMessage(err))
	assert.Empty(t, env.email.sent)
}

func TestForgotPassword_EmailFailureIsTransient(t *testing.T) {
	env := newTestEnv(t)
	registerJane(t, env)
	env.email.err = errors.New("smtp: connection refused")

	err := env.service.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "jane@example.com"})
	assert.ErrorIs(t, err, ErrTransientFailure)
}

func TestIssueResetToken_SecondIssueInvalidatesFirst(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)
	ctx := context.Background()

	first, err := env.service.IssueResetToken(ctx, result.User.ID)
	require.NoError(t, err)
	second, err := env.service.IssueResetToken(ctx, result.User.ID)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = env.service.ConsumeResetToken(ctx, first)
	assert.ErrorIs(t, err, ErrInvalidToken)

	userID, err := env.service.ConsumeResetToken(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, userID)
}

func TestConsumeResetToken_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)
	ctx := context.Background()

	secret, err := env.service.IssueResetToken(ctx, result.User.ID)
	require.NoError(t, err)

	_, err = env.service.ConsumeResetToken(ctx, secret)
	require.NoError(t, err)

	_, err = env.service.ConsumeResetToken(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeResetToken_ConcurrentCallersOneWins(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)
	ctx := context.Background()

	secret, err := env.service.IssueResetToken(ctx, result.User.ID)
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.service.ConsumeResetToken(ctx, secret); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestConsumeResetToken_Expired(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)
	ctx := context.Background()

	secret, err := env.service.IssueResetToken(ctx, result.User.ID)
	require.NoError(t, err)

	env.clock.Advance(2*time.Hour + time.Second)

	_, err = env.service.ConsumeResetToken(ctx, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, "Invalid Token", UserMessage(err))

	// Expired tokens are removed on sight
	_, err = env.resets.FindByFingerprint(ctx, Fingerprint(secret))
	assert.ErrorIs(t, err, ErrResetTokenNotFound)
}

func TestConsumeResetToken_ValidAtExactExpiry(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)
	ctx := context.Background()

	secret, err := env.service.IssueResetToken(ctx, result.User.ID)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)

	_, err = env.service.ConsumeResetToken(ctx, secret)
	assert.NoError(t, err)
}

func TestConsumeResetToken_UnknownAndMalformed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unknown, err := GenerateSecret(DefaultSecretEntropy)
	require.NoError(t, err)

	for _, secret := range []string{"", "short", "UPPERCASE-IS-NOT-BASE32-LOWER-AAAAAAAAAAAA", unknown} {
		_, err := env.service.ConsumeResetToken(ctx, secret)
		assert.ErrorIs(t, err, ErrInvalidToken, "secret %q", secret)
	}
}

func TestConsumeResetToken_InvalidatesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)
	ctx := context.Background()

	_, err := env.service.Login(ctx, LoginInput{Email: "jane@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, 2, env.sessions.count(result.User.ID))

	secret, err := env.service.IssueResetToken(ctx, result.User.ID)
	require.NoError(t, err)

	_, err = env.service.ConsumeResetToken(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, 0, env.sessions.count(result.User.ID))
}

func TestForgotThenResetPassword(t *testing.T) {
	env := newTestEnv(t)
	registerJane(t, env)
	ctx := context.Background()

	require.NoError(t, env.service.ForgotPassword(ctx, ForgotPasswordInput{Email: "jane@example.com"}))
	token := env.resetSecret(t)

	err := env.service.ResetPassword(ctx, ResetPasswordInput{
		Password:        "newpass1",
		ConfirmPassword: "newpass1",
		Token:           token,
	})
	require.NoError(t, err)

	_, err = env.service.Login(ctx, LoginInput{Email: "jane@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.service.Login(ctx, LoginInput{Email: "jane@example.com", Password: "newpass1"})
	assert.NoError(t, err)
}

func TestResetPassword_MismatchSkipsTokenStore(t *testing.T) {
	env := newTestEnv(t)
	anySecret, err := GenerateSecret(DefaultSecretEntropy)
	require.NoError(t, err)

	err = env.service.ResetPassword(context.Background(), ResetPasswordInput{
		Password:        "abc123",
		ConfirmPassword: "xyz789",
		Token:           anySecret,
	})
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Equal(t, "Passwords do not match.", UserMessage(err))
	assert.Equal(t, 0, env.resets.callCount())
}

func TestResetPassword_InvalidToken(t *testing.T) {
	env := newTestEnv(t)
	anySecret, err := GenerateSecret(DefaultSecretEntropy)
	require.NoError(t, err)

	err = env.service.ResetPassword(context.Background(), ResetPasswordInput{
		Password:        "newpass1",
		ConfirmPassword: "newpass1",
		Token:           anySecret,
	})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	result := registerJane(t, env)
	ctx := context.Background()

	session, u, err := env.service.CurrentUser(ctx, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Session.ID, session.ID)
	assert.Equal(t, result.User.ID, u.ID)

	env.clock.Advance(testSessionDuration + time.Second)

	_, _, err = env.service.CurrentUser(ctx, result.Session.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCurrentUser_OrphanedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.service.Sessions().CreateSession(ctx, "deleted-user")
	require.NoError(t, err)

	_, _, err = env.service.CurrentUser(ctx, session.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, env.sessions.count("deleted-user"))
}
