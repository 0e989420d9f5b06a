package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/platform/memory"
	"github.com/phrazzld/shelf-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	clock  *clock
	users  *memory.UserStore
	tokens *memory.TokenStore
	svc    auth.TokenService
	authn  *auth.Authenticator
	user   *domain.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		clock:  newClock(),
		users:  memory.NewUserStore(),
		tokens: memory.NewTokenStore(),
	}
	f.svc = auth.NewTokenService(f.tokens, discardLogger(), auth.WithTimeFunc(f.clock.Now))
	f.authn = auth.NewAuthenticator(f.svc, f.users, discardLogger())

	user, err := domain.NewUser("reader", "", "correct-horse")
	require.NoError(t, err)
	user.HashedPassword = "hash"
	require.NoError(t, f.users.Create(context.Background(), user))
	f.user = user
	return f
}

func (f *authFixture) issue(t *testing.T, ttl time.Duration) *domain.AuthToken {
	t.Helper()
	token, err := f.svc.CreateToken(context.Background(), f.user.ID, ttl, map[string]any{"role": "reader"})
	require.NoError(t, err)
	return token
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no credential is anonymous", func(t *testing.T) {
		f := newAuthFixture(t)
		res, err := f.authn.Authenticate(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, auth.Anonymous, res.Outcome)
		assert.Nil(t, res.User)
	})

	t.Run("valid token authenticates", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.issue(t, 24*time.Hour)

		res, err := f.authn.Authenticate(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.Authenticated, res.Outcome)
		require.NotNil(t, res.User)
		assert.Equal(t, f.user.ID, res.User.ID)
		assert.Equal(t, "reader", res.Token.Permissions["role"])
	})

	t.Run("unknown token is invalid", func(t *testing.T) {
		f := newAuthFixture(t)
		value, err := f.svc.Generate()
		require.NoError(t, err)

		res, err := f.authn.Authenticate(ctx, value)
		require.NoError(t, err)
		assert.Equal(t, auth.Rejected, res.Outcome)
		assert.Equal(t, auth.ReasonInvalid, res.Reason)
		assert.Equal(t, "Invalid token", res.Reason.Message())
	})

	t.Run("lapsed token is rejected and recorded as expired", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.issue(t, time.Hour)
		f.clock.Advance(time.Hour + time.Second)

		res, err := f.authn.Authenticate(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.Rejected, res.Outcome)
		assert.Equal(t, auth.ReasonExpiredOrInactive, res.Reason)

		stored, err := f.tokens.GetByValue(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.TokenStatusExpired, stored.Status)
		assert.False(t, stored.IsActive)

		// Once corrected, the token stays rejected for the same reason.
		res, err = f.authn.Authenticate(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.ReasonExpiredOrInactive, res.Reason)
	})

	t.Run("revoked token is rejected", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.issue(t, time.Hour)
		require.NoError(t, f.svc.Revoke(ctx, token.Token))

		res, err := f.authn.Authenticate(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.ReasonExpiredOrInactive, res.Reason)

		stored, err := f.tokens.GetByValue(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.TokenStatusRevoked, stored.Status, "revoked status must not be overwritten")
	})

	t.Run("inactive user is rejected", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.issue(t, time.Hour)
		require.NoError(t, f.users.SetActive(f.user.ID, false))

		res, err := f.authn.Authenticate(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.Rejected, res.Outcome)
		assert.Equal(t, auth.ReasonUserInactive, res.Reason)
		assert.Equal(t, "User is not active", res.Reason.Message())
	})

	t.Run("store failure is an error, not a rejection", func(t *testing.T) {
		svc := auth.NewTokenService(failingTokenStore{memory.NewTokenStore()}, discardLogger())
		authn := auth.NewAuthenticator(svc, memory.NewUserStore(), discardLogger())
		value, err := svc.Generate()
		require.NoError(t, err)

		_, err = authn.Authenticate(ctx, value)
		assert.Error(t, err)
	})
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "anonymous", auth.Anonymous.String())
	assert.Equal(t, "authenticated", auth.Authenticated.String())
	assert.Equal(t, "rejected", auth.Rejected.String())
	assert.Equal(t, "Authentication credentials were not provided", auth.ReasonMissingCredential.Message())
}

func TestAuthenticate_LogsRedactToken(t *testing.T) {
	t.Parallel()

	log, buf := logger.NewTestLogger()
	authn := auth.NewAuthenticator(
		auth.NewTokenService(memory.NewTokenStore(), log),
		memory.NewUserStore(),
		log,
	)

	credential := strings.Repeat("f0", 32)
	res, err := authn.Authenticate(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, auth.Rejected, res.Outcome)

	require.NotEmpty(t, buf.Entries())
	assert.NotContains(t, buf.String(), credential)
}
