package local_test

import (
	"context"
	"database/sql"
	"testing"

	authflow "github.com/citypages/go-authflow"
	"github.com/citypages/go-authflow/provider/local"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupProvider(t *testing.T) *local.Provider {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	provider := local.NewProvider(db, []byte("test-signing-key"),
		local.WithLogger(authflow.NopLogger()))
	require.NoError(t, provider.Setup(context.Background()))

	t.Cleanup(func() {
		provider.Close()
		_ = db.Close()
		_ = sqldb.Close()
	})
	return provider
}

func businessSignUp(email string) authflow.RegisterData {
	return authflow.RegisterData{
		Email:               email,
		Password:            "password123",
		Name:                "Pat Owner",
		Role:                authflow.RoleBusiness,
		Phone:               "+12025550123",
		BusinessName:        "Corner Bakery",
		BusinessDescription: "Fresh bread daily",
	}
}

func TestSignUpConfirmSignIn(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	sub, err := provider.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	pending, err := provider.SignUp(ctx, businessSignUp("owner@example.com"))
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.NotEmpty(t, pending.ID)
	assert.Equal(t, "owner@example.com", pending.Email)
	require.NotNil(t, pending.ConfirmationSentAt)

	// no profile exists before verification
	_, err = provider.Profiles().FetchBySubjectID(ctx, pending.ID)
	assert.True(t, authflow.IsProfileNotFound(err))

	// sign-in is gated on confirmation
	_, err = provider.SignInWithPassword(ctx, "owner@example.com", "password123")
	assert.ErrorIs(t, err, authflow.ErrEmailNotConfirmed)

	// confirming flips the gate and provisions the profile from the seed
	require.NoError(t, provider.ConfirmEmail(ctx, "owner@example.com"))

	profile, err := provider.Profiles().FetchBySubjectID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pat Owner", profile.Name)
	assert.Equal(t, authflow.RoleBusiness, profile.Role)
	assert.Equal(t, "Corner Bakery", profile.BusinessName)
	assert.Equal(t, "owner@example.com", profile.Email)

	session, err := provider.SignInWithPassword(ctx, "owner@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, pending.ID, session.SubjectID)
	assert.True(t, session.EmailConfirmed)
	assert.NotEmpty(t, session.AccessToken)

	event := <-sub.Events()
	assert.Equal(t, authflow.EventSignedIn, event.Type)
	require.NotNil(t, event.Session)
	assert.Equal(t, pending.ID, event.Session.SubjectID)

	current, err := provider.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, session.SubjectID, current.SubjectID)

	require.NoError(t, provider.SignOut(ctx))
	event = <-sub.Events()
	assert.Equal(t, authflow.EventSignedOut, event.Type)

	current, err = provider.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	_, err := provider.SignUp(ctx, businessSignUp("owner@example.com"))
	require.NoError(t, err)

	_, err = provider.SignUp(ctx, businessSignUp("Owner@Example.com"))
	assert.ErrorIs(t, err, authflow.ErrEmailTaken)
}

func TestSignInUnknownEmail(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	_, err := provider.SignInWithPassword(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, authflow.ErrInvalidCredentials)
}

func TestSignInThrottlesAttempts(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	origMax := local.MaxLoginAttempts
	local.MaxLoginAttempts = 1
	t.Cleanup(func() { local.MaxLoginAttempts = origMax })

	_, err := provider.SignUp(ctx, businessSignUp("owner@example.com"))
	require.NoError(t, err)
	require.NoError(t, provider.ConfirmEmail(ctx, "owner@example.com"))

	_, err = provider.SignInWithPassword(ctx, "owner@example.com", "wrong-password")
	assert.ErrorIs(t, err, authflow.ErrInvalidCredentials)
	_, err = provider.SignInWithPassword(ctx, "owner@example.com", "wrong-password")
	assert.ErrorIs(t, err, authflow.ErrInvalidCredentials)

	// the attempt budget is spent; even the right password is refused
	_, err = provider.SignInWithPassword(ctx, "owner@example.com", "password123")
	assert.ErrorIs(t, err, authflow.ErrTooManyRequests)
}

func TestSignInResetsAttemptCount(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	_, err := provider.SignUp(ctx, businessSignUp("owner@example.com"))
	require.NoError(t, err)
	require.NoError(t, provider.ConfirmEmail(ctx, "owner@example.com"))

	_, err = provider.SignInWithPassword(ctx, "owner@example.com", "wrong-password")
	assert.ErrorIs(t, err, authflow.ErrInvalidCredentials)

	_, err = provider.SignInWithPassword(ctx, "owner@example.com", "password123")
	require.NoError(t, err)

	// a successful login clears the attempt bookkeeping
	_, err = provider.SignInWithPassword(ctx, "owner@example.com", "password123")
	require.NoError(t, err)
}

func TestConfirmEmailIdempotent(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	pending, err := provider.SignUp(ctx, businessSignUp("owner@example.com"))
	require.NoError(t, err)

	require.NoError(t, provider.ConfirmEmail(ctx, "owner@example.com"))
	require.NoError(t, provider.ConfirmEmail(ctx, "owner@example.com"))

	// running the provisioning twice must not duplicate the profile
	profile, err := provider.Profiles().FetchBySubjectID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, profile.SubjectID)
}

func TestProfilesUpdate(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	pending, err := provider.SignUp(ctx, businessSignUp("owner@example.com"))
	require.NoError(t, err)
	require.NoError(t, provider.ConfirmEmail(ctx, "owner@example.com"))

	profile, err := provider.Profiles().FetchBySubjectID(ctx, pending.ID)
	require.NoError(t, err)

	name := "Renamed Owner"
	desc := "Bread and pastries"
	err = provider.Profiles().Update(ctx, profile.ID, authflow.ProfileUpdate{
		Name:                &name,
		BusinessDescription: &desc,
	})
	require.NoError(t, err)

	updated, err := provider.Profiles().FetchBySubjectID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Owner", updated.Name)
	assert.Equal(t, "Bread and pastries", updated.BusinessDescription)
	// untouched columns survive
	assert.Equal(t, "Corner Bakery", updated.BusinessName)
}

func TestProfilesUpdateMissingRow(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	name := "Renamed"
	err := provider.Profiles().Update(ctx, uuid.New(), authflow.ProfileUpdate{Name: &name})
	assert.True(t, authflow.IsProfileNotFound(err))
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	provider := setupProvider(t)

	_, err := provider.SignUp(ctx, businessSignUp("owner@example.com"))
	require.NoError(t, err)

	assert.NoError(t, provider.ResendVerification(ctx, "owner@example.com"))

	// unknown accounts are silently accepted so the endpoint cannot probe
	assert.NoError(t, provider.ResendVerification(ctx, "nobody@example.com"))
}
