package services

import (
	"context"
	"testing"
	"time"

	"github.com/mpaulsen/trustgate/internal/lockout"
	"github.com/mpaulsen/trustgate/internal/models"
	"github.com/mpaulsen/trustgate/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trustBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type trustFixture struct {
	svc         *TrustService
	credentials *MockCredentialStore
	sessions    *MockSessionStore
	events      *MockAuthEventRepository
	clock       *time.Time
}

func newTrustFixture() *trustFixture {
	credentials := &MockCredentialStore{}
	sessions := &MockSessionStore{}
	events := &MockAuthEventRepository{}

	clock := trustBase
	svc := NewTrustService(
		credentials,
		sessions,
		lockout.NewTracker(5, 30*time.Minute),
		ratelimit.NewLimiter(100, time.Minute),
		newTestAuditService(events),
		newTestLogger(),
	)
	svc.now = func() time.Time { return clock }

	return &trustFixture{
		svc:         svc,
		credentials: credentials,
		sessions:    sessions,
		events:      events,
		clock:       &clock,
	}
}

func (f *trustFixture) eventsOf(eventType string) []*models.AuthEvent {
	var out []*models.AuthEvent
	for _, e := range f.events.CreatedEvents {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// Login
// ============================================================================

func TestTrustService_Login_Success(t *testing.T) {
	f := newTrustFixture()
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		return username == "bob" && password == "hunter22", nil
	}
	f.sessions.CreateFunc = func(ctx context.Context, username string, attrs models.SessionAttributes) (string, error) {
		return "token_for_" + username, nil
	}

	token, err := f.svc.Login(context.Background(), "bob", "hunter22", "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "token_for_bob", token)

	logins := f.eventsOf(models.EventTypeLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, models.OutcomeSuccess, logins[0].Outcome)
	assert.Equal(t, "bob", logins[0].Username)
}

func TestTrustService_Login_WrongPassword(t *testing.T) {
	f := newTrustFixture()
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		return false, nil
	}
	f.sessions.CreateFunc = func(ctx context.Context, username string, attrs models.SessionAttributes) (string, error) {
		t.Fatal("no session may be minted for a failed login")
		return "", nil
	}

	token, err := f.svc.Login(context.Background(), "bob", "wrong", "203.0.113.9")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Empty(t, token)

	logins := f.eventsOf(models.EventTypeLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, models.OutcomeFailure, logins[0].Outcome)
}

func TestTrustService_Login_UnknownUserLooksLikeWrongPassword(t *testing.T) {
	f := newTrustFixture()
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		return false, nil // unknown user and wrong password are the same false
	}

	_, unknownErr := f.svc.Login(context.Background(), "ghost", "whatever", "")
	_, wrongErr := f.svc.Login(context.Background(), "bob", "wrong", "")

	assert.ErrorIs(t, unknownErr, models.ErrInvalidCredentials)
	assert.Equal(t, unknownErr, wrongErr)
}

func TestTrustService_Login_LocksAfterRepeatedFailures(t *testing.T) {
	f := newTrustFixture()
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		return false, nil
	}

	// Five failures inside the window trip the lockout.
	for i := 0; i < 5; i++ {
		*f.clock = trustBase.Add(time.Duration(i) * time.Minute)
		_, err := f.svc.Login(context.Background(), "bob", "wrong", "")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	// The fifth failure crossed the threshold and was audited as a lockout.
	require.Len(t, f.eventsOf(models.EventTypeLockout), 1)

	// The sixth attempt is refused outright, correct password or not.
	*f.clock = trustBase.Add(5 * time.Minute)
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		t.Fatal("locked accounts must not reach credential verification")
		return false, nil
	}

	_, err := f.svc.Login(context.Background(), "bob", "hunter22", "")
	var lockedErr *models.AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Greater(t, lockedErr.RemainingMinutes, 0)
	assert.LessOrEqual(t, lockedErr.RemainingMinutes, 30)
}

func TestTrustService_Login_LockoutExpiresWithWindow(t *testing.T) {
	f := newTrustFixture()
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		return password == "hunter22", nil
	}
	f.sessions.CreateFunc = func(ctx context.Context, username string, attrs models.SessionAttributes) (string, error) {
		return "fresh_token", nil
	}

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(context.Background(), "bob", "wrong", "")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	// 31 minutes later all five failures have aged out.
	*f.clock = trustBase.Add(31 * time.Minute)
	token, err := f.svc.Login(context.Background(), "bob", "hunter22", "")
	require.NoError(t, err)
	assert.Equal(t, "fresh_token", token)
}

func TestTrustService_Login_SuccessClearsFailureHistory(t *testing.T) {
	f := newTrustFixture()
	attempts := 0
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		attempts++
		return password == "hunter22", nil
	}

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(context.Background(), "bob", "wrong", "")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	_, err := f.svc.Login(context.Background(), "bob", "hunter22", "")
	require.NoError(t, err)

	// The slate is clean: four more failures still stay under the threshold.
	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(context.Background(), "bob", "wrong", "")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}
	assert.Equal(t, 9, attempts, "every attempt reached verification")
}

func TestTrustService_Login_RateLimitedByIP(t *testing.T) {
	credentials := &MockCredentialStore{
		VerifyFunc: func(ctx context.Context, username, password string) (bool, error) {
			return true, nil
		},
	}
	sessions := &MockSessionStore{}
	events := &MockAuthEventRepository{}

	clock := trustBase
	svc := NewTrustService(
		credentials,
		sessions,
		lockout.NewTracker(5, 30*time.Minute),
		ratelimit.NewLimiter(3, time.Minute),
		newTestAuditService(events),
		newTestLogger(),
	)
	svc.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), "bob", "hunter22", "203.0.113.9")
		require.NoError(t, err)
	}

	_, err := svc.Login(context.Background(), "bob", "hunter22", "203.0.113.9")
	assert.ErrorIs(t, err, models.ErrRateLimited)

	// A different source address still gets through.
	_, err = svc.Login(context.Background(), "bob", "hunter22", "198.51.100.7")
	assert.NoError(t, err)
}

func TestTrustService_Login_StorageFailsClosed(t *testing.T) {
	f := newTrustFixture()
	f.credentials.VerifyFunc = func(ctx context.Context, username, password string) (bool, error) {
		return false, models.ErrStorageUnavailable
	}

	_, err := f.svc.Login(context.Background(), "bob", "hunter22", "")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, models.ErrInvalidCredentials)
}

// ============================================================================
// Logout / Authenticate
// ============================================================================

func TestTrustService_Logout(t *testing.T) {
	f := newTrustFixture()
	f.sessions.DestroyFunc = func(ctx context.Context, token string) (bool, error) {
		return token == "known", nil
	}

	ok, err := f.svc.Logout(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Logout(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrustService_Authenticate(t *testing.T) {
	f := newTrustFixture()
	f.sessions.ValidateFunc = func(ctx context.Context, token string) (*models.Session, error) {
		if token == "live" {
			return NewTestSession(token, "bob", trustBase), nil
		}
		return nil, models.ErrNotAuthenticated
	}

	session, err := f.svc.Authenticate(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Username)
	assert.True(t, f.svc.IsAuthenticated(context.Background(), "live"))

	_, err = f.svc.Authenticate(context.Background(), "stale")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.False(t, f.svc.IsAuthenticated(context.Background(), "stale"))
}

// ============================================================================
// Register / ChangePassword / DeleteAccount
// ============================================================================

func TestTrustService_Register_Success(t *testing.T) {
	f := newTrustFixture()
	added := ""
	f.credentials.AddFunc = func(ctx context.Context, username, password string) error {
		added = username
		return nil
	}

	require.NoError(t, f.svc.Register(context.Background(), "newuser", "hunter22", "hunter22"))
	assert.Equal(t, "newuser", added)

	registers := f.eventsOf(models.EventTypeRegister)
	require.Len(t, registers, 1)
	assert.Equal(t, models.OutcomeSuccess, registers[0].Outcome)
}

func TestTrustService_Register_ConfirmationMismatch(t *testing.T) {
	f := newTrustFixture()
	f.credentials.AddFunc = func(ctx context.Context, username, password string) error {
		t.Fatal("mismatched confirmation must not reach the store")
		return nil
	}

	err := f.svc.Register(context.Background(), "newuser", "hunter22", "hunter23")
	assert.ErrorIs(t, err, models.ErrInvalidFormat)
}

func TestTrustService_Register_Duplicate(t *testing.T) {
	f := newTrustFixture()
	f.credentials.AddFunc = func(ctx context.Context, username, password string) error {
		return models.ErrDuplicateUser
	}

	err := f.svc.Register(context.Background(), "existing", "hunter22", "hunter22")
	assert.ErrorIs(t, err, models.ErrDuplicateUser)

	registers := f.eventsOf(models.EventTypeRegister)
	require.Len(t, registers, 1)
	assert.Equal(t, models.OutcomeFailure, registers[0].Outcome)
	require.NotNil(t, registers[0].Reason)
	assert.Equal(t, "duplicate_user", *registers[0].Reason)
}

func TestTrustService_ChangePassword(t *testing.T) {
	f := newTrustFixture()
	f.credentials.ChangePasswordFunc = func(ctx context.Context, username, oldPassword, newPassword string) error {
		if oldPassword != "hunter22" {
			return models.ErrWrongPassword
		}
		return nil
	}

	require.NoError(t, f.svc.ChangePassword(context.Background(), "bob", "hunter22", "hunter23"))
	err := f.svc.ChangePassword(context.Background(), "bob", "nope", "hunter23")
	assert.ErrorIs(t, err, models.ErrWrongPassword)

	changes := f.eventsOf(models.EventTypePasswordChange)
	require.Len(t, changes, 2)
	assert.Equal(t, models.OutcomeSuccess, changes[0].Outcome)
	assert.Equal(t, models.OutcomeFailure, changes[1].Outcome)
}

func TestTrustService_DeleteAccount_ProtectedAdmin(t *testing.T) {
	f := newTrustFixture()
	f.credentials.DeleteFunc = func(ctx context.Context, username string) error {
		return models.ErrProtectedAccount
	}

	err := f.svc.DeleteAccount(context.Background(), "admin")
	assert.ErrorIs(t, err, models.ErrProtectedAccount)

	deletes := f.eventsOf(models.EventTypeAccountDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, models.OutcomeFailure, deletes[0].Outcome)
}

// ============================================================================
// Admin surface
// ============================================================================

func TestTrustService_ListUsers(t *testing.T) {
	f := newTrustFixture()
	f.credentials.ListFunc = func(ctx context.Context) ([]string, error) {
		return []string{"admin", "bob"}, nil
	}

	users, err := f.svc.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "bob"}, users)
}

func TestTrustService_ActiveSessionCount(t *testing.T) {
	f := newTrustFixture()
	f.sessions.CountActiveFunc = func(ctx context.Context) (int, error) {
		return 4, nil
	}

	count, err := f.svc.ActiveSessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
