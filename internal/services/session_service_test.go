package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mpaulsen/trustgate/internal/auth"
	"github.com/mpaulsen/trustgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newSessionService(repo SessionRepository, timeout time.Duration) *SessionService {
	events := &MockAuthEventRepository{}
	svc := NewSessionService(repo, timeout, newTestAuditService(events), newTestLogger())
	svc.now = func() time.Time { return sessionBase }
	return svc
}

// fakeToken is a well-shaped session token for tests.
var fakeToken = strings.Repeat("ab", auth.TokenBytes)

// ============================================================================
// Create
// ============================================================================

func TestSessionService_Create_MintsToken(t *testing.T) {
	var stored struct {
		token    string
		username string
		attrs    models.SessionAttributes
		now      time.Time
	}
	repo := &MockSessionRepository{
		CreateFunc: func(ctx context.Context, token, username string, attrs models.SessionAttributes, now time.Time) (*models.Session, error) {
			stored.token = token
			stored.username = username
			stored.attrs = attrs
			stored.now = now
			return &models.Session{Token: token, Username: username, Attributes: attrs, CreatedAt: now, LastActivityAt: now}, nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	token, err := svc.Create(context.Background(), "bob", nil)
	require.NoError(t, err)

	assert.Len(t, token, auth.TokenLength)
	assert.True(t, auth.ValidTokenShape(token))
	assert.Equal(t, token, stored.token)
	assert.Equal(t, "bob", stored.username)
	assert.NotNil(t, stored.attrs, "nil attributes are stored as an empty map")
	assert.Equal(t, sessionBase, stored.now)
}

func TestSessionService_Create_UniqueTokens(t *testing.T) {
	repo := &MockSessionRepository{}
	svc := newSessionService(repo, time.Hour)

	first, err := svc.Create(context.Background(), "bob", nil)
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), "bob", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSessionService_Create_StorageUnavailable(t *testing.T) {
	repo := &MockSessionRepository{
		CreateFunc: func(ctx context.Context, token, username string, attrs models.SessionAttributes, now time.Time) (*models.Session, error) {
			return nil, models.ErrStorageUnavailable
		},
	}
	svc := newSessionService(repo, time.Hour)

	token, err := svc.Create(context.Background(), "bob", nil)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Empty(t, token)
}

// ============================================================================
// Validate
// ============================================================================

func TestSessionService_Validate_RefreshesActivity(t *testing.T) {
	var touchedAt time.Time
	var passedTimeout time.Duration
	repo := &MockSessionRepository{
		ValidateAndTouchFunc: func(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error) {
			touchedAt = now
			passedTimeout = timeout
			return NewTestSession(token, "bob", now), nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	session, err := svc.Validate(context.Background(), fakeToken)
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Username)
	assert.Equal(t, sessionBase, touchedAt)
	assert.Equal(t, time.Hour, passedTimeout)
}

func TestSessionService_Validate_UnknownToken(t *testing.T) {
	repo := &MockSessionRepository{
		ValidateAndTouchFunc: func(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error) {
			return nil, models.ErrNotFound
		},
	}
	svc := newSessionService(repo, time.Hour)

	session, err := svc.Validate(context.Background(), fakeToken)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.Nil(t, session)
}

func TestSessionService_Validate_ExpiredEmitsAuditEvent(t *testing.T) {
	repo := &MockSessionRepository{
		ValidateAndTouchFunc: func(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error) {
			return nil, &models.ExpiredSessionError{Username: "alice"}
		},
	}
	events := &MockAuthEventRepository{}
	svc := NewSessionService(repo, time.Hour, newTestAuditService(events), newTestLogger())
	svc.now = func() time.Time { return sessionBase }

	session, err := svc.Validate(context.Background(), fakeToken)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated, "expired must look identical to missing")
	assert.Nil(t, session)

	require.Len(t, events.CreatedEvents, 1)
	event := events.CreatedEvents[0]
	assert.Equal(t, models.EventTypeSessionExpired, event.EventType)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, models.OutcomeDenied, event.Outcome)
}

func TestSessionService_Validate_MalformedTokenSkipsStorage(t *testing.T) {
	repo := &MockSessionRepository{
		ValidateAndTouchFunc: func(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error) {
			t.Fatal("malformed tokens must be rejected before storage")
			return nil, nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	for _, token := range []string{"", "short", "not-hex-" + fakeToken[8:]} {
		_, err := svc.Validate(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	}
}

func TestSessionService_Validate_StorageFailsClosed(t *testing.T) {
	repo := &MockSessionRepository{
		ValidateAndTouchFunc: func(ctx context.Context, token string, now time.Time, timeout time.Duration) (*models.Session, error) {
			return nil, models.ErrStorageUnavailable
		},
	}
	svc := newSessionService(repo, time.Hour)

	_, err := svc.Validate(context.Background(), fakeToken)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

// ============================================================================
// Update
// ============================================================================

func TestSessionService_Update_MergesAttributes(t *testing.T) {
	var merged models.SessionAttributes
	repo := &MockSessionRepository{
		UpdateAttributesFunc: func(ctx context.Context, token string, attrs models.SessionAttributes, now time.Time) (bool, error) {
			merged = attrs
			return true, nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	ok, err := svc.Update(context.Background(), fakeToken, models.SessionAttributes{"theme": "dark"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", merged["theme"])
}

func TestSessionService_Update_UnknownToken(t *testing.T) {
	repo := &MockSessionRepository{
		UpdateAttributesFunc: func(ctx context.Context, token string, attrs models.SessionAttributes, now time.Time) (bool, error) {
			return false, nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	ok, err := svc.Update(context.Background(), fakeToken, models.SessionAttributes{"k": "v"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionService_Update_EmptyAttributesNoOp(t *testing.T) {
	repo := &MockSessionRepository{
		UpdateAttributesFunc: func(ctx context.Context, token string, attrs models.SessionAttributes, now time.Time) (bool, error) {
			t.Fatal("empty updates must not hit storage")
			return false, nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	ok, err := svc.Update(context.Background(), fakeToken, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

// ============================================================================
// Destroy
// ============================================================================

func TestSessionService_Destroy_EmitsLogoutAudit(t *testing.T) {
	repo := &MockSessionRepository{
		GetFunc: func(ctx context.Context, token string) (*models.Session, error) {
			return NewTestSession(token, "bob", sessionBase), nil
		},
		DeleteFunc: func(ctx context.Context, token string) (bool, error) {
			return true, nil
		},
	}
	events := &MockAuthEventRepository{}
	svc := NewSessionService(repo, time.Hour, newTestAuditService(events), newTestLogger())

	ok, err := svc.Destroy(context.Background(), fakeToken)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, events.CreatedEvents, 1)
	assert.Equal(t, models.EventTypeLogout, events.CreatedEvents[0].EventType)
	assert.Equal(t, "bob", events.CreatedEvents[0].Username)
	assert.Equal(t, models.OutcomeSuccess, events.CreatedEvents[0].Outcome)
}

func TestSessionService_Destroy_UnknownTokenIsIdempotent(t *testing.T) {
	events := &MockAuthEventRepository{}
	svc := NewSessionService(&MockSessionRepository{}, time.Hour, newTestAuditService(events), newTestLogger())

	ok, err := svc.Destroy(context.Background(), fakeToken)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, events.CreatedEvents)
}

// ============================================================================
// Sweep / CountActive
// ============================================================================

func TestSessionService_Sweep(t *testing.T) {
	var sweptAt time.Time
	repo := &MockSessionRepository{
		DeleteExpiredFunc: func(ctx context.Context, now time.Time, timeout time.Duration) (int64, error) {
			sweptAt = now
			return 3, nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	removed, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.Equal(t, sessionBase, sweptAt)
}

func TestSessionService_CountActive_SweepsFirst(t *testing.T) {
	swept := false
	repo := &MockSessionRepository{
		DeleteExpiredFunc: func(ctx context.Context, now time.Time, timeout time.Duration) (int64, error) {
			swept = true
			return 1, nil
		},
		CountFunc: func(ctx context.Context) (int, error) {
			require.True(t, swept, "count must follow the sweep")
			return 2, nil
		},
	}
	svc := newSessionService(repo, time.Hour)

	count, err := svc.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
