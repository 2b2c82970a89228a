package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/mpaulsen/trustgate/internal/handlers"
	"github.com/mpaulsen/trustgate/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestLogin_Success(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		LoginFunc: func(ctx context.Context, username, password, ipAddress string) (string, error) {
			return "token_abc123", nil
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "bob",
		Password: "hunter22",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "token_abc123", resp.Token)
	assert.Equal(t, "bob", resp.Username)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		LoginFunc: func(ctx context.Context, username, password, ipAddress string) (string, error) {
			return "", models.ErrInvalidCredentials
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "bob",
		Password: "wrongpassword",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "invalid_credentials")
}

func TestLogin_UnknownUserSameResponseAsWrongPassword(t *testing.T) {
	// Anti-enumeration: both cases surface the identical error payload.
	mockTrust := &handlers.MockTrustService{
		LoginFunc: func(ctx context.Context, username, password, ipAddress string) (string, error) {
			return "", models.ErrInvalidCredentials
		},
	}
	handler := handlers.NewAuthHandler(mockTrust, nil)

	unknown := httptest.NewRecorder()
	handler.Login(unknown, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "ghost",
		Password: "anything",
	}))

	wrong := httptest.NewRecorder()
	handler.Login(wrong, handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "bob",
		Password: "wrongpassword",
	}))

	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
}

func TestLogin_AccountLocked(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		LoginFunc: func(ctx context.Context, username, password, ipAddress string) (string, error) {
			return "", &models.AccountLockedError{RemainingMinutes: 17}
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "bob",
		Password: "hunter22",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp struct {
		Error            string `json:"error"`
		RemainingMinutes int    `json:"remaining_minutes"`
	}
	handlers.AssertJSONResponse(t, w, 403, &resp)
	assert.Equal(t, "account_locked", resp.Error)
	assert.Equal(t, 17, resp.RemainingMinutes)
}

func TestLogin_RateLimited(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		LoginFunc: func(ctx context.Context, username, password, ipAddress string) (string, error) {
			return "", models.ErrRateLimited
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "bob",
		Password: "hunter22",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestLogin_StorageUnavailable(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		LoginFunc: func(ctx context.Context, username, password, ipAddress string) (string, error) {
			return "", models.ErrStorageUnavailable
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "bob",
		Password: "hunter22",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 503, "storage_unavailable")
}

func TestLogin_MissingFields(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockTrustService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "bob",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLogout_Success(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		LogoutFunc: func(ctx context.Context, token string) (bool, error) {
			return true, nil
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer some_token")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 204, w.Code)
}

func TestLogout_UnknownTokenStillSucceeds(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		LogoutFunc: func(ctx context.Context, token string) (bool, error) {
			return false, nil
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer already_gone")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 204, w.Code)
}

func TestLogout_MissingHeader(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockTrustService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	handlers.AssertErrorResponse(t, w, 401, "not_authenticated")
}

func TestRegister_Success(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		RegisterFunc: func(ctx context.Context, username, password, confirm string) error {
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Username:        "newuser",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	var resp map[string]string
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.Equal(t, "newuser", resp["username"])
}

func TestRegister_PasswordMismatch(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockTrustService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Username:        "newuser",
		Password:        "hunter22",
		ConfirmPassword: "hunter23",
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestRegister_Duplicate(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		RegisterFunc: func(ctx context.Context, username, password, confirm string) error {
			return models.ErrDuplicateUser
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Username:        "existing",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})

	w := httptest.NewRecorder()
	handler.Register(w, req)

	handlers.AssertErrorResponse(t, w, 409, "conflict")
}

func TestChangePassword_Success(t *testing.T) {
	changed := false
	mockTrust := &handlers.MockTrustService{
		ChangePasswordFunc: func(ctx context.Context, username, oldPassword, newPassword string) error {
			assert.Equal(t, "bob", username)
			changed = true
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/change-password", handlers.ChangePasswordRequest{
		OldPassword: "hunter22",
		NewPassword: "hunter23",
	})
	req = handlers.WithSessionContext(req, "bob")

	w := httptest.NewRecorder()
	handler.ChangePassword(w, req)

	assert.Equal(t, 204, w.Code)
	assert.True(t, changed)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	mockTrust := &handlers.MockTrustService{
		ChangePasswordFunc: func(ctx context.Context, username, oldPassword, newPassword string) error {
			return models.ErrWrongPassword
		},
	}

	handler := handlers.NewAuthHandler(mockTrust, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/change-password", handlers.ChangePasswordRequest{
		OldPassword: "nope",
		NewPassword: "hunter23",
	})
	req = handlers.WithSessionContext(req, "bob")

	w := httptest.NewRecorder()
	handler.ChangePassword(w, req)

	handlers.AssertErrorResponse(t, w, 401, "wrong_password")
}

func TestChangePassword_RequiresSession(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockTrustService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/change-password", handlers.ChangePasswordRequest{
		OldPassword: "hunter22",
		NewPassword: "hunter23",
	})

	w := httptest.NewRecorder()
	handler.ChangePassword(w, req)

	handlers.AssertErrorResponse(t, w, 401, "not_authenticated")
}

func TestSession_EchoesValidatedSession(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockTrustService{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/session", nil)
	req = handlers.WithSessionContext(req, "bob")

	w := httptest.NewRecorder()
	handler.Session(w, req)

	var resp handlers.SessionResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "bob", resp.Username)
}
