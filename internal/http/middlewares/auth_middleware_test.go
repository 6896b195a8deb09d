package middlewares_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rjwalters/userhub/internal/auth"
	"github.com/rjwalters/userhub/internal/domain/user"
	"github.com/rjwalters/userhub/internal/http/middlewares"
	"github.com/rjwalters/userhub/internal/repo/mongodb"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	verifyFn func(token string) (string, error)
}

func (f *fakeVerifier) Verify(token string) (string, error) {
	if f.verifyFn != nil {
		return f.verifyFn(token)
	}
	return "", auth.ErrTokenInvalid
}

type fakeLoader struct {
	getByIDFn func(ctx context.Context, id string) (user.User, error)
}

func (f *fakeLoader) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return user.User{}, mongodb.ErrUserNotFound
}

func okVerifier(subject string) *fakeVerifier {
	return &fakeVerifier{verifyFn: func(token string) (string, error) {
		return subject, nil
	}}
}

func loaderFor(u user.User) *fakeLoader {
	return &fakeLoader{getByIDFn: func(ctx context.Context, id string) (user.User, error) {
		if id != u.ID {
			return user.User{}, mongodb.ErrUserNotFound
		}
		return u, nil
	}}
}

func getWithAuth(r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func failBody(t *testing.T, w *httptest.ResponseRecorder) (status, message string) {
	t.Helper()

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v body=%s", err, w.Body.String())
	}
	return body.Status, body.Message
}

func TestRequireAuth(t *testing.T) {
	alice := user.User{ID: "id-1", Email: "alice@x.com", Name: "Alice", Role: user.RoleUser}

	tests := []struct {
		name           string
		authHeader     string
		verifier       *fakeVerifier
		loader         *fakeLoader
		wantStatusCode int
		wantMessage    string
	}{
		{
			name:           "missing_header",
			authHeader:     "",
			verifier:       okVerifier("id-1"),
			loader:         loaderFor(alice),
			wantStatusCode: http.StatusUnauthorized,
			wantMessage:    "You are not logged in. Please log in to get access.",
		},
		{
			name:           "not_bearer",
			authHeader:     "Basic dXNlcjpwYXNz",
			verifier:       okVerifier("id-1"),
			loader:         loaderFor(alice),
			wantStatusCode: http.StatusUnauthorized,
			wantMessage:    "You are not logged in. Please log in to get access.",
		},
		{
			name:           "empty_bearer",
			authHeader:     "Bearer ",
			verifier:       okVerifier("id-1"),
			loader:         loaderFor(alice),
			wantStatusCode: http.StatusUnauthorized,
			wantMessage:    "You are not logged in. Please log in to get access.",
		},
		{
			name:       "invalid_token",
			authHeader: "Bearer bad-token",
			verifier: &fakeVerifier{verifyFn: func(token string) (string, error) {
				return "", auth.ErrTokenInvalid
			}},
			loader:         loaderFor(alice),
			wantStatusCode: http.StatusUnauthorized,
			wantMessage:    "Invalid or expired token. Please log in again.",
		},
		{
			name:       "expired_token",
			authHeader: "Bearer expired-token",
			verifier: &fakeVerifier{verifyFn: func(token string) (string, error) {
				return "", auth.ErrTokenExpired
			}},
			loader:         loaderFor(alice),
			wantStatusCode: http.StatusUnauthorized,
			wantMessage:    "Invalid or expired token. Please log in again.",
		},
		{
			name:           "user_deleted",
			authHeader:     "Bearer good-token",
			verifier:       okVerifier("id-gone"),
			loader:         loaderFor(alice),
			wantStatusCode: http.StatusUnauthorized,
			wantMessage:    "The user belonging to this token no longer exists.",
		},
		{
			name:       "store_error",
			authHeader: "Bearer good-token",
			verifier:   okVerifier("id-1"),
			loader: &fakeLoader{getByIDFn: func(ctx context.Context, id string) (user.User, error) {
				return user.User{}, errors.New("db down")
			}},
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name:           "success",
			authHeader:     "Bearer good-token",
			verifier:       okVerifier("id-1"),
			loader:         loaderFor(alice),
			wantStatusCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			m := middlewares.NewAuthMiddleware(tt.verifier, tt.loader)

			r := gin.New()
			r.GET("/protected", m.RequireAuth(), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "success"})
			})

			w := getWithAuth(r, "/protected", tt.authHeader)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantMessage != "" {
				_, message := failBody(t, w)
				if message != tt.wantMessage {
					t.Fatalf("got message %q, want %q", message, tt.wantMessage)
				}
			}
		})
	}
}

func TestRequireAuth_AttachesIdentity(t *testing.T) {
	alice := user.User{ID: "id-1", Email: "alice@x.com", Name: "Alice", Role: user.RoleAdmin}
	m := middlewares.NewAuthMiddleware(okVerifier("id-1"), loaderFor(alice))

	r := gin.New()
	r.GET("/whoami", m.RequireAuth(), func(c *gin.Context) {
		u, ok := middlewares.UserFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"id": u.ID, "role": u.Role}})
	})

	w := getWithAuth(r, "/whoami", "Bearer good-token")

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Data struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body.Data.ID != "id-1" || body.Data.Role != user.RoleAdmin {
		t.Fatalf("unexpected identity on context: %+v", body.Data)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name           string
		role           string
		allowed        []string
		wantStatusCode int
	}{
		{
			name:           "admin_allowed",
			role:           user.RoleAdmin,
			allowed:        []string{user.RoleAdmin},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "user_forbidden",
			role:           user.RoleUser,
			allowed:        []string{user.RoleAdmin},
			wantStatusCode: http.StatusForbidden,
		},
		{
			name:           "multiple_roles",
			role:           user.RoleUser,
			allowed:        []string{user.RoleAdmin, user.RoleUser},
			wantStatusCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			u := user.User{ID: "id-1", Role: tt.role}
			m := middlewares.NewAuthMiddleware(okVerifier("id-1"), loaderFor(u))

			r := gin.New()
			r.GET("/admin", m.RequireAuth(), m.RequireRole(tt.allowed...), func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "success"})
			})

			w := getWithAuth(r, "/admin", "Bearer good-token")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode == http.StatusForbidden {
				_, message := failBody(t, w)
				if message != "You do not have permission to perform this action" {
					t.Fatalf("unexpected message: %q", message)
				}
			}
		})
	}
}

func TestRequireRole_WithoutIdentityIs401(t *testing.T) {
	m := middlewares.NewAuthMiddleware(okVerifier("id-1"), loaderFor(user.User{}))

	// RequireRole mounted without RequireAuth: no identity was ever
	// established, so this is an authentication failure, not authorization.
	r := gin.New()
	r.GET("/admin", m.RequireRole(user.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	w := getWithAuth(r, "/admin", "Bearer good-token")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusUnauthorized, w.Body.String())
	}
}
