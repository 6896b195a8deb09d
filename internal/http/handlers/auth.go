package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rjwalters/userhub/internal/config"
	"github.com/rjwalters/userhub/internal/domain/user"
	"github.com/rjwalters/userhub/internal/observability"
	"github.com/rjwalters/userhub/internal/repo/mongodb"
	"github.com/rjwalters/userhub/internal/security"
)

type UserReader interface {
	GetByEmailWithPassword(ctx context.Context, email string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	jwt        TokenIssuer
	prom       *observability.Prom
}

func NewAuthHandler(users UserReader, userWriter UserWriter, jwt TokenIssuer, prom *observability.Prom) *AuthHandler {
	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		jwt:        jwt,
		prom:       prom,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=user admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) authResult(flow, result string) {
	if h.prom != nil {
		h.prom.AuthResults.WithLabelValues(flow, result).Inc()
	}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// bcrypt at cost 12 dominates this budget
	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		h.authResult("register", "error")
		RespondInternal(ctx, "Could not create user")
		return
	}

	role := req.Role

	if role == "" {
		role = user.RoleUser
	}

	u, err := h.userWriter.Create(cctx, req.Email, hash, req.Name, role)

	if err != nil {
		if errors.Is(err, mongodb.ErrEmailAlreadyUsed) {
			h.authResult("register", "rejected")
			RespondBadRequest(ctx, "Email is already in use")
			return
		}

		h.authResult("register", "error")
		RespondInternal(ctx, "Could not create user")
		return
	}

	token, err := h.jwt.Issue(u.ID)

	if err != nil {
		h.authResult("register", "error")
		RespondInternal(ctx, "Could not generate token")
		return
	}

	h.authResult("register", "ok")

	ctx.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"token":  token,
		"data":   gin.H{"user": u},
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}
	// short timeout for the lookup; the bcrypt compare runs after
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmailWithPassword(cctx, req.Email)
	if err != nil {
		if errors.Is(err, mongodb.ErrUserNotFound) {
			// identical message for unknown email and bad password,
			// so responses don't reveal which accounts exist
			h.authResult("login", "rejected")
			RespondUnauthorized(ctx, "Incorrect email or password")
			return
		}

		h.authResult("login", "error")
		RespondInternal(ctx, "Could not log in")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		h.authResult("login", "rejected")
		RespondUnauthorized(ctx, "Incorrect email or password")
		return
	}

	token, err := h.jwt.Issue(foundUser.ID)

	if err != nil {
		h.authResult("login", "error")
		RespondInternal(ctx, "Could not generate token")
		return
	}

	foundUser.PasswordHash = ""

	h.authResult("login", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"status": "success",
		"token":  token,
		"data":   gin.H{"user": foundUser},
	})
}
