package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/invoicehub/internal/accounts"
	"github.com/geocoder89/invoicehub/internal/config"
	"github.com/geocoder89/invoicehub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (accounts.Session, error)
	Login(ctx context.Context, in accounts.LoginInput) (accounts.Session, error)
}

type AuthHandler struct {
	accounts AccountService
}

func NewAuthHandler(svc AccountService) *AuthHandler {
	return &AuthHandler{accounts: svc}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	// Either key links the account to an external identity provider.
	ExternalAuthID *string `json:"externalAuthId"`
	Auth0ID        *string `json:"auth0Id"`
}

func (r RegisterRequest) externalID() *string {
	if r.ExternalAuthID != nil {
		return r.ExternalAuthID
	}
	return r.Auth0ID
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	session, err := h.accounts.Register(cctx, accounts.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		Name:           req.Name,
		ExternalAuthID: req.externalID(),
	})
	if err != nil {
		switch {
		case respondValidationOr(ctx, err):
		case errors.Is(err, user.ErrEmailTaken):
			RespondError(ctx, http.StatusBadRequest, "email_taken", "Email already registered", nil)
		case errors.Is(err, user.ErrExternalAuthIDTaken):
			RespondError(ctx, http.StatusBadRequest, "external_auth_id_taken", "User with this auth0Id already exists", nil)
		default:
			RespondInternal(ctx, "Registration failed", err)
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"token": session.Token,
		"user":  session.User,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// short timeout for the user lookup
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	session, err := h.accounts.Login(cctx, accounts.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			RespondUnAuthorized(ctx, "invalid_credentials", "Invalid credentials")
			return
		}
		RespondInternal(ctx, "Authentication failed", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"token": session.Token,
		"user":  session.User,
	})
}
