package handlers

import (
	"context"
	"net/http"
	"time"

	"classroom/backend/internal/gateway/util"
	"classroom/backend/internal/rpc"
)

// requestTimeout bounds every unary call made on behalf of a request
const requestTimeout = 10 * time.Second

// AuthHandler holds the gRPC client for the auth methods.
type AuthHandler struct {
	Client *rpc.Client
}

// RESTLoginRequest mirrors the expected JSON input for /auth/login
type RESTLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RESTRegisterRequest mirrors the expected JSON input for /auth/register
type RESTRegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=student teacher admin"`
}

// RESTChangePasswordRequest mirrors the expected JSON input for /auth/change-password
type RESTChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,nefield=OldPassword"`
}

// rpcContext carries the caller's token, or the request's own header on
// public routes, onto the outgoing call
func rpcContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := r.Context()
	if caller, ok := util.CallerFrom(ctx); ok {
		ctx = rpc.WithToken(ctx, caller.Token)
	} else if token, err := util.ExtractToken(r); err == nil {
		ctx = rpc.WithToken(ctx, token)
	}
	return context.WithTimeout(ctx, requestTimeout)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTLoginRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.Client.Login(ctx, reqBody.Email, reqBody.Password)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"user":       res.User,
	})
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTRegisterRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	user, err := h.Client.Register(ctx, rpc.RegisterRequest{
		Email:    reqBody.Email,
		Password: reqBody.Password,
		Name:     reqBody.Name,
		Role:     reqBody.Role,
	})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, user)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// Logout of an unknown or missing token is still a successful logout
	if _, err := util.ExtractToken(r); err != nil {
		util.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Logged out",
		})
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	ack, err := h.Client.Logout(ctx)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": ack.Success,
		"message": ack.Message,
	})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, _ := util.CallerFrom(r.Context())
	util.WriteJSON(w, http.StatusOK, caller.Principal)
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTChangePasswordRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	ack, err := h.Client.ChangePassword(ctx, reqBody.OldPassword, reqBody.NewPassword)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": ack.Success,
		"message": ack.Message,
	})
}
