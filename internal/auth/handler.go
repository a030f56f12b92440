package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redmonkez12/go-session-auth/internal/httputil"
	"github.com/redmonkez12/go-session-auth/internal/logging"
	"github.com/redmonkez12/go-session-auth/internal/user"
)

const resetLinkSentMessage = "If an account exists with that email, a password reset link has been sent."

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service             *Service
	concealUnknownEmail bool
}

// NewHandler creates the auth handlers. When concealUnknownEmail is set,
// forgot-password answers unknown addresses with the same success message
// as known ones.
func NewHandler(service *Service, concealUnknownEmail bool) *Handler {
	return &Handler{
		service:             service,
		concealUnknownEmail: concealUnknownEmail,
	}
}

// ErrorResponse represents an error response
type ErrorResponse = httputil.ErrorResponse

// MessageResponse represents a plain acknowledgement
type MessageResponse = httputil.MessageResponse

// UserResponse represents a user in API responses
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
}

// AuthResponse is returned when a session is started
type AuthResponse struct {
	User    UserResponse `json:"user"`
	Message string       `json:"message"`
}

// SessionResponse describes the caller's current session
type SessionResponse struct {
	User      UserResponse `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
	}
}

// Register handles user registration
// @Summary      Register a new user
// @Description  Create a new account and start a session. The session cookie is set on success.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterInput true "Registration form"
// @Success      201 {object} AuthResponse
// @Failure      400 {object} ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} ErrorResponse "Email already exists"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Invalid data.", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, logger, "registration", err)
		return
	}

	logger.Info("user registered successfully", "user_id", result.User.ID)

	SetCookie(w, result.Cookie)
	httputil.RespondJSON(w, AuthResponse{
		User:    toUserResponse(result.User),
		Message: "Registration successful.",
	}, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate with email and password and start a session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginInput true "Login credentials"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      401 {object} ErrorResponse "Invalid credentials"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Invalid data.", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		respondServiceError(w, logger, "login", err)
		return
	}

	logger.Info("user logged in successfully", "user_id", result.User.ID)

	SetCookie(w, result.Cookie)
	httputil.RespondJSON(w, AuthResponse{
		User:    toUserResponse(result.User),
		Message: "Logged in successfully.",
	}, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  End the current session and clear the session cookie
// @Tags         auth
// @Produce      json
// @Success      200 {object} MessageResponse
// @Failure      401 {object} ErrorResponse "No active session"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	sessions := h.service.Sessions()

	sessionID, _ := sessions.SessionIDFromRequest(r)

	blank, err := h.service.Logout(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			SetCookie(w, sessions.BlankCookie())
		}
		respondServiceError(w, logger, "logout", err)
		return
	}

	logger.Info("user logged out successfully")

	SetCookie(w, blank)
	httputil.RespondMessage(w, "Logged out.", http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Email a password reset link valid for two hours
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordInput true "Email address"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      404 {object} ErrorResponse "User not found (only when concealment is disabled)"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Invalid data.", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	err := h.service.ForgotPassword(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) && h.concealUnknownEmail {
			logger.Info("password reset requested for unknown email")
			httputil.RespondMessage(w, resetLinkSentMessage, http.StatusOK)
			return
		}
		respondServiceError(w, logger, "forgot password", err)
		return
	}

	logger.Info("password reset email sent")
	httputil.RespondMessage(w, resetLinkSentMessage, http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Set a new password using the emailed token. All sessions of the user are ended.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordInput true "New password and reset token"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} ErrorResponse "Invalid request, mismatching passwords or invalid token"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "Invalid data.", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req); err != nil {
		respondServiceError(w, logger, "password reset", err)
		return
	}

	logger.Info("password reset successfully")

	SetCookie(w, h.service.Sessions().BlankCookie())
	httputil.RespondMessage(w, "Password reset successfully. You can now login with your new password.", http.StatusOK)
}

// Session returns the current session
// @Summary      Current session
// @Description  Return the signed-in user and the session expiry
// @Tags         auth
// @Produce      json
// @Success      200 {object} SessionResponse
// @Failure      401 {object} ErrorResponse "No active session"
// @Router       /auth/session [get]
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	session, okSession := SessionFromContext(r.Context())
	u, okUser := UserFromContext(r.Context())
	if !okSession || !okUser {
		httputil.RespondErrorWithCode(w, UserMessage(ErrUnauthorized), httputil.CodeUnauthorized, http.StatusUnauthorized)
		return
	}

	httputil.RespondJSON(w, SessionResponse{
		User:      toUserResponse(u),
		ExpiresAt: session.ExpiresAt,
	}, http.StatusOK)
}

// Me returns the signed-in user
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Success      200 {object} UserResponse
// @Failure      401 {object} ErrorResponse "No active session"
// @Router       /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, UserMessage(ErrUnauthorized), httputil.CodeUnauthorized, http.StatusUnauthorized)
		return
	}

	httputil.RespondJSON(w, toUserResponse(u), http.StatusOK)
}

// respondServiceError maps a Service error to a status code and a short
// user-facing message. Internal details are only logged.
func respondServiceError(w http.ResponseWriter, logger *logging.Logger, action string, err error) {
	msg := UserMessage(err)

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		logger.Warn(action+" failed: validation error", "error", err.Error())
		httputil.RespondValidationError(w, msg, verr.Fields)
	case errors.Is(err, ErrDuplicateUser):
		logger.Warn(action + " failed: email already exists")
		httputil.RespondErrorWithCode(w, msg, httputil.CodeEmailAlreadyExists, http.StatusConflict)
	case errors.Is(err, ErrInvalidCredentials):
		logger.Warn(action + " failed: invalid credentials")
		httputil.RespondErrorWithCode(w, msg, httputil.CodeInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidToken):
		logger.Warn(action + " failed: invalid or expired token")
		httputil.RespondErrorWithCode(w, msg, httputil.CodeInvalidResetToken, http.StatusBadRequest)
	case errors.Is(err, ErrPasswordMismatch):
		logger.Warn(action + " failed: passwords do not match")
		httputil.RespondErrorWithCode(w, msg, httputil.CodePasswordMismatch, http.StatusBadRequest)
	case errors.Is(err, ErrUserNotFound):
		logger.Warn(action + " failed: user not found")
		httputil.RespondErrorWithCode(w, msg, httputil.CodeUserNotFound, http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		logger.Warn(action + " failed: no active session")
		httputil.RespondErrorWithCode(w, msg, httputil.CodeUnauthorized, http.StatusUnauthorized)
	default:
		logger.Error(action+" failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, msg, httputil.CodeInternalError, http.StatusInternalServerError)
	}
}
