package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/service"
)

// AuthHandler manages account creation and sign-in.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup   → create an account
//   - HandleLogin    → check username/password, start a session
//   - HandleRecover  → sign in with the security answer instead
//   - HandleLogout   → clear the session cookie
//   - HandleMe       → return the signed-in user (needs RequireAuth)
//
// SESSIONS:
// When the IdentityService has a TokenService, a successful sign-in returns
// a JWT both in the body ("token", for non-browser clients) and in an
// HttpOnly cookie. Without one, sign-in still succeeds and the client keeps
// track of the user itself, as the original web client does.
type AuthHandler struct {
	identity   *service.IdentityService
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler. sessionTTL is the cookie lifetime
// and should match the token lifetime.
func NewAuthHandler(identity *service.IdentityService, sessionTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity:   identity,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type recoverRequest struct {
	Username string `json:"username"`
	Answer   string `json:"answer"`
}

// AuthResponse is returned by a successful login or recovery.
type AuthResponse struct {
	Message string        `json:"message"`
	User    *UserResponse `json:"user"`
	Token   string        `json:"token,omitempty"`
}

// WrongPasswordResponse tells the client the account exists and which
// question to ask for recovery.
type WrongPasswordResponse struct {
	NeedsRecovery bool   `json:"needsRecovery"`
	Question      string `json:"question"`
	Message       string `json:"message"`
}

// HandleSignup creates an account.
//
// HTTP: POST /api/signup
// REQUEST BODY: {"username":"alice","password":"pw","question":"pet?","answer":"dog"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid signup JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	if _, err := h.identity.Signup(r.Context(), req.Username, req.Password, req.Question, req.Answer); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Signed up successfully"})
}

// HandleLogin checks a username and password.
//
// HTTP: POST /api/login
//
// RESPONSES:
//   - 200 {message, user, token?}
//   - 401 {error, message}                      unknown username
//   - 401 {needsRecovery, question, message}    wrong password
//   - 429                                        too many attempts
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid login JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	result, err := h.identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var wrong *service.WrongPasswordError
		switch {
		case errors.As(err, &wrong):
			writeJSON(w, http.StatusUnauthorized, WrongPasswordResponse{
				NeedsRecovery: true,
				Question:      wrong.Question,
				Message:       "Incorrect password",
			})
		case errors.Is(err, apperror.ErrNotFound):
			// Login reports an unknown account as 401, not 404.
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "No account with that username",
			})
		default:
			writeError(w, err)
		}
		return
	}

	h.startSession(w, result)
}

// HandleRecover signs a user in with their security answer.
//
// HTTP: POST /api/login/recover
// REQUEST BODY: {"username":"alice","answer":"dog"}
func (h *AuthHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid recovery JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	result, err := h.identity.RecoverByAnswer(r.Context(), req.Username, req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}

	h.startSession(w, result)
}

// startSession writes the session cookie (when there is a token) and the
// success body shared by login and recovery.
func (h *AuthHandler) startSession(w http.ResponseWriter, result *service.AuthResult) {
	if result.Token != "" {
		// HttpOnly = JavaScript cannot read this cookie (XSS protection).
		// SameSite=Lax = sent on top-level navigations but not cross-site POSTs.
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    result.Token,
			Path:     "/",
			MaxAge:   int(h.sessionTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "Logged in successfully",
		User:    toUserResponse(result.User),
		Token:   result.Token,
	})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /api/logout
//
// Tokens are stateless, so the token itself stays valid until it expires;
// without the cookie the browser just stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// HandleMe returns the user the session token belongs to.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth middleware sets userID in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	user, err := h.identity.CurrentUser(r.Context(), userID)
	if err != nil {
		// A valid token for a user that no longer exists.
		if errors.Is(err, apperror.ErrNotFound) {
			writeError(w, apperror.Unauthorized("valid authentication required"))
			return
		}
		h.logger.Error("failed to load current user",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}
