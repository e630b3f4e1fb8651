package handlers

import (
	"net/http"
	"strings"

	"incident-desk/config"
	"incident-desk/core/apperr"
	"incident-desk/core/auth"
	"incident-desk/core/identity"
	"incident-desk/core/rbac"
	"incident-desk/core/store"
	"incident-desk/core/utils"
)

type AuthHandler struct {
	cfg            *config.AppConfig
	identity       *identity.Service
	sessionManager *auth.SessionManager
	policy         *rbac.Policy
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, ids *identity.Service, sm *auth.SessionManager, policy *rbac.Policy, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, identity: ids, sessionManager: sm, policy: policy, logger: logger}
}

type userDTO struct {
	ID          int64             `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	Role        string            `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
}

var allPermissions = []rbac.Permission{
	rbac.PermIncidentsCreate,
	rbac.PermIncidentsView,
	rbac.PermIncidentsRespond,
	rbac.PermIncidentsLegacyRespond,
	rbac.PermNotificationsView,
}

func (h *AuthHandler) toDTO(u *store.User) userDTO {
	perms := []rbac.Permission{}
	for _, p := range allPermissions {
		if h.policy.Allowed([]string{u.Role}, p) {
			perms = append(perms, p)
		}
	}
	return userDTO{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, Permissions: perms}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if payload.ConfirmPassword != "" && payload.ConfirmPassword != payload.Password {
		writeError(w, r, h.logger, apperr.Validation("auth.passwordMismatch", "passwords do not match"))
		return
	}
	reg, err := h.identity.Register(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarning(map[string]any{"user": h.toDTO(reg.User)}, reg.Warning))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credentials
	if err := decodeJSON(w, r, &cred); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	login, err := h.identity.Authenticate(r.Context(), cred.Username, cred.Password)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("AUTH login failed for %q: %s", strings.TrimSpace(cred.Username), apperr.As(err).Code)
		}
		writeError(w, r, h.logger, err)
		return
	}
	sess, err := h.sessionManager.Create(r.Context(), login.User, ClientIP(r, h.cfg), r.UserAgent())
	if err != nil {
		writeError(w, r, h.logger, apperr.Storage(err))
		return
	}
	cookieSecure := IsSecureRequest(r, h.cfg)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, withWarning(map[string]any{
		"user":       h.toDTO(login.User),
		"csrf_token": sess.CSRFToken,
		"expires_at": sess.ExpiresAt,
	}, login.Warning))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sr, ok := auth.SessionFromContext(r.Context()); ok {
		if err := h.sessionManager.Delete(r.Context(), sr.ID); err != nil && h.logger != nil {
			h.logger.Errorf("logout %s: %v", sr.Username, err)
		}
	}
	cookieSecure := IsSecureRequest(r, h.cfg)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sr, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	user, err := h.identity.Get(r.Context(), sr.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       h.toDTO(user),
		"csrf_token": sr.CSRFToken,
		"expires_at": sr.ExpiresAt,
	})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	warn, err := h.identity.RequestPasswordReset(r.Context(), payload.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarning(map[string]any{"status": "sent"}, warn))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if payload.Token == "" {
		payload.Token = r.URL.Query().Get("token")
	}
	if err := h.identity.ResetPassword(r.Context(), payload.Token, payload.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
