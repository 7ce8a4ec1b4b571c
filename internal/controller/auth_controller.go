package controller

import (
	"context"
	"net/http"

	"github.com/unclebandit/charityng-backend/internal/service"
)

// AuthController serves registration, login and account endpoints for both
// lookup spaces.
type AuthController struct {
	Identity       *service.IdentityService
	MaxUploadBytes int64
}

func (c *AuthController) Register(w http.ResponseWriter, r *http.Request) {
	var body service.RegisterInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := c.Identity.RegisterUser(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (c *AuthController) LoginUser(w http.ResponseWriter, r *http.Request) {
	c.login(w, r, c.Identity.LoginUser)
}

func (c *AuthController) LoginStaff(w http.ResponseWriter, r *http.Request) {
	c.login(w, r, c.Identity.LoginStaff)
}

func (c *AuthController) login(w http.ResponseWriter, r *http.Request, login func(ctx context.Context, in service.LoginInput) (*service.Session, error)) {
	var body service.LoginInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := login(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	account, err := c.Identity.Me(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// RevokeCurrent removes the credential the request was made with.
func (c *AuthController) RevokeCurrent(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if err := c.Identity.RevokeCredential(r.Context(), p.Role, credential(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AuthController) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	filename, contentType, data, err := readUpload(w, r, c.MaxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	account, err := c.Identity.UploadProfileImage(r.Context(), PrincipalFrom(r.Context()), filename, contentType, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ForgottenPassword always answers 202 so callers cannot probe for
// registered addresses.
func (c *AuthController) ForgottenPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email  string `json:"email"`
		Locale string `json:"locale"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Locale == "" {
		body.Locale = "en"
	}

	if err := c.Identity.RequestPasswordReset(r.Context(), body.Email, body.Locale); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *AuthController) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body service.ResetPasswordInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := c.Identity.ResetPassword(r.Context(), body); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AuthController) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var body service.StaffInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := c.Identity.CreateStaff(r.Context(), PrincipalFrom(r.Context()), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}
