package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/domain"
	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
)

// LoginHandler serves POST /v1/auth/login.
type LoginHandler struct {
	Sessions *service.SessionService
}

// ServeHTTP exchanges {email, password} for an access and refresh token.
// Unknown email, wrong password and inactive account all answer 401
// InvalidCredentials.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrValidation.WithMessage(err.Error()).WriteError(w)
		return
	}

	sess, err := h.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		TokenType:    authsdk.TokenTypeBearer,
		ExpiresIn:    int64(sess.ExpiresIn.Seconds()),
		User:         toSDKUser(sess.User),
	})
}

func toSDKUser(u domain.PublicUser) authsdk.User {
	return authsdk.User{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Profile: string(u.Profile),
	}
}
