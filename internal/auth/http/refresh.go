package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
)

// RefreshHandler serves POST /v1/auth/refresh. The refresh token is not
// rotated, so the response carries only the new access token.
type RefreshHandler struct {
	Sessions *service.SessionService
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrValidation.WithMessage(err.Error()).WriteError(w)
		return
	}

	sess, err := h.Sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RefreshResponse{
		AccessToken: sess.AccessToken,
		TokenType:   authsdk.TokenTypeBearer,
		ExpiresIn:   int64(sess.ExpiresIn.Seconds()),
		User:        toSDKUser(sess.User),
	})
}
