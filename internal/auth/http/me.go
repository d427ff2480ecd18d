package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
)

// MeHandler serves GET /v1/auth/me behind httpx.AuthnMiddleware.
type MeHandler struct {
	Sessions *service.SessionService
}

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		authsdk.ErrMissingCredential.WriteError(w)
		return
	}

	user, err := h.Sessions.CurrentUser(r.Context(), service.IdentityFromClaims(claims))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{User: toSDKUser(user)})
}
