package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/httpx"
)

// LogoutHandler serves POST /v1/auth/logout. Unknown and expired tokens get
// the same 200 as live ones so the endpoint cannot be used to test whether a token exists.
type LogoutHandler struct {
	Sessions *service.SessionService
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrValidation.WithMessage(err.Error()).WriteError(w)
		return
	}

	if err := h.Sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutResponse{Message: "logged out"})
}
