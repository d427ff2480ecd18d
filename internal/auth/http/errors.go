package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessionauth/internal/auth/service"
	"github.com/aussiebroadwan/sessionauth/pkg/authsdk"
	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
)

// writeServiceError maps a service error onto its response. Anything that is
// not a known service error is logged and reported as InternalError without
// detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		authsdk.ErrValidation.WithMessage(verr.Error()).WriteError(w)
	case errors.Is(err, service.ErrValidation):
		authsdk.ErrValidation.WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrInvalidToken):
		authsdk.ErrInvalidToken.WriteError(w)
	case errors.Is(err, service.ErrInactiveUser):
		authsdk.ErrInactiveUser.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		authsdk.ErrInternal.WriteError(w)
	}
}
