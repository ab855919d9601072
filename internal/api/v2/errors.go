package v2

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vonguard/quay/internal/auth"
	"github.com/vonguard/quay/internal/mirror"
	"github.com/vonguard/quay/internal/storage"
	"github.com/vonguard/quay/pkg/oci"
)

// WriteError is the single point where internal failures become wire
// responses. Every error raised on the request path is mapped to the
// canonical envelope exactly once, here; a 401 additionally carries the
// WWW-Authenticate challenge for the denied repository.
func WriteError(w http.ResponseWriter, challenge auth.Challenger, err error) {
	mapped := mapError(err)

	if mapped.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", challenge.Header(mapped.Repository, mapped.Scopes))
	}

	resp := oci.ErrorResponse{Errors: []oci.Error{mapped.AsError()}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(mapped.Status)
	json.NewEncoder(w).Encode(resp)
}

// mapError translates the internal error taxonomy into a registry
// error with its HTTP mapping.
func mapError(err error) *oci.RegistryError {
	var re *oci.RegistryError
	if errors.As(err, &re) {
		return re
	}

	if errors.Is(err, storage.ErrReadOnly) {
		return oci.ErrReadOnlyMode()
	}
	if errors.Is(err, storage.ErrQuotaExceeded) {
		return oci.ErrQuotaExceeded()
	}

	var ue *mirror.UpstreamError
	if errors.As(err, &ue) {
		return oci.ErrInvalidRequest(ue.Error())
	}

	return &oci.RegistryError{
		Code:    oci.ErrorCodeUnknown,
		Message: "internal error",
		Status:  http.StatusInternalServerError,
	}
}
