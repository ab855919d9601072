package oci

import "fmt"

// RegistryError is an error raised anywhere on the request path that
// maps directly onto the v2 error envelope. It carries the HTTP status
// and, for authorization failures, the repository and scopes needed to
// build a WWW-Authenticate challenge.
type RegistryError struct {
	Code    string
	Message string
	Detail  any
	Status  int

	// Repository and Scopes are set on authorization failures only.
	Repository string
	Scopes     []string
}

// Error implements the error interface
func (e *RegistryError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsError returns the wire form of the error for the envelope body.
func (e *RegistryError) AsError() Error {
	return Error{
		Code:    e.Code,
		Message: e.Message,
		Detail:  e.Detail,
	}
}

// ErrUnauthorized reports that the caller lacks the required scope or
// role on the named repository. An empty repository produces a bare
// challenge without a resource scope.
func ErrUnauthorized(repository string, scopes []string) *RegistryError {
	return &RegistryError{
		Code:       ErrorCodeUnauthorized,
		Message:    "access to the requested resource is not authorized",
		Status:     401,
		Repository: repository,
		Scopes:     scopes,
	}
}

// ErrUnauthorizedDetail is ErrUnauthorized with an explanatory detail
// attached, used when the denial is not recoverable by re-authenticating
// with a broader scope.
func ErrUnauthorizedDetail(detail string) *RegistryError {
	err := ErrUnauthorized("", nil)
	err.Detail = detail
	return err
}

// ErrUnsupported reports that the resource exists but is not of the
// artifact kind this API family serves.
func ErrUnsupported(detail string) *RegistryError {
	return &RegistryError{
		Code:    ErrorCodeUnsupported,
		Message: "the operation is unsupported",
		Detail:  detail,
		Status:  405,
	}
}

// ErrInvalidRequest reports malformed client input or an upstream
// dependency failure surfaced as a client error.
func ErrInvalidRequest(message string) *RegistryError {
	return &RegistryError{
		Code:    ErrorCodeInvalidRequest,
		Message: message,
		Status:  400,
	}
}

// ErrReadOnlyMode reports that the system is in maintenance mode.
func ErrReadOnlyMode() *RegistryError {
	return &RegistryError{
		Code:    ErrorCodeReadOnlyMode,
		Message: "System is currently read-only. Pulls will succeed but all write operations are currently suspended.",
		Status:  503,
	}
}

// ErrQuotaExceeded reports a write blocked by a namespace quota.
func ErrQuotaExceeded() *RegistryError {
	return &RegistryError{
		Code:    ErrorCodeQuotaExceeded,
		Message: "quota has been exceeded on namespace",
		Status:  403,
	}
}

// ErrTooManyTagsRequested reports a tag filter beyond the allowed bound.
func ErrTooManyTagsRequested(detail string) *RegistryError {
	return &RegistryError{
		Code:    ErrorCodeTooManyTagsRequested,
		Message: "too many tags requested",
		Detail:  detail,
		Status:  400,
	}
}

// ErrNameInvalid reports a malformed repository path.
func ErrNameInvalid() *RegistryError {
	return &RegistryError{
		Code:    ErrorCodeNameInvalid,
		Message: "invalid repository name",
		Status:  400,
	}
}

// ErrNameUnknown reports a repository that does not exist.
func ErrNameUnknown() *RegistryError {
	return &RegistryError{
		Code:    ErrorCodeNameUnknown,
		Message: "repository name not known to registry",
		Status:  404,
	}
}
