package oci

// ErrorResponse represents an OCI registry error
type ErrorResponse struct {
	Errors []Error `json:"errors"`
}

// Error represents a single error
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Standard OCI error codes
const (
	ErrorCodeDenied       = "DENIED"
	ErrorCodeNameInvalid  = "NAME_INVALID"
	ErrorCodeNameUnknown  = "NAME_UNKNOWN"
	ErrorCodeUnauthorized = "UNAUTHORIZED"
	ErrorCodeUnsupported  = "UNSUPPORTED"
)

// Registry-specific error codes
const (
	ErrorCodeInvalidRequest       = "INVALID_REQUEST"
	ErrorCodeReadOnlyMode         = "READ_ONLY_MODE"
	ErrorCodeQuotaExceeded        = "QUOTA_EXCEEDED"
	ErrorCodeTooManyTagsRequested = "TOO_MANY_TAGS_REQUESTED"
	ErrorCodeUnknown              = "UNKNOWN"
)

// TagList represents the response from GET /v2/<name>/tags/list
type TagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Catalog represents the response from GET /v2/_catalog
type Catalog struct {
	Repositories []string `json:"repositories"`
}
