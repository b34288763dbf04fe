package update

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrNoSecret is returned when the channel is enabled without a secret.
	ErrNoSecret = errors.New("update: no shared secret configured")

	// ErrInvalidSecretHash is returned for a malformed secret_hash.
	ErrInvalidSecretHash = errors.New("update: invalid secret hash")

	// ErrNoStagingPath is returned when staging_path is empty.
	ErrNoStagingPath = errors.New("update: no staging path configured")

	// ErrInstallFailed wraps a failure to move the staged image into place.
	ErrInstallFailed = errors.New("update: install failed")
)

// apiError is the JSON body of every error response.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorised"
	codeForbidden    = "forbidden"
	codeConflict     = "conflict"
	codeTooLarge     = "too_large"
	codeTooMany      = "too_many_requests"
	codeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Status: status, Code: code, Message: message})
}
