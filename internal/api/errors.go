package api

import (
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int               `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInvalidLogin   = "invalid_credentials"
	ErrCodeAccountState   = "account_unavailable"
	ErrCodeTokenExpired   = "token_expired"
	ErrCodePasswordDenied = "password_mismatch"
)

// Leaf codes refine a category so clients can tell, say, a duplicate
// email from a duplicate role name without parsing the message.
const (
	ErrCodeUserNotFound         = "user_not_found"
	ErrCodeRoleNotFound         = "role_not_found"
	ErrCodePermissionNotFound   = "permission_not_found"
	ErrCodeRefreshNotFound      = "refresh_token_not_found"
	ErrCodeTokenNotFound        = "token_not_found"
	ErrCodeDuplicateEmail       = "duplicate_email"
	ErrCodeDuplicateRoleName    = "duplicate_role_name"
	ErrCodeRoleInUse            = "role_in_use"
	ErrCodeAccountDisabled      = "account_disabled"
	ErrCodeAccountNotConfirmed  = "account_not_confirmed"
	ErrCodeRoleAssignmentDenied = "role_assignment_denied"
	ErrCodeProtectedRole        = "protected_role"
)

// leafCodes maps leaf sentinels to their codes. The leaves are disjoint,
// so the first match is the only match.
var leafCodes = []struct {
	err  error
	code string
}{
	{auth.ErrUserNotFound, ErrCodeUserNotFound},
	{auth.ErrRoleNotFound, ErrCodeRoleNotFound},
	{auth.ErrPermissionNotFound, ErrCodePermissionNotFound},
	{auth.ErrRefreshTokenNotFound, ErrCodeRefreshNotFound},
	{auth.ErrEphemeralTokenNotFound, ErrCodeTokenNotFound},
	{auth.ErrDuplicateEmail, ErrCodeDuplicateEmail},
	{auth.ErrDuplicateRoleName, ErrCodeDuplicateRoleName},
	{auth.ErrRoleInUse, ErrCodeRoleInUse},
	{auth.ErrAccountDisabled, ErrCodeAccountDisabled},
	{auth.ErrAccountNotConfirmed, ErrCodeAccountNotConfirmed},
	{auth.ErrRoleAssignmentDenied, ErrCodeRoleAssignmentDenied},
	{auth.ErrProtectedRole, ErrCodeProtectedRole},
}

// leafCode returns the most specific code for err, or fallback.
func leafCode(err error, fallback string) string {
	for _, l := range leafCodes {
		if errors.Is(err, l.err) {
			return l.code
		}
	}
	return fallback
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeValidationError writes a 422 response carrying one message per field.
func writeValidationError(w http.ResponseWriter, errs validation.Errors) {
	fields := make(map[string]string, len(errs))
	for name, err := range errs {
		if err != nil {
			fields[name] = err.Error()
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    ErrCodeValidation,
		Message: "request validation failed",
		Fields:  fields,
	})
}

// writeAuthError maps an error from the identity core to its HTTP status.
// Anything it does not recognise is logged and reported as a 500 with a
// generic message.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		writeValidationError(w, verrs)
	case errors.Is(err, auth.ErrInvalidInput):
		writeBadRequest(w, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidLogin, err.Error())
	case errors.Is(err, auth.ErrCredential):
		writeError(w, http.StatusUnauthorized, auth.CredentialReason(err), err.Error())
	case errors.Is(err, auth.ErrRefreshTokenExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthorized(w, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, leafCode(err, ErrCodeForbidden), err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, leafCode(err, ErrCodeNotFound), err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, leafCode(err, ErrCodeConflict), err.Error())
	case errors.Is(err, auth.ErrAccountState):
		writeError(w, http.StatusBadRequest, leafCode(err, ErrCodeAccountState), err.Error())
	case errors.Is(err, auth.ErrEphemeralTokenExpired):
		writeError(w, http.StatusBadRequest, ErrCodeTokenExpired, err.Error())
	case errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, ErrCodePasswordDenied, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
