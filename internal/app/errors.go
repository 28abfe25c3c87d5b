package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errForbidden     = domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this site", nil)
	errCSRFRequired  = domainError(http.StatusForbidden, "CSRF_REQUIRED", "Missing or malformed CSRF token", nil)
	errUnauthorized  = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	errInvalidOrigin = domainError(http.StatusBadRequest, "INVALID_ORIGIN", "Origin is not allowed for this site", nil)
	errCrossOrigin   = domainError(http.StatusForbidden, "CROSS_ORIGIN", "Cookie sessions cannot be used from this origin", nil)
)
