// Package errors provides structured domain errors with user-facing messages.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Battle errors
	CodeBattleNotFound        Code = "BATTLE_NOT_FOUND"
	CodeBattleAlreadyResolved Code = "BATTLE_ALREADY_RESOLVED"
	CodeBattleConflict        Code = "BATTLE_CONFLICT"

	// Region errors
	CodeRegionNotFound Code = "REGION_NOT_FOUND"

	// User errors
	CodeUserNotFound Code = "USER_NOT_FOUND"

	// Access errors
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	// Input errors
	CodeInvalidInput Code = "INVALID_INPUT"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeBattleNotFound, CodeRegionNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeBattleAlreadyResolved, CodeBattleConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
