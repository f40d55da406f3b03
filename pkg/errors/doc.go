// Package errors provides structured error handling with error codes for
// user-permission.
//
// Service layers return *Error values for outcomes a client can trigger
// (bad input, conflicts, missing records). Anything that is not an *Error is
// treated as an internal failure by the HTTP boundary.
//
// # Basic Usage
//
//	import apperrors "github.com/tendant/user-permission/pkg/errors"
//
//	err := apperrors.InvalidInput("password", "Password must be at least 6 characters")
//	err := apperrors.Conflict("user already exists with this email")
//	err := apperrors.NotFound("user not found")
//
// # Inspection
//
//	if apperrors.IsCode(err, apperrors.ErrCodeConflict) { ... }
//	status := apperrors.MapErrorCodeToHTTPStatus(apperrors.GetCode(err))
//	field := apperrors.GetField(err)
package errors
