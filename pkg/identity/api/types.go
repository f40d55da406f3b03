package api

import "strings"

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AssignRoleRequest struct {
	RoleName string `json:"roleName"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// required appends a FieldError for every blank value, in argument order.
func required(fields ...[2]string) []FieldError {
	var errs []FieldError
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			errs = append(errs, FieldError{Field: f[0], Message: "The " + f[0] + " field is required."})
		}
	}
	return errs
}

func (req RegisterRequest) Validate() []FieldError {
	return required(
		[2]string{"name", req.Name},
		[2]string{"email", req.Email},
		[2]string{"password", req.Password},
	)
}

func (req LoginRequest) Validate() []FieldError {
	return required(
		[2]string{"email", req.Email},
		[2]string{"password", req.Password},
	)
}

func (req AssignRoleRequest) Validate() []FieldError {
	return required([2]string{"roleName", req.RoleName})
}
