package domain

import "errors"

var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrAssignmentNotFound = errors.New("role assignment not found")
	ErrInvalidScope       = errors.New("invalid_role_scope")
)
