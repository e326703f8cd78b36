package domain

import "errors"

var (
	ErrNotFound     = errors.New("organization not found")
	ErrSuspended    = errors.New("organization suspended")
	ErrInactive     = errors.New("organization inactive")
	ErrInvalidName  = errors.New("invalid_org_name")
	ErrInvalidType  = errors.New("invalid_org_type")
	ErrInvalidPlan  = errors.New("invalid_plan_tier")
	ErrSlugTaken    = errors.New("organization slug already in use")
	ErrInvalidOrgID = errors.New("invalid_org_id")
)
