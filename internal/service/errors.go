package service

import "errors"

var (
	// ErrReadonly is returned when a mutation targets a readonly project.
	ErrReadonly = errors.New("project is readonly")
)
