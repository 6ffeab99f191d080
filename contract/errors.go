package contract

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persistence failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrDispatch     = errors.New("dispatch failed")
	ErrModelInvoke  = errors.New("model invoke failed")
	ErrApprovalWait = errors.New("approval wait failed")
)

// Refinements of the sentinels above; errors.Is matches both the refined
// and the base error, so existing checks keep working while callers that
// need the distinction can make it.
var (
	// ErrIntegrity is a whole-document integrity check failing after a
	// mutation was applied, as opposed to a rejected input.
	ErrIntegrity = fmt.Errorf("%w: document integrity", ErrValidation)
	// ErrBackup is the pre-write backup step failing; the primary file is
	// untouched when it is returned.
	ErrBackup = fmt.Errorf("%w: backup", ErrPersistence)
)
