package doorstep

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeUnknownStep          = "DELIVERY_UNKNOWN_STEP"
	ErrCodeUnknownCondition     = "DELIVERY_UNKNOWN_CONDITION"
	ErrCodeUnknownScenario      = "DELIVERY_UNKNOWN_SCENARIO"
	ErrCodeInvalidTable         = "DELIVERY_INVALID_TABLE"
	ErrCodeInvalidAction        = "DELIVERY_INVALID_ACTION"
	ErrCodeNoActiveDelivery     = "DELIVERY_NOT_ACTIVE"
	ErrCodeDeliveryMismatch     = "DELIVERY_ID_MISMATCH"
	ErrCodeCompletionNotAllowed = "DELIVERY_COMPLETION_NOT_ALLOWED"
	ErrCodeStepNotCurrent       = "DELIVERY_STEP_NOT_CURRENT"
	ErrCodeVersionConflict      = "DELIVERY_VERSION_CONFLICT"
	ErrCodeStorage              = "DELIVERY_STORAGE_FAILED"
	ErrCodeFetchFailed          = "DELIVERY_FETCH_FAILED"
	ErrCodeNotifyFailed         = "DELIVERY_NOTIFY_FAILED"
	ErrCodeFinalizeFailed       = "DELIVERY_FINALIZE_FAILED"
)

var (
	ErrUnknownStep = apperrors.New("unknown step", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeUnknownStep)
	ErrUnknownCondition = apperrors.New("unknown condition key", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeUnknownCondition)
	ErrUnknownScenario = apperrors.New("unknown scenario", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeUnknownScenario)
	ErrInvalidTable = apperrors.New("invalid scenario table", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidTable)
	ErrInvalidAction = apperrors.New("invalid action", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidAction)
	ErrNoActiveDelivery = apperrors.New("no active delivery", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeNoActiveDelivery)
	ErrDeliveryMismatch = apperrors.New("delivery id mismatch", apperrors.CategoryConflict).
				WithTextCode(ErrCodeDeliveryMismatch)
	ErrCompletionNotAllowed = apperrors.New("order completion not allowed", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeCompletionNotAllowed)
	ErrStepNotCurrent = apperrors.New("step is not the current step", apperrors.CategoryConflict).
				WithTextCode(ErrCodeStepNotCurrent)
	ErrVersionConflict = apperrors.New("version conflict", apperrors.CategoryConflict).
				WithTextCode(ErrCodeVersionConflict)
	ErrStorage = apperrors.New("storage failed", apperrors.CategoryExternal).
			WithTextCode(ErrCodeStorage)
	ErrFetchFailed = apperrors.New("trip fetch failed", apperrors.CategoryExternal).
			WithTextCode(ErrCodeFetchFailed)
	ErrNotifyFailed = apperrors.New("notification dispatch failed", apperrors.CategoryExternal).
			WithTextCode(ErrCodeNotifyFailed)
	ErrFinalizeFailed = apperrors.New("order finalization failed", apperrors.CategoryExternal).
				WithTextCode(ErrCodeFinalizeFailed)
)

// NewError clones a sentinel, replacing its message and attaching source and metadata.
func NewError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrInvalidAction
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors value in the chain.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// IsConfigurationDefect reports errors that must abort step advancement and be shown to the operator.
func IsConfigurationDefect(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeUnknownStep, ErrCodeUnknownCondition, ErrCodeUnknownScenario, ErrCodeInvalidTable:
		return true
	}
	return false
}

// IsTransient reports collaborator failures the caller may retry.
func IsTransient(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeStorage, ErrCodeFetchFailed, ErrCodeNotifyFailed, ErrCodeFinalizeFailed, ErrCodeVersionConflict:
		return true
	}
	return false
}
