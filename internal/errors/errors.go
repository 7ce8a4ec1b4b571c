// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine readable class of an error.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindAuthentication    Kind = "authentication"
	KindAuthorization     Kind = "authorization"
	KindIllegalTransition Kind = "illegal_transition"
	KindConflict          Kind = "conflict"
	KindCascadeIncomplete Kind = "cascade_incomplete"
	KindRateLimited       Kind = "rate_limited"
	KindConsistency       Kind = "consistency_warning"
	KindInternal          Kind = "internal"
)

// AppError carries a Kind through the service layer up to the transport.
type AppError struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels (AppErrors without a message) against any
// AppError of the same kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Message == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// Kind sentinels.
var (
	ErrNotFound          = &AppError{Kind: KindNotFound}
	ErrValidation        = &AppError{Kind: KindValidation}
	ErrUnauthenticated   = &AppError{Kind: KindAuthentication}
	ErrForbidden         = &AppError{Kind: KindAuthorization}
	ErrIllegalTransition = &AppError{Kind: KindIllegalTransition}
	ErrConflict          = &AppError{Kind: KindConflict}
	ErrCascadeIncomplete = &AppError{Kind: KindCascadeIncomplete}
)

var (
	ErrCampaignNotFound    = &AppError{Kind: KindNotFound, Message: "campaign not found"}
	ErrResourceNotFound    = &AppError{Kind: KindNotFound, Message: "resource not found"}
	ErrFulfillmentNotFound = &AppError{Kind: KindNotFound, Message: "fulfillment not found"}
	ErrAccountNotFound     = &AppError{Kind: KindNotFound, Message: "account not found"}
	ErrMediaNotFound       = &AppError{Kind: KindNotFound, Message: "media not found"}
	ErrEmailTaken          = &AppError{Kind: KindConflict, Message: "email already registered"}
	ErrInvalidCredentials  = &AppError{Kind: KindAuthentication, Message: "invalid credentials"}
	ErrInvalidResetToken   = &AppError{Kind: KindValidation, Message: "invalid or expired reset token"}
)

func NewValidation(message string, fields map[string]string) error {
	return &AppError{Kind: KindValidation, Message: message, Fields: fields}
}

func NewForbidden(message string) error {
	return &AppError{Kind: KindAuthorization, Message: message}
}

func NewUnauthenticated(message string) error {
	return &AppError{Kind: KindAuthentication, Message: message}
}

func NewIllegalTransition(entity string, from, to fmt.Stringer) error {
	return &AppError{
		Kind:    KindIllegalTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
	}
}

// NewCascadeIncomplete reports a campaign removal whose fulfillment cascade
// did not finish. Re-running the removal is safe.
func NewCascadeIncomplete(campaignID string, cause error) error {
	return &AppError{
		Kind:    KindCascadeIncomplete,
		Message: fmt.Sprintf("cascade for campaign %s incomplete", campaignID),
		Err:     cause,
	}
}

// NewConsistencyWarning wraps a failed coordinator append. It is logged and
// queued for repair, never returned to a caller.
func NewConsistencyWarning(campaignID, fulfillmentID string, cause error) error {
	return &AppError{
		Kind:    KindConsistency,
		Message: fmt.Sprintf("reference of fulfillment %s missing on campaign %s", fulfillmentID, campaignID),
		Err:     cause,
	}
}

// KindOf returns the kind of err, or KindInternal when err is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to the status code returned by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindIllegalTransition, KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
