// Package faults provides the failure taxonomy shared by every event handler
// and worker: transient faults are retried, permanent faults go to the DLQ,
// and business outcomes are legitimate negative results that are handled
// in-domain and never surface as infrastructure errors.
package faults

import (
	"context"
	"errors"
)

// Class is the disposition class of a failure.
type Class int

const (
	// ClassTransient covers network errors, broker disconnects, lock
	// timeouts and gateway 5xx, anything worth retrying.
	ClassTransient Class = iota
	// ClassPermanent covers decode failures, schema violations and
	// preconditions that will never become true.
	ClassPermanent
	// ClassBusiness covers legitimate negative outcomes (insufficient
	// inventory, payment declined). Not an error from the runtime's point
	// of view: the handler emits a compensating event and the message is
	// acked.
	ClassBusiness
)

// String returns the class name used in logs.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassBusiness:
		return "business"
	}
	return "unknown"
}

// TransientError marks an error as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a transient fault. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// PermanentError marks an error as not retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a permanent fault. Returns nil for nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// BusinessError marks a legitimate negative business outcome. Reason is a
// short machine-readable code ("insufficient", "card_declined").
type BusinessError struct {
	Reason string
	Err    error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *BusinessError) Unwrap() error { return e.Err }

// Business wraps err as a business outcome with the given reason code.
func Business(reason string, err error) error {
	return &BusinessError{Reason: reason, Err: err}
}

// ClassOf classifies an error. Untagged errors default to transient: an
// unknown infrastructure failure must be retried, never dropped.
func ClassOf(err error) Class {
	var p *PermanentError
	if errors.As(err, &p) {
		return ClassPermanent
	}
	var b *BusinessError
	if errors.As(err, &b) {
		return ClassBusiness
	}
	// Context expiry on a handler is a soft-timeout, retried later.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	return ClassTransient
}

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool { return err != nil && ClassOf(err) == ClassPermanent }

// IsBusiness reports whether err is classified as a business outcome.
func IsBusiness(err error) bool { return err != nil && ClassOf(err) == ClassBusiness }
