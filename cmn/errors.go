// Package cmn provides common low-level types, error kinds, and
// configuration shared across the cluster coordination core.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds produced by the core (spec §7). Each is a distinct type
// so that callers can discriminate with errors.As rather than string
// matching. ErrRateLimited and ErrBucketNotConnected carry the
// underlying error in Cause and return it from Unwrap; the other kinds
// carry no underlying error.
type (
	ErrInvalidConnectionString struct {
		ConnStr string
	}
	ErrBucketNotFound struct {
		Bucket string
	}
	ErrServiceNotAvailable struct {
		Service string
	}
	ErrServiceMissing struct {
		Service string
		Bucket  string
	}
	ErrRateLimited struct {
		Cause error
	}
	ErrCancelled struct {
		Op string
	}
	ErrDisposed struct {
		Op string
	}
	ErrNotFound struct {
		What string
	}
	ErrNoNodes struct {
		Type string
	}
	// ErrBucketNotConnected is the GCCCP-unsupported signal a
	// pre-6.5 server returns to a global (bucketless) config fetch
	// (spec §4.4 step 2c). Distinct from ErrBucketNotFound, which
	// means attach exhausted every endpoint/type combination.
	ErrBucketNotConnected struct {
		Cause error
	}
)

func (e *ErrInvalidConnectionString) Error() string {
	return fmt.Sprintf("invalid connection string %q: no endpoints derivable", e.ConnStr)
}

func (e *ErrBucketNotFound) Error() string {
	return fmt.Sprintf("bucket %q not found: all attach combinations exhausted", e.Bucket)
}

func (e *ErrServiceNotAvailable) Error() string {
	return fmt.Sprintf("service %q not available: no node advertises the capability", e.Service)
}

func (e *ErrServiceMissing) Error() string {
	return fmt.Sprintf("service %q missing on bucket %q", e.Service, e.Bucket)
}

func (e *ErrRateLimited) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rate limited: %v", e.Cause)
	}
	return "rate limited"
}
func (e *ErrRateLimited) Unwrap() error { return e.Cause }

func (e *ErrCancelled) Error() string { return fmt.Sprintf("%s: cancelled", e.Op) }

func (e *ErrDisposed) Error() string { return fmt.Sprintf("%s: core is disposed", e.Op) }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("%s: not found", e.What) }

func (e *ErrNoNodes) Error() string { return fmt.Sprintf("no %s nodes available", e.Type) }

func (e *ErrBucketNotConnected) Error() string {
	return fmt.Sprintf("bucket not connected (gcccp unsupported): %v", e.Cause)
}
func (e *ErrBucketNotConnected) Unwrap() error { return e.Cause }

// IsBucketNotConnected reports whether err is, or wraps, ErrBucketNotConnected.
func IsBucketNotConnected(err error) bool {
	var bnc *ErrBucketNotConnected
	return errors.As(err, &bnc)
}

func NewNotFoundError(format string, a ...interface{}) error {
	return &ErrNotFound{What: fmt.Sprintf(format, a...)}
}

func NewNoNodesError(daemonType string) error {
	return &ErrNoNodes{Type: daemonType}
}

// IsRateLimited reports whether err is, or wraps, ErrRateLimited.
func IsRateLimited(err error) bool {
	var rl *ErrRateLimited
	return errors.As(err, &rl)
}

// Wrap attaches call-site context to an error crossing an I/O boundary
// (connect, fetch, handshake) without discarding the original cause.
func Wrap(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, a...)
}

func Assertf(cond bool, format string, a ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, a...))
	}
}
