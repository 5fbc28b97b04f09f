// Package cmn provides common low-level types, error kinds, and
// configuration shared across the cluster coordination core.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"sync"
	"sync/atomic"
)

type (
	// ThresholdOptions and OrphanTracingOptions are the narrow,
	// optional tracing/metrics sub-options recognized from
	// ClusterOptions (spec §6). Listener is an opaque collaborator
	// reference owned by the caller; the core never constructs one.
	ThresholdOptions struct {
		Enabled  bool
		Listener interface{}
	}
	OrphanTracingOptions struct {
		Enabled  bool
		Listener interface{}
	}

	// ClusterOptions mirrors the recognized subset of ClusterOptions
	// from spec §6. Unrecognized options are simply absent from this
	// struct - the caller's own option-loading layer is out of scope
	// (spec §1: "the top-level user API... configuration loading").
	ClusterOptions struct {
		ConnectionString    string
		Username            string
		Password            string
		EnableTLS           bool
		EnableConfigPolling bool
		Threshold           ThresholdOptions
		OrphanTracing       OrphanTracingOptions
	}
)

// Validate reports ErrInvalidConnectionString when the one required
// option is missing; everything else has a safe zero-value default.
func (o *ClusterOptions) Validate() error {
	if o.ConnectionString == "" {
		return &ErrInvalidConnectionString{ConnStr: o.ConnectionString}
	}
	return nil
}

// Clone returns a value copy; ClusterOptions carries no pointers that
// need deep copying.
func (o *ClusterOptions) Clone() *ClusterOptions {
	dst := *o
	return &dst
}

// OptionsOwner holds the active ClusterOptions snapshot behind an
// atomic pointer, following the teacher's globalConfigOwner pattern
// (update under a mutex, publish via atomic swap, read lock-free).
// Unlike the teacher's hand-rolled 3rdparty/atomic.Pointer, this uses
// the stdlib generic atomic.Pointer[T] (see DESIGN.md). ClusterCore
// holds its options behind one of these rather than a bare pointer.
type OptionsOwner struct {
	mtx sync.Mutex
	ptr atomic.Pointer[ClusterOptions]
}

func NewOptionsOwner(initial *ClusterOptions) *OptionsOwner {
	o := &OptionsOwner{}
	o.ptr.Store(initial.Clone())
	return o
}

// Get returns the current, immutable snapshot. Safe for concurrent use.
func (o *OptionsOwner) Get() *ClusterOptions { return o.ptr.Load() }

// Update applies fn to a clone of the current snapshot under the
// owner's mutex, then publishes the result atomically.
func (o *OptionsOwner) Update(fn func(*ClusterOptions)) *ClusterOptions {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	clone := o.Get().Clone()
	fn(clone)
	o.ptr.Store(clone)
	return clone
}
