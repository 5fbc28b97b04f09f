/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"math/rand"
	"sync"
)

const numShards = 32

type shard struct {
	mu    sync.RWMutex
	nodes map[Endpoint]*NodeHandle
}

// NodeRegistry is the thread-safe collection of live node handles
// keyed by endpoint (spec §4.1). It is striped across numShards
// independently-locked buckets, keyed by Endpoint.Digest(), rather than
// guarded by a single coarse mutex. Each shard has one sync.RWMutex:
// readers of a shard wait while a writer holds it, and writers on
// different endpoints that hash to the same shard serialize. Whole-
// registry operations (Iter, ClearAll, Random, ...) lock the shards
// one after another.
type NodeRegistry struct {
	shards [numShards]*shard
}

func NewNodeRegistry() *NodeRegistry {
	r := &NodeRegistry{}
	for i := range r.shards {
		r.shards[i] = &shard{nodes: make(map[Endpoint]*NodeHandle)}
	}
	return r
}

func (r *NodeRegistry) shardFor(e Endpoint) *shard {
	return r.shards[e.Digest()%numShards]
}

// Add inserts handle; returns false without mutating the registry if
// the endpoint is already present (spec §4.1, §3 invariant: "A given
// endpoint appears at most once").
func (r *NodeRegistry) Add(h *NodeHandle) bool {
	s := r.shardFor(h.Endpoint())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[h.Endpoint()]; exists {
		return false
	}
	s.nodes[h.Endpoint()] = h
	return true
}

// Remove deletes and returns the handle at endpoint, if present. The
// handle is NOT disposed here - disposal happens-after removal (§5),
// and is the caller's responsibility.
func (r *NodeRegistry) Remove(e Endpoint) (*NodeHandle, bool) {
	s := r.shardFor(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.nodes[e]
	if !ok {
		return nil, false
	}
	delete(s.nodes, e)
	return h, true
}

func (r *NodeRegistry) TryGet(e Endpoint) (*NodeHandle, bool) {
	s := r.shardFor(e)
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.nodes[e]
	return h, ok
}

// ClearAll removes and returns every handle in the registry.
func (r *NodeRegistry) ClearAll() []*NodeHandle {
	var out []*NodeHandle
	for _, s := range r.shards {
		s.mu.Lock()
		for e, h := range s.nodes {
			out = append(out, h)
			delete(s.nodes, e)
		}
		s.mu.Unlock()
	}
	return out
}

// ClearFor removes and returns every handle owned by the named bucket
// attachment - used by rebootstrap (spec §4.6 step 1) and detach/
// dispose (spec §4.3).
func (r *NodeRegistry) ClearFor(bucketName string) []*NodeHandle {
	var out []*NodeHandle
	for _, s := range r.shards {
		s.mu.Lock()
		for e, h := range s.nodes {
			owner := h.Owner()
			if owner != nil && owner.OwnerName() == bucketName {
				out = append(out, h)
				delete(s.nodes, e)
			}
		}
		s.mu.Unlock()
	}
	return out
}

// Iter returns a point-in-time snapshot slice of every handle
// currently registered. Spec §4.1: "iteration order exposed to iter()
// must be stable within a single reader's view (snapshot semantics)" -
// taking the copy under each shard's lock in turn satisfies that: a
// concurrent add/remove can only affect shards not yet (or already)
// copied, never mutate the slice already returned.
func (r *NodeRegistry) Iter() []*NodeHandle {
	var out []*NodeHandle
	for _, s := range r.shards {
		s.mu.RLock()
		for _, h := range s.nodes {
			out = append(out, h)
		}
		s.mu.RUnlock()
	}
	return out
}

// FindFirst returns the first handle (in shard order) satisfying pred,
// or nil if none does.
func (r *NodeRegistry) FindFirst(pred func(*NodeHandle) bool) *NodeHandle {
	for _, s := range r.shards {
		s.mu.RLock()
		for _, h := range s.nodes {
			if pred(h) {
				s.mu.RUnlock()
				return h
			}
		}
		s.mu.RUnlock()
	}
	return nil
}

// Random selects uniformly over the subset of handles satisfying pred
// at snapshot time (spec §4.1). The returned handle is guaranteed not
// disposed between selection and return, since Dispose only ever runs
// after Remove, and a removed handle cannot still satisfy pred's
// registry-membership precondition by the time Random re-checks it.
func (r *NodeRegistry) Random(pred func(*NodeHandle) bool) (*NodeHandle, bool) {
	candidates := make([]*NodeHandle, 0, 8)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, h := range s.nodes {
			if pred(h) {
				candidates = append(candidates, h)
			}
		}
		s.mu.RUnlock()
	}
	if len(candidates) == 0 {
		return nil, false
	}
	h := candidates[rand.Intn(len(candidates))]
	if h.IsDisposed() {
		return nil, false
	}
	return h, true
}

// FirstUnassigned returns an already-registered, unassigned node at
// endpoint with the given bucket type, if one exists - the "reuse a
// previously created unassigned node" path bucket-attach and
// reconciliation both use (spec §4.5, §4.7).
func (r *NodeRegistry) FirstUnassigned(e Endpoint, bucketType string) (*NodeHandle, bool) {
	h, ok := r.TryGet(e)
	if !ok {
		return nil, false
	}
	if h.BucketType() != bucketType {
		return nil, false
	}
	if !h.IsUnassigned() {
		return nil, false
	}
	return h, true
}
