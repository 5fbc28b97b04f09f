/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"fmt"
	"sync"

	"github.com/couchbase/clustercore/cmn"
	"github.com/couchbase/clustercore/cmn/debug"
)

// Conn is the narrow connection-resource collaborator a NodeHandle
// owns; the actual key/value wire protocol is out of scope (spec §1).
type Conn interface {
	Close() error
}

// Owner is the non-owning back-reference a NodeHandle carries to its
// owning bucket attachment (spec §9, "Cyclic ownership": "Model the
// back-reference as a non-owning handle ... treat the attachment ->
// nodes direction as the single owning edge"). It is satisfied by
// core.BucketAttachment without creating an import cycle.
type Owner interface {
	OwnerName() string
}

// NodeHandle is the in-process representation of one server node
// (spec §3). Mirrors the teacher's Snode, generalized from a
// proxy/target gateway to a client-side connection handle.
type NodeHandle struct {
	mu         sync.RWMutex
	endpoint   Endpoint
	bucketType string // cmn.Couchbase | cmn.Memcached
	caps       NodeCapabilities
	owner      Owner // nil => unassigned
	adapter    *NodeAdapter
	conn       Conn
	disposed   bool
	name       string
}

func NewNodeHandle(endpoint Endpoint, bucketType string, caps NodeCapabilities, conn Conn) *NodeHandle {
	debug.Assertf(bucketType == cmn.Couchbase || bucketType == cmn.Memcached, "invalid bucket type %q", bucketType)
	n := &NodeHandle{
		endpoint:   endpoint,
		bucketType: bucketType,
		caps:       caps,
		conn:       conn,
	}
	n.setName()
	return n
}

func (n *NodeHandle) setName() {
	tag := "t"
	if n.bucketType == cmn.Memcached {
		tag = "m"
	}
	n.name = fmt.Sprintf("%s[%s]", tag, n.endpoint.String())
}

func (n *NodeHandle) Endpoint() Endpoint { return n.endpoint }
func (n *NodeHandle) BucketType() string { return n.bucketType }
func (n *NodeHandle) Digest() uint64     { return n.endpoint.Digest() }

func (n *NodeHandle) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.name
}

func (n *NodeHandle) Capabilities() NodeCapabilities {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.caps
}

// SetCapabilities replaces the capability set wholesale, refreshed at
// handshake/reconciliation time.
func (n *NodeHandle) SetCapabilities(caps NodeCapabilities) {
	n.mu.Lock()
	n.caps = caps
	n.mu.Unlock()
}

func (n *NodeHandle) Adapter() *NodeAdapter {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.adapter
}

func (n *NodeHandle) SetAdapter(a *NodeAdapter) {
	n.mu.Lock()
	n.adapter = a
	n.mu.Unlock()
}

// Owner returns the current owning attachment, or nil if unassigned.
func (n *NodeHandle) Owner() Owner {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.owner
}

func (n *NodeHandle) IsUnassigned() bool { return n.Owner() == nil }

// Assign sets owner = bucket. Spec §3 invariant: "a node may be
// reassigned at most once from null to a bucket; once owned it is not
// reassigned." Memcached nodes are the documented exception (spec
// §4.7: "Memcached permits shared/aliased ownership by endpoint") and
// may be assigned repeatedly to the same or different buckets.
func (n *NodeHandle) Assign(owner Owner) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bucketType == cmn.Memcached {
		n.owner = owner
		return nil
	}
	if n.owner != nil {
		return fmt.Errorf("%s: already owned by %q, cannot reassign to %q", n.name, n.owner.OwnerName(), owner.OwnerName())
	}
	n.owner = owner
	return nil
}

// Release clears the owner back-reference, e.g. when a bucket
// attachment is detached or disposed and the node is about to be
// removed from the registry.
func (n *NodeHandle) Release() {
	n.mu.Lock()
	n.owner = nil
	n.mu.Unlock()
}

func (n *NodeHandle) IsDisposed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.disposed
}

// Dispose closes the underlying connection resource exactly once.
// Spec §5: "Disposal of a node handle happens-after its removal from
// the registry" - callers are responsible for that ordering; Dispose
// itself is idempotent so a caller racing to dispose twice is safe.
func (n *NodeHandle) Dispose() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.disposed {
		return nil
	}
	n.disposed = true
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
