/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"testing"

	"github.com/couchbase/clustercore/cmn"
)

func TestNodeHandleAssignOnceForCouchbase(t *testing.T) {
	h := NewNodeHandle(NewEndpoint("h", 11210, false), cmn.Couchbase, NodeCapabilities{}, &nopConn{})
	if err := h.Assign(stubOwner{"b1"}); err != nil {
		t.Fatalf("first assign should succeed: %v", err)
	}
	if err := h.Assign(stubOwner{"b2"}); err == nil {
		t.Fatal("expected reassignment of an owned couchbase node to fail")
	}
}

func TestNodeHandleMemcachedSharedOwnership(t *testing.T) {
	h := NewNodeHandle(NewEndpoint("h", 11211, false), cmn.Memcached, NodeCapabilities{}, &nopConn{})
	if err := h.Assign(stubOwner{"b1"}); err != nil {
		t.Fatalf("first assign should succeed: %v", err)
	}
	if err := h.Assign(stubOwner{"b2"}); err != nil {
		t.Fatalf("expected memcached node to permit reassignment: %v", err)
	}
	if h.Owner().OwnerName() != "b2" {
		t.Fatalf("expected owner to be b2, got %s", h.Owner().OwnerName())
	}
}

func TestNodeHandleDisposeIdempotent(t *testing.T) {
	conn := &nopConn{}
	h := NewNodeHandle(NewEndpoint("h", 11210, false), cmn.Couchbase, NodeCapabilities{}, conn)
	if err := h.Dispose(); err != nil {
		t.Fatalf("first dispose should succeed: %v", err)
	}
	if !conn.closed {
		t.Fatal("expected underlying conn to be closed")
	}
	if err := h.Dispose(); err != nil {
		t.Fatalf("second dispose must be a no-op, got: %v", err)
	}
	if !h.IsDisposed() {
		t.Fatal("expected IsDisposed true")
	}
}
