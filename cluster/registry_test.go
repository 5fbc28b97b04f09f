/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"strconv"
	"sync"
	"testing"

	"github.com/couchbase/clustercore/cmn"
)

type nopConn struct{ closed bool }

func (c *nopConn) Close() error { c.closed = true; return nil }

func TestNodeRegistryAddRemoveDuplicate(t *testing.T) {
	r := NewNodeRegistry()
	ep := NewEndpoint("10.0.0.1", 11210, false)
	h := NewNodeHandle(ep, cmn.Couchbase, NodeCapabilities{KV: true}, &nopConn{})

	if !r.Add(h) {
		t.Fatal("expected first add to succeed")
	}
	if r.Add(h) {
		t.Fatal("expected duplicate add to fail")
	}
	got, ok := r.TryGet(ep)
	if !ok || got != h {
		t.Fatal("expected TryGet to return the added handle")
	}
	removed, ok := r.Remove(ep)
	if !ok || removed != h {
		t.Fatal("expected Remove to return the handle")
	}
	if _, ok := r.TryGet(ep); ok {
		t.Fatal("expected TryGet to miss after Remove")
	}
}

// TestNodeRegistryConcurrentAddRemove exercises spec §8's property:
// "final contents = set of endpoints with net add count > 0; no handle
// is disposed more than once."
func TestNodeRegistryConcurrentAddRemove(t *testing.T) {
	r := NewNodeRegistry()
	const n = 200

	var wg sync.WaitGroup
	handles := make([]*NodeHandle, n)
	for i := 0; i < n; i++ {
		ep := NewEndpoint("10.0."+strconv.Itoa(i%8)+".1", 11210+i, false)
		handles[i] = NewNodeHandle(ep, cmn.Couchbase, NodeCapabilities{}, &nopConn{})
	}

	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			r.Add(handles[i])
			if i%3 == 0 {
				if h, ok := r.Remove(handles[i].Endpoint()); ok {
					_ = h.Dispose()
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[Endpoint]bool)
	for _, h := range r.Iter() {
		if seen[h.Endpoint()] {
			t.Fatalf("endpoint %s appears twice in Iter", h.Endpoint())
		}
		seen[h.Endpoint()] = true
	}
	for i, h := range handles {
		if i%3 == 0 {
			continue
		}
		if _, ok := seen[h.Endpoint()]; !ok {
			t.Fatalf("expected endpoint %s to remain registered", h.Endpoint())
		}
	}
}

func TestNodeRegistryRandomRespectsPredicate(t *testing.T) {
	r := NewNodeRegistry()
	query := NewNodeHandle(NewEndpoint("q.local", 8091, false), cmn.Couchbase, NodeCapabilities{Query: true}, &nopConn{})
	plain := NewNodeHandle(NewEndpoint("p.local", 8091, false), cmn.Couchbase, NodeCapabilities{}, &nopConn{})
	r.Add(query)
	r.Add(plain)

	for i := 0; i < 20; i++ {
		h, ok := r.Random(func(h *NodeHandle) bool { return h.Capabilities().Query })
		if !ok || h != query {
			t.Fatalf("expected Random to always return the query-capable node, got %v", h)
		}
	}
}

func TestNodeRegistryFirstUnassigned(t *testing.T) {
	r := NewNodeRegistry()
	ep := NewEndpoint("10.0.0.5", 11210, false)
	h := NewNodeHandle(ep, cmn.Memcached, NodeCapabilities{}, &nopConn{})
	r.Add(h)

	if _, ok := r.FirstUnassigned(ep, cmn.Couchbase); ok {
		t.Fatal("expected bucket-type mismatch to miss")
	}
	found, ok := r.FirstUnassigned(ep, cmn.Memcached)
	if !ok || found != h {
		t.Fatal("expected to find the unassigned memcached node")
	}

	owner := stubOwner{"b"}
	_ = h.Assign(owner)
	if _, ok := r.FirstUnassigned(ep, cmn.Memcached); ok {
		t.Fatal("expected assigned node to no longer be unassigned")
	}
}

type stubOwner struct{ name string }

func (s stubOwner) OwnerName() string { return s.name }
