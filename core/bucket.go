/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

// BucketAttachment is per-bucket state: name, type, the ordered view
// of nodes assigned to it, a bootstrapped flag, and the latest applied
// config revision (spec §3/§4.3). Created on first user request for
// the name; destroyed on explicit close or core teardown.
type BucketAttachment struct {
	Name       string
	BucketType string

	mu           sync.RWMutex
	nodes        []*cluster.NodeHandle
	bootstrapped bool
	revision     atomic.Int64

	handshake BucketHandshake
	log       Logger
}

func newBucketAttachment(name, bucketType string, handshake BucketHandshake, log Logger) *BucketAttachment {
	return &BucketAttachment{
		Name:       name,
		BucketType: bucketType,
		handshake:  handshake,
		log:        log,
	}
}

// OwnerName satisfies cluster.Owner - this is the back-reference
// target a NodeHandle's owner field points at (spec §9).
func (b *BucketAttachment) OwnerName() string { return b.Name }

func (b *BucketAttachment) IsBootstrapped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bootstrapped
}

func (b *BucketAttachment) Revision() int64 { return b.revision.Load() }

// Nodes returns a snapshot of the attachment's current node view.
func (b *BucketAttachment) Nodes() []*cluster.NodeHandle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*cluster.NodeHandle, len(b.nodes))
	copy(out, b.nodes)
	return out
}

func (b *BucketAttachment) addNode(h *cluster.NodeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.nodes {
		if existing.Endpoint() == h.Endpoint() {
			return
		}
	}
	b.nodes = append(b.nodes, h)
}

func (b *BucketAttachment) removeNode(e cluster.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.nodes {
		if h.Endpoint() == e {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			return
		}
	}
}

// attach performs the bucket-specific handshake on the seed node
// (spec §4.3): SELECT_BUCKET for Couchbase buckets with KV, no-op for
// Memcached, then pulls the first per-bucket cluster-map. On success
// the attachment is marked bootstrapped.
func (b *BucketAttachment) attach(ctx context.Context, seed *cluster.NodeHandle) (*cluster.BucketConfig, error) {
	if b.BucketType == cmn.Couchbase && seed.Capabilities().KV {
		if err := b.handshake.SelectBucket(ctx, seed, b.Name); err != nil {
			return nil, cmn.Wrap(err, "select_bucket(%s) on %s", b.Name, seed)
		}
	}
	if err := seed.Assign(b); err != nil {
		return nil, err
	}
	cfg, err := b.handshake.FetchConfig(ctx, seed, b.Name)
	if err != nil {
		return nil, cmn.Wrap(err, "fetch first config for %s", b.Name)
	}

	b.mu.Lock()
	b.nodes = append(b.nodes, seed)
	b.bootstrapped = true
	b.mu.Unlock()
	b.revision.Store(cfg.Revision)
	return cfg, nil
}

// detach releases every node currently owned by this attachment,
// returning them for the caller (ClusterCore) to remove from the
// registry and dispose (spec §4.3, §4.6 step 1).
func (b *BucketAttachment) detach() []*cluster.NodeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.nodes
	for _, h := range out {
		h.Release()
	}
	b.nodes = nil
	b.bootstrapped = false
	return out
}

// dispose is the terminal form of detach: same release semantics, kept
// as a distinct name so call sites read as intent (core teardown vs.
// an in-place reconciliation release).
func (b *BucketAttachment) dispose() []*cluster.NodeHandle {
	return b.detach()
}
