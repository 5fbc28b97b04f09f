/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

// TopologyReconciler computes the diff between the current node set
// and an incoming cluster-map and applies additions/removals (spec
// §4.7). Configs published through ConfigPump reach it from that
// bucket's serialized delivery goroutine; attachBucket and Rebootstrap
// also call ApplyConfig directly with the first per-bucket config.
type TopologyReconciler struct {
	core *ClusterCore
}

func NewTopologyReconciler(core *ClusterCore) *TopologyReconciler {
	return &TopologyReconciler{core: core}
}

// ApplyConfig is spec §4.7/§4.3's apply_config. Idempotent for the
// same revision; rejects (no-op) strictly older revisions.
func (r *TopologyReconciler) ApplyConfig(ctx context.Context, attachment *BucketAttachment, cfg *cluster.BucketConfig) error {
	if cfg.Revision < attachment.Revision() {
		r.core.stats.ConfigsDiscarded.Inc()
		return nil
	}

	// Each adapter's connect/select_bucket/assign sequence touches only
	// its own node handle (registry and BucketAttachment bookkeeping are
	// independently synchronized), so the per-adapter pass fans out
	// concurrently rather than serializing on network round-trips.
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Nodes {
		adapter := cfg.Nodes[i]
		g.Go(func() error {
			r.applyAdapter(gctx, attachment, cfg, adapter)
			return nil
		})
	}
	_ = g.Wait()

	r.prune(attachment, cfg)

	attachment.revision.Store(cfg.Revision)
	if cfg.IsGlobal {
		r.core.setGlobalConfig(cfg)
	}
	r.core.stats.Reconciles.Inc()
	return nil
}

func (r *TopologyReconciler) applyAdapter(ctx context.Context, attachment *BucketAttachment, cfg *cluster.BucketConfig, adapter cluster.NodeAdapter) {
	ep := adapter.ResolvedEndpoint(cfg.NetworkHint)
	isMemcached := attachment.BucketType == cmn.Memcached

	existing, found := r.core.registry.TryGet(ep)
	if !found {
		r.createAndClaim(ctx, attachment, ep, adapter)
		return
	}

	switch {
	case existing.IsUnassigned() && !isMemcached:
		if adapter.Capabilities.KV {
			if err := r.core.services.Handshake.SelectBucket(ctx, existing, attachment.Name); err != nil {
				r.core.services.Log.Warnf("apply_config %s: select_bucket on %s failed: %v", attachment.Name, ep, err)
				return
			}
		}
		existing.SetCapabilities(adapter.Capabilities)
		existing.SetAdapter(&adapter)
		if err := existing.Assign(attachment); err != nil {
			r.core.services.Log.Warnf("apply_config %s: assign %s failed: %v", attachment.Name, ep, err)
			return
		}
		r.core.setNodeFeatures(adapter.Capabilities)
		attachment.addNode(existing)

	case existing.Owner() != nil && isMemcached:
		// Memcached permits shared/aliased ownership by endpoint (spec
		// §4.7).
		existing.SetAdapter(&adapter)
		_ = existing.Assign(attachment)
		attachment.addNode(existing)

	default:
		if r.inView(attachment, ep) {
			existing.SetAdapter(&adapter)
		}
		// Owned by a different, non-Memcached attachment and not in
		// this bucket's view: nothing to do here; it is simply absent
		// from this bucket's view.
	}
}

func (r *TopologyReconciler) inView(attachment *BucketAttachment, ep cluster.Endpoint) bool {
	for _, h := range attachment.Nodes() {
		if h.Endpoint() == ep {
			return true
		}
	}
	return false
}

func (r *TopologyReconciler) createAndClaim(ctx context.Context, attachment *BucketAttachment, ep cluster.Endpoint, adapter cluster.NodeAdapter) {
	h, err := r.core.services.Nodes.CreateAndConnect(ctx, ep, attachment.BucketType, &adapter)
	if err != nil {
		r.core.services.Log.Warnf("apply_config %s: connect %s failed: %v", attachment.Name, ep, err)
		return
	}
	if adapter.Capabilities.KV {
		if err := r.core.services.Handshake.SelectBucket(ctx, h, attachment.Name); err != nil {
			r.core.services.Log.Warnf("apply_config %s: select_bucket on %s failed: %v", attachment.Name, ep, err)
			_ = h.Dispose()
			return
		}
	}
	if !r.core.addNode(h) {
		_ = h.Dispose()
		return
	}
	if err := h.Assign(attachment); err != nil {
		r.core.services.Log.Warnf("apply_config %s: assign %s failed: %v", attachment.Name, ep, err)
		return
	}
	r.core.setNodeFeatures(adapter.Capabilities)
	attachment.addNode(h)
}

// prune removes and disposes every registered node whose host is not
// present in the new config's host-set. Host-only comparison (not
// host+port) is intentional (spec §4.7): it avoids churn when
// alternate-address ports are reported differently across revisions.
func (r *TopologyReconciler) prune(attachment *BucketAttachment, cfg *cluster.BucketConfig) {
	hostSet := cfg.HostSet()
	for _, h := range r.core.registry.Iter() {
		if _, keep := hostSet[h.Endpoint().Host]; keep {
			continue
		}
		r.core.removeNode(h.Endpoint())
		attachment.removeNode(h.Endpoint())
		if err := h.Dispose(); err != nil {
			r.core.services.Log.Warnf("apply_config %s: dispose pruned node %s: %v", attachment.Name, h, err)
		}
	}
}
