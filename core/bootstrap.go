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

// resolveBootstrapEndpoints implements spec §4.4 step 1: DNS-SRV names
// resolve to a literal endpoint list; empty results or resolution
// errors are non-fatal and fall through to any literal endpoints the
// connection string also carried.
func (c *ClusterCore) resolveBootstrapEndpoints(ctx context.Context) []cluster.Endpoint {
	c.bootstrapMu.Lock()
	defer c.bootstrapMu.Unlock()
	if len(c.endpoints) > 0 {
		return c.endpoints
	}
	if c.parsed.DnsSRVName != "" {
		resolved, err := c.services.DNS.ResolveSRV(ctx, c.parsed.DnsSRVName)
		if err != nil {
			c.services.Log.Warnf("dns-srv resolve %q failed, falling back: %v", c.parsed.DnsSRVName, err)
		} else if len(resolved) > 0 {
			c.endpoints = resolved
			return c.endpoints
		}
	}
	c.endpoints = c.parsed.Endpoints
	return c.endpoints
}

// BootstrapGlobal implements spec §4.4: connect to candidate endpoints
// in order until one yields a global cluster-map (GCCCP), or falls
// back to legacy per-bucket-only discovery if the server rejects GCCCP
// with BucketNotConnected.
func (c *ClusterCore) BootstrapGlobal(ctx context.Context) error {
	if err := c.checkAlive("BootstrapGlobal"); err != nil {
		return err
	}
	c.stats.BootstrapAttempts.Inc()

	endpoints := c.resolveBootstrapEndpoints(ctx)
	if len(endpoints) == 0 {
		c.stats.BootstrapFailures.Inc()
		return &cmn.ErrInvalidConnectionString{ConnStr: c.opts().ConnectionString}
	}

	var lastErr error
	for _, ep := range endpoints {
		seed, err := c.services.Nodes.CreateAndConnect(ctx, ep, cmn.Couchbase, nil)
		if err != nil {
			if cmn.IsRateLimited(err) {
				return err
			}
			c.services.Log.Warnf("bootstrap[%s]: connect %s failed: %v", c.id, ep, err)
			lastErr = err
			continue
		}
		c.addNode(seed)

		cfg, err := c.services.Handshake.FetchConfig(ctx, seed, "")
		if err != nil {
			if cmn.IsBucketNotConnected(err) {
				// GCCCP unsupported (pre-6.5): operate in legacy mode with
				// just the seed node registered (spec §4.4 step 2c).
				c.services.Log.Infof("bootstrap[%s]: %s rejects GCCCP, continuing in legacy mode", c.id, ep)
				return nil
			}
			if cmn.IsRateLimited(err) {
				return err
			}
			c.services.Log.Warnf("bootstrap[%s]: fetch global config from %s failed: %v", c.id, ep, err)
			c.removeNode(ep)
			_ = seed.Dispose()
			lastErr = err
			continue
		}

		cfg.IsGlobal = true
		c.applyGlobalBootstrapMap(ctx, seed, ep, cfg)
		c.setGlobalConfig(cfg)
		return nil
	}

	c.stats.BootstrapFailures.Inc()
	if lastErr != nil {
		return cmn.Wrap(lastErr, "bootstrap_global: all endpoints exhausted")
	}
	return &cmn.ErrNoNodes{Type: cmn.Couchbase}
}

// applyGlobalBootstrapMap registers every node in the freshly fetched
// global config, recognizing the seed by exact Endpoint equality
// (spec §4.4: "the seed endpoint is detected by exact Endpoint
// equality") and connecting every other node fresh.
func (c *ClusterCore) applyGlobalBootstrapMap(ctx context.Context, seed *cluster.NodeHandle, seedEndpoint cluster.Endpoint, cfg *cluster.BucketConfig) {
	seenHosts := make(map[cluster.Endpoint]bool, len(cfg.Nodes))
	var toConnect []cluster.NodeAdapter
	for i := range cfg.Nodes {
		adapter := cfg.Nodes[i] // local copy: its address is stored on the handle
		ep := adapter.ResolvedEndpoint(cfg.NetworkHint)
		if seenHosts[ep] {
			// Grounded on the teacher's Snode.isDuplicate check (spec's
			// supplemented duplicate-endpoint detection): logged, not fatal.
			c.services.Log.Warnf("bootstrap: duplicate endpoint %s in global config, skipping", ep)
			continue
		}
		seenHosts[ep] = true

		if ep == seedEndpoint {
			seed.SetAdapter(&adapter)
			seed.SetCapabilities(adapter.Capabilities)
			c.setNodeFeatures(adapter.Capabilities)
			continue
		}
		toConnect = append(toConnect, adapter)
	}

	// Every other node discovered in the global map connects independently
	// of its siblings (unlike the outer candidate-endpoint loop in
	// BootstrapGlobal, nothing here depends on attempt order), so the
	// connects fan out concurrently instead of one-at-a-time.
	g, gctx := errgroup.WithContext(ctx)
	for i := range toConnect {
		adapter := toConnect[i]
		g.Go(func() error {
			ep := adapter.ResolvedEndpoint(cfg.NetworkHint)
			n, err := c.services.Nodes.CreateAndConnect(gctx, ep, cmn.Couchbase, &adapter)
			if err != nil {
				c.services.Log.Warnf("bootstrap: connect discovered node %s failed: %v", ep, err)
				return nil
			}
			if !c.addNode(n) {
				_ = n.Dispose()
				return nil
			}
			c.setNodeFeatures(adapter.Capabilities)
			return nil
		})
	}
	_ = g.Wait()
}

// GetOrCreateBucket implements spec §4.5: a fast path over the
// attachments map, then a single-permit slow path (golang.org/x/sync/
// singleflight, keyed by bucket name) that tries every bootstrap
// endpoint crossed with {Couchbase, Memcached} until one attaches.
func (c *ClusterCore) GetOrCreateBucket(ctx context.Context, name string) (*BucketAttachment, error) {
	if err := c.checkAlive("GetOrCreateBucket"); err != nil {
		return nil, err
	}

	c.bucketsMu.RLock()
	if b, ok := c.buckets[name]; ok {
		c.bucketsMu.RUnlock()
		return b, nil
	}
	c.bucketsMu.RUnlock()

	v, err, _ := c.attachSF.Do(name, func() (interface{}, error) {
		// Re-check: another waiter may have completed the attach while
		// this goroutine queued for the singleflight permit (spec §4.5
		// step 1).
		c.bucketsMu.RLock()
		if b, ok := c.buckets[name]; ok {
			c.bucketsMu.RUnlock()
			return b, nil
		}
		c.bucketsMu.RUnlock()

		return c.attachBucket(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*BucketAttachment), nil
}

// attachBucket is the slow path's body, run under the single permit
// (spec §4.5 step 2): endpoints outer, bucket types inner, in the
// fixed order {Couchbase, Memcached}.
func (c *ClusterCore) attachBucket(ctx context.Context, name string) (*BucketAttachment, error) {
	endpoints := c.resolveBootstrapEndpoints(ctx)
	if len(endpoints) == 0 {
		c.stats.BucketAttachFails.Inc()
		return nil, &cmn.ErrInvalidConnectionString{ConnStr: c.opts().ConnectionString}
	}

	attachment := c.services.Buckets.Create(name, cmn.Couchbase)

	var lastErr error
	for _, ep := range endpoints {
		for _, bucketType := range bucketTypeOrder {
			seed, owned, err := c.acquireCandidate(ctx, ep, bucketType)
			if err != nil {
				if cmn.IsRateLimited(err) {
					return nil, err
				}
				c.services.Log.Warnf("attach %s: connect %s/%s failed: %v", name, ep, bucketType, err)
				lastErr = err
				continue
			}
			attachment.BucketType = bucketType

			cfg, err := attachment.attach(ctx, seed)
			if err != nil {
				if cmn.IsRateLimited(err) {
					return nil, err
				}
				c.services.Log.Warnf("attach %s: handshake on %s/%s failed: %v", name, ep, bucketType, err)
				if owned {
					c.removeNode(ep)
					_ = seed.Dispose()
				}
				lastErr = err
				continue
			}

			// The first per-bucket fetch carries the bucket's full node
			// list (spec §4.3); run it through the same reconciler
			// ordinary ConfigPump deliveries use so attach yields the
			// bucket's current topology, not just the seed.
			if err := c.pump.reconciler.ApplyConfig(ctx, attachment, cfg); err != nil {
				c.services.Log.Warnf("attach %s: apply initial config failed: %v", name, err)
			}

			c.RegisterBucket(attachment)
			c.stats.BucketAttaches.Inc()
			return attachment, nil
		}
	}

	c.stats.BucketAttachFails.Inc()
	if lastErr != nil {
		c.services.Log.Warnf("attach %s: all combinations exhausted: %v", name, lastErr)
	}
	return nil, &cmn.ErrBucketNotFound{Bucket: name}
}

// acquireCandidate reuses a previously created unassigned node at
// (endpoint, bucketType) if one exists, else creates and registers a
// fresh one. owned reports whether this call is responsible for
// removing/disposing the node on a later failure.
func (c *ClusterCore) acquireCandidate(ctx context.Context, ep cluster.Endpoint, bucketType string) (h *cluster.NodeHandle, owned bool, err error) {
	if h, ok := c.registry.FirstUnassigned(ep, bucketType); ok {
		return h, false, nil
	}
	h, err = c.services.Nodes.CreateAndConnect(ctx, ep, bucketType, nil)
	if err != nil {
		return nil, false, err
	}
	if !c.addNode(h) {
		// Lost a race with a concurrent bootstrap/reconcile add; reuse
		// the winner instead of leaking this connection.
		_ = h.Dispose()
		existing, ok := c.registry.TryGet(ep)
		if !ok {
			return nil, false, &cmn.ErrNotFound{What: ep.String()}
		}
		return existing, false, nil
	}
	return h, true, nil
}

// Rebootstrap implements spec §4.6: evict and dispose every node
// currently owned by the named bucket, then retry every bootstrap
// endpoint against the existing attachment.
func (c *ClusterCore) Rebootstrap(ctx context.Context, name string) error {
	if err := c.checkAlive("Rebootstrap"); err != nil {
		return err
	}
	c.bucketsMu.RLock()
	attachment, ok := c.buckets[name]
	c.bucketsMu.RUnlock()
	if !ok {
		return &cmn.ErrBucketNotFound{Bucket: name}
	}

	owned := attachment.detach()
	c.evictAndDispose(owned)
	c.UnregisterBucket(name)

	endpoints := c.resolveBootstrapEndpoints(ctx)
	var lastErr error
	for _, ep := range endpoints {
		seed, seedOwned, err := c.acquireCandidate(ctx, ep, cmn.Couchbase)
		if err != nil {
			c.services.Log.Warnf("rebootstrap %s: connect %s failed: %v", name, ep, err)
			lastErr = err
			continue
		}
		cfg, err := attachment.attach(ctx, seed)
		if err != nil {
			c.services.Log.Warnf("rebootstrap %s: attach on %s failed: %v", name, ep, err)
			if seedOwned {
				c.removeNode(ep)
				_ = seed.Dispose()
			}
			lastErr = err
			continue
		}
		if err := c.pump.reconciler.ApplyConfig(ctx, attachment, cfg); err != nil {
			c.services.Log.Warnf("rebootstrap %s: apply config on %s failed: %v", name, ep, err)
		}
		c.RegisterBucket(attachment)
	}

	if !attachment.IsBootstrapped() {
		if lastErr != nil {
			return cmn.Wrap(lastErr, "rebootstrap %q: all endpoints exhausted", name)
		}
		return &cmn.ErrBucketNotFound{Bucket: name}
	}
	return nil
}
