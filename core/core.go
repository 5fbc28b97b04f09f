/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

// shortIDOnce guards cmn.InitShortID: the generator is a package-level
// singleton (teacher's cos.InitShortID convention), so only the first
// ClusterCore constructed in a process seeds it.
var shortIDOnce sync.Once

type lifecycleState int32

const (
	stateConstructed lifecycleState = iota
	stateStarted
	stateDisposed
)

// bucketTypeOrder makes the spec's "enumeration of bucket types at
// attach time" an explicit, ordered contract rather than an enum
// iteration order left to the source language (spec §9, Design Notes).
var bucketTypeOrder = []string{cmn.Couchbase, cmn.Memcached}

// ClusterCore is the process-scoped (but never a true singleton -
// spec §9) orchestrator: bootstrap, bucket attach, rebootstrap, map
// application, and the registry/attachments/feature-flags it owns
// (spec §3).
type ClusterCore struct {
	id        string // short correlation id for log lines (spec §6 ambient logging)
	optsOwner *cmn.OptionsOwner
	services  Services

	registry *cluster.NodeRegistry
	selector *NodeSelector
	pump     *ConfigPump
	stats    *CoreStats

	bucketsMu sync.RWMutex
	buckets   map[string]*BucketAttachment
	attachSF  singleflight.Group

	globalConfig atomic.Pointer[cluster.BucketConfig]

	featuresMu          sync.Mutex
	supportsCollections bool
	supportsPreserveTTL bool

	parsed      *ParsedConnStr
	bootstrapMu sync.Mutex
	endpoints   []cluster.Endpoint // resolved bootstrap endpoints, cached after first resolution

	state            atomic.Int32
	ctx              context.Context
	cancel           context.CancelFunc
	tracerStop       func()
	orphanTracerStop func()
}

// New constructs a ClusterCore in the "constructed" lifecycle state.
// It does not connect anything; call Start then BootstrapGlobal (or
// GetOrCreateBucket, which bootstraps lazily) to bring it up.
func New(opts *cmn.ClusterOptions, services Services) (*ClusterCore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if services.DNS == nil {
		services.DNS = NewDefaultDnsResolver()
	}
	if services.Log == nil {
		services.Log = NewGlogLogger()
	}
	if services.Buckets == nil && services.Handshake != nil {
		services.Buckets = NewDefaultBucketFactory(services.Handshake, services.Log)
	}

	parsed, err := ParseConnStr(opts.ConnectionString)
	if err != nil {
		return nil, err
	}

	shortIDOnce.Do(func() { cmn.InitShortID(uint64(time.Now().UnixNano())) })

	registry := cluster.NewNodeRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	c := &ClusterCore{
		id:        cmn.GenUUID(),
		optsOwner: cmn.NewOptionsOwner(opts),
		services:  services,
		registry:  registry,
		selector:  NewNodeSelector(registry),
		stats:     NewCoreStats(),
		buckets:   make(map[string]*BucketAttachment),
		parsed:    parsed,
		ctx:       ctx,
		cancel:    cancel,
	}
	c.pump = NewConfigPump(c)
	return c, nil
}

// ID returns this ClusterCore's short correlation id, used to tag
// global bootstrap log lines when more than one core shares a process
// (spec §9: never a true singleton).
func (c *ClusterCore) ID() string { return c.id }

// opts returns the current ClusterOptions snapshot (lock-free read
// over the atomic pointer optsOwner holds).
func (c *ClusterCore) opts() *cmn.ClusterOptions { return c.optsOwner.Get() }

// UpdateOptions applies fn to a clone of the current options and
// publishes the result atomically, following the teacher's
// globalConfigOwner reload pattern. The connection string is parsed
// once in New, so changing ConnectionString here does not change the
// bootstrap endpoints; EnableConfigPolling and the tracing options are
// read by Start.
func (c *ClusterCore) UpdateOptions(fn func(*cmn.ClusterOptions)) *cmn.ClusterOptions {
	return c.optsOwner.Update(fn)
}

func (c *ClusterCore) checkAlive(op string) error {
	switch lifecycleState(c.state.Load()) {
	case stateDisposed:
		return &cmn.ErrDisposed{Op: op}
	default:
		return nil
	}
}

// Start transitions constructed -> started and begins ConfigPump
// production (spec §6: "start()").
func (c *ClusterCore) Start() error {
	if err := c.checkAlive("Start"); err != nil {
		return err
	}
	c.state.CompareAndSwap(int32(stateConstructed), int32(stateStarted))
	opts := c.opts()
	c.pump.Start(opts.EnableConfigPolling)
	if c.services.Tracer != nil && opts.Threshold.Enabled {
		stop, err := c.services.Tracer.Start(opts.Threshold.Listener)
		if err != nil {
			// Optional sub-resource failure does not abort startup (spec §7).
			c.services.Log.Warnf("request tracer failed to start: %v", err)
		} else {
			c.tracerStop = stop
		}
	}
	if c.services.OrphanTracer != nil && opts.OrphanTracing.Enabled {
		stop, err := c.services.OrphanTracer.Start(opts.OrphanTracing.Listener)
		if err != nil {
			c.services.Log.Warnf("orphan tracer failed to start: %v", err)
		} else {
			c.orphanTracerStop = stop
		}
	}
	return nil
}

// GlobalConfig returns the last observed global BucketConfig, or nil
// if bootstrap has not produced one (e.g. legacy GCCCP-unsupported
// mode, spec §4.4 step 2c).
func (c *ClusterCore) GlobalConfig() *cluster.BucketConfig {
	return c.globalConfig.Load()
}

func (c *ClusterCore) setGlobalConfig(cfg *cluster.BucketConfig) { c.globalConfig.Store(cfg) }

// setNodeFeatures overwrites the core's feature flags wholesale.
// Spec §9 Open Question: preserved as "last connected node wins
// within a config epoch" rather than switched to per-node flags - a
// deliberate decision, not an oversight (see DESIGN.md).
func (c *ClusterCore) setNodeFeatures(caps cluster.NodeCapabilities) {
	c.featuresMu.Lock()
	c.supportsCollections = caps.Collections
	c.supportsPreserveTTL = caps.PreserveTTL
	c.featuresMu.Unlock()
}

func (c *ClusterCore) SupportsCollections() bool {
	c.featuresMu.Lock()
	defer c.featuresMu.Unlock()
	return c.supportsCollections
}

func (c *ClusterCore) SupportsPreserveTTL() bool {
	c.featuresMu.Lock()
	defer c.featuresMu.Unlock()
	return c.supportsPreserveTTL
}

// GetRandomNodeForService is the exposed NodeSelector entry point
// (spec §6).
func (c *ClusterCore) GetRandomNodeForService(service, bucketName string) (*cluster.NodeHandle, error) {
	if err := c.checkAlive("GetRandomNodeForService"); err != nil {
		return nil, err
	}
	return c.selector.SelectForService(service, bucketName)
}

// GetNodes returns every registered node, or - if bucket is non-empty
// - only the nodes in that bucket's current view (spec §6).
func (c *ClusterCore) GetNodes(bucket string) ([]*cluster.NodeHandle, error) {
	if err := c.checkAlive("GetNodes"); err != nil {
		return nil, err
	}
	if bucket == "" {
		return c.registry.Iter(), nil
	}
	c.bucketsMu.RLock()
	b, ok := c.buckets[bucket]
	c.bucketsMu.RUnlock()
	if !ok {
		return nil, cmn.NewNotFoundError("bucket %q", bucket)
	}
	return b.Nodes(), nil
}

// RegisterBucket/UnregisterBucket/RemoveBucket expose the attachments
// map mutation points named in spec §6.
func (c *ClusterCore) RegisterBucket(b *BucketAttachment) {
	c.bucketsMu.Lock()
	c.buckets[b.Name] = b
	c.bucketsMu.Unlock()
	c.pump.Subscribe(b)
}

func (c *ClusterCore) UnregisterBucket(name string) {
	c.bucketsMu.Lock()
	delete(c.buckets, name)
	c.bucketsMu.Unlock()
	c.pump.Unsubscribe(name)
}

// RemoveBucket unregisters the bucket, then removes its nodes from the
// registry and disposes them (spec §4.3's detach, driven from the
// core so node removal stays centralized).
func (c *ClusterCore) RemoveBucket(name string) {
	c.bucketsMu.Lock()
	b, ok := c.buckets[name]
	delete(c.buckets, name)
	c.bucketsMu.Unlock()
	if !ok {
		return
	}
	c.pump.Unsubscribe(name)
	owned := b.dispose()
	c.evictAndDispose(owned)
}

func (c *ClusterCore) evictAndDispose(handles []*cluster.NodeHandle) {
	for _, h := range handles {
		c.removeNode(h.Endpoint())
		if err := h.Dispose(); err != nil {
			c.services.Log.Warnf("dispose %s: %v", h, err)
		}
	}
}

// PublishConfig feeds a freshly received config into ConfigPump (spec
// §6).
func (c *ClusterCore) PublishConfig(cfg *cluster.BucketConfig) error {
	if err := c.checkAlive("PublishConfig"); err != nil {
		return err
	}
	return c.pump.Publish(cfg)
}

// Dispose is idempotent (spec §5): cancels the root token, stops
// ConfigPump, releases owned sub-resources, disposes every
// BucketAttachment, and clears/disposes every remaining NodeHandle.
// After Dispose, Start, BootstrapGlobal, GetOrCreateBucket, Rebootstrap,
// PublishConfig, GetRandomNodeForService and GetNodes fail with
// ErrDisposed; RegisterBucket, UnregisterBucket, RemoveBucket,
// UpdateOptions and the read-only accessors do not check the lifecycle
// state.
func (c *ClusterCore) Dispose() {
	if !c.state.CompareAndSwap(int32(stateStarted), int32(stateDisposed)) &&
		!c.state.CompareAndSwap(int32(stateConstructed), int32(stateDisposed)) {
		return // already disposed
	}
	c.cancel()
	c.pump.Stop()
	if c.tracerStop != nil {
		c.tracerStop()
	}
	if c.orphanTracerStop != nil {
		c.orphanTracerStop()
	}

	c.bucketsMu.Lock()
	buckets := c.buckets
	c.buckets = make(map[string]*BucketAttachment)
	c.bucketsMu.Unlock()
	for _, b := range buckets {
		b.dispose()
	}

	cleared := c.registry.ClearAll()
	for _, h := range cleared {
		if err := h.Dispose(); err != nil {
			c.services.Log.Warnf("dispose %s: %v", h, err)
		}
	}
	if len(cleared) > 0 {
		c.stats.NodesRegistered.Set(0)
	}
}

// addNode registers h with the registry and keeps the NodesRegistered
// gauge in step; every registry.Add call site in this package goes
// through here instead of the registry directly.
func (c *ClusterCore) addNode(h *cluster.NodeHandle) bool {
	ok := c.registry.Add(h)
	if ok {
		c.stats.NodesRegistered.Inc()
	}
	return ok
}

// removeNode mirrors addNode for the registry's removal path.
func (c *ClusterCore) removeNode(e cluster.Endpoint) (*cluster.NodeHandle, bool) {
	h, ok := c.registry.Remove(e)
	if ok {
		c.stats.NodesRegistered.Dec()
	}
	return h, ok
}
