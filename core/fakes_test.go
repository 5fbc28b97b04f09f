/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

// fakeDNS is a stub DnsResolver; real resolution is out of scope here
// (spec §1) and tests only need to exercise the non-fatal fallback.
type fakeDNS struct {
	endpoints []cluster.Endpoint
	err       error
}

func (f *fakeDNS) ResolveSRV(ctx context.Context, name string) ([]cluster.Endpoint, error) {
	return f.endpoints, f.err
}

func candidateKey(ep cluster.Endpoint, bucketType string) string {
	return ep.String() + "|" + bucketType
}

// fakeNodeFactory is a scriptable ClusterNodeFactory: specific
// endpoint/type combinations can be made to fail or return RateLimited.
type fakeNodeFactory struct {
	mu            sync.Mutex
	rateLimitedOn map[string]bool
	failOn        map[string]bool
	created       []string
}

func newFakeNodeFactory() *fakeNodeFactory {
	return &fakeNodeFactory{rateLimitedOn: map[string]bool{}, failOn: map[string]bool{}}
}

func (f *fakeNodeFactory) CreateAndConnect(ctx context.Context, ep cluster.Endpoint, bucketType string, adapter *cluster.NodeAdapter) (*cluster.NodeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := candidateKey(ep, bucketType)
	f.created = append(f.created, k)
	if f.rateLimitedOn[k] {
		return nil, &cmn.ErrRateLimited{}
	}
	if f.failOn[k] {
		return nil, fmt.Errorf("connect failed: %s", k)
	}
	caps := cluster.NodeCapabilities{KV: true}
	if adapter != nil {
		caps = adapter.Capabilities
	}
	return cluster.NewNodeHandle(ep, bucketType, caps, &nopConnCore{}), nil
}

func (f *fakeNodeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeHandshake stubs SELECT_BUCKET and cluster-map fetches keyed by
// seed endpoint (for the global/GCCCP fetch) or bucket name.
type fakeHandshake struct {
	mu                 sync.Mutex
	globalByEndpoint   map[string]*cluster.BucketConfig
	bucketConfigs      map[string]*cluster.BucketConfig
	bucketNotConnected bool
	selectErr          error
}

func newFakeHandshake() *fakeHandshake {
	return &fakeHandshake{
		globalByEndpoint: map[string]*cluster.BucketConfig{},
		bucketConfigs:    map[string]*cluster.BucketConfig{},
	}
}

func (h *fakeHandshake) SelectBucket(ctx context.Context, node *cluster.NodeHandle, bucket string) error {
	return h.selectErr
}

func (h *fakeHandshake) FetchConfig(ctx context.Context, node *cluster.NodeHandle, bucket string) (*cluster.BucketConfig, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if bucket == "" {
		if h.bucketNotConnected {
			return nil, &cmn.ErrBucketNotConnected{}
		}
		cfg, ok := h.globalByEndpoint[node.Endpoint().String()]
		if !ok {
			return nil, fmt.Errorf("no global config stubbed for %s", node.Endpoint())
		}
		return cfg, nil
	}
	cfg, ok := h.bucketConfigs[bucket]
	if !ok {
		return nil, fmt.Errorf("no bucket config stubbed for %q", bucket)
	}
	return cfg, nil
}

type fakeLogger struct{}

func (fakeLogger) Infof(string, ...interface{})  {}
func (fakeLogger) Warnf(string, ...interface{})  {}
func (fakeLogger) Errorf(string, ...interface{}) {}

// countingBucketFactory counts Create invocations - scenario 3 asserts
// it is called exactly once under concurrent get_or_create_bucket.
type countingBucketFactory struct {
	count     int32
	handshake BucketHandshake
	log       Logger
}

func (f *countingBucketFactory) Create(name, bucketType string) *BucketAttachment {
	atomic.AddInt32(&f.count, 1)
	return newBucketAttachment(name, bucketType, f.handshake, f.log)
}

type nopConnCore struct{}

func (nopConnCore) Close() error { return nil }

func newTestCore(opts *cmn.ClusterOptions, dns *fakeDNS, factory *fakeNodeFactory, handshake *fakeHandshake, bf BucketFactory) *ClusterCore {
	services := Services{
		DNS:       dns,
		Nodes:     factory,
		Handshake: handshake,
		Buckets:   bf,
		Log:       fakeLogger{},
	}
	c, err := New(opts, services)
	if err != nil {
		panic(err)
	}
	return c
}
