/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

var _ = Describe("ClusterCore bootstrap", func() {
	var (
		ctx       context.Context
		seed      cluster.Endpoint
		two       cluster.Endpoint
		three     cluster.Endpoint
		dns       *fakeDNS
		factory   *fakeNodeFactory
		handshake *fakeHandshake
		c         *ClusterCore
	)

	BeforeEach(func() {
		ctx = context.Background()
		seed = cluster.NewEndpoint("10.0.0.1", 11210, false)
		two = cluster.NewEndpoint("10.0.0.2", 11210, false)
		three = cluster.NewEndpoint("10.0.0.3", 11210, false)
		dns = &fakeDNS{}
		factory = newFakeNodeFactory()
		handshake = newFakeHandshake()
	})

	// Scenario 1: GCCCP bootstrap, 3 nodes.
	It("registers every node from a global cluster-map", func() {
		global := cluster.NewBucketConfig("", 1, []cluster.NodeAdapter{
			{Endpoint: seed, Capabilities: cluster.NodeCapabilities{KV: true, Query: true}},
			{Endpoint: two, Capabilities: cluster.NodeCapabilities{KV: true, Query: true}},
			{Endpoint: three, Capabilities: cluster.NodeCapabilities{KV: true, Query: true}},
		}, cluster.LocatorVBucket, cmn.NetworkInternal, true)
		handshake.globalByEndpoint[seed.String()] = global

		c = newTestCore(&cmn.ClusterOptions{ConnectionString: "couchbase://10.0.0.1"}, dns, factory, handshake, nil)
		Expect(c.BootstrapGlobal(ctx)).To(Succeed())

		nodes, err := c.GetNodes("")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(3))
		Expect(c.GlobalConfig()).NotTo(BeNil())
		Expect(c.GlobalConfig().IsGlobal).To(BeTrue())

		h, err := c.GetRandomNodeForService(cmn.ServiceQuery, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(h).NotTo(BeNil())
	})

	// Scenario 2: GCCCP unsupported fallback.
	It("falls back to legacy mode when the seed rejects GCCCP", func() {
		handshake.bucketNotConnected = true
		handshake.bucketConfigs["b"] = cluster.NewBucketConfig("b", 1, []cluster.NodeAdapter{
			{Endpoint: seed, Capabilities: cluster.NodeCapabilities{KV: true}},
		}, cluster.LocatorVBucket, cmn.NetworkInternal, false)

		bf := &countingBucketFactory{handshake: handshake, log: fakeLogger{}}
		c = newTestCore(&cmn.ClusterOptions{ConnectionString: "couchbase://10.0.0.1"}, dns, factory, handshake, bf)

		Expect(c.BootstrapGlobal(ctx)).To(Succeed())
		nodes, err := c.GetNodes("")
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
		Expect(c.GlobalConfig()).To(BeNil())

		attachment, err := c.GetOrCreateBucket(ctx, "b")
		Expect(err).NotTo(HaveOccurred())
		Expect(attachment.IsBootstrapped()).To(BeTrue())
	})

	// Scenario 6: RateLimited surfaces.
	It("propagates RateLimited immediately without trying further combinations", func() {
		rateLimitedKey := candidateKey(seed, cmn.Couchbase)
		factory.rateLimitedOn[rateLimitedKey] = true
		handshake.bucketConfigs["b"] = cluster.NewBucketConfig("b", 1, nil, cluster.LocatorVBucket, cmn.NetworkInternal, false)

		bf := &countingBucketFactory{handshake: handshake, log: fakeLogger{}}
		c = newTestCore(&cmn.ClusterOptions{ConnectionString: "couchbase://10.0.0.1"}, dns, factory, handshake, bf)

		_, err := c.GetOrCreateBucket(ctx, "b")
		Expect(err).To(HaveOccurred())
		var rl *cmn.ErrRateLimited
		Expect(errors.As(err, &rl)).To(BeTrue())
		Expect(factory.createdCount()).To(Equal(1))

		_, stillRegistered := func() (*BucketAttachment, bool) {
			c.bucketsMu.RLock()
			defer c.bucketsMu.RUnlock()
			b, ok := c.buckets["b"]
			return b, ok
		}()
		Expect(stillRegistered).To(BeFalse())
	})
})

var _ = Describe("ClusterCore bucket attach", func() {
	// Scenario 3: concurrent bucket open.
	It("runs exactly one attach sequence for concurrent callers", func() {
		ctx := context.Background()
		seed := cluster.NewEndpoint("10.0.0.1", 11210, false)
		dns := &fakeDNS{}
		factory := newFakeNodeFactory()
		handshake := newFakeHandshake()
		handshake.bucketConfigs["travel-sample"] = cluster.NewBucketConfig("travel-sample", 1, []cluster.NodeAdapter{
			{Endpoint: seed, Capabilities: cluster.NodeCapabilities{KV: true}},
		}, cluster.LocatorVBucket, cmn.NetworkInternal, false)

		bf := &countingBucketFactory{handshake: handshake, log: fakeLogger{}}
		c := newTestCore(&cmn.ClusterOptions{ConnectionString: "couchbase://10.0.0.1"}, dns, factory, handshake, bf)

		const n = 8
		results := make(chan *BucketAttachment, n)
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			go func() {
				a, err := c.GetOrCreateBucket(ctx, "travel-sample")
				results <- a
				errs <- err
			}()
		}

		var first *BucketAttachment
		for i := 0; i < n; i++ {
			Expect(<-errs).NotTo(HaveOccurred())
			a := <-results
			if first == nil {
				first = a
			} else {
				Expect(a).To(BeIdenticalTo(first))
			}
		}
		Expect(atomic.LoadInt32(&bf.count)).To(Equal(int32(1)))
	})
})

var _ = Describe("ClusterCore rebootstrap", func() {
	// Scenario 4: rebootstrap after total node loss.
	It("evicts and reconnects after all owned nodes are lost", func() {
		ctx := context.Background()
		a := cluster.NewEndpoint("10.0.0.1", 11210, false)
		dns := &fakeDNS{}
		factory := newFakeNodeFactory()
		handshake := newFakeHandshake()
		handshake.bucketConfigs["b"] = cluster.NewBucketConfig("b", 1, []cluster.NodeAdapter{
			{Endpoint: a, Capabilities: cluster.NodeCapabilities{KV: true}},
		}, cluster.LocatorVBucket, cmn.NetworkInternal, false)

		bf := &countingBucketFactory{handshake: handshake, log: fakeLogger{}}
		c := newTestCore(&cmn.ClusterOptions{ConnectionString: "couchbase://10.0.0.1"}, dns, factory, handshake, bf)

		attachment, err := c.GetOrCreateBucket(ctx, "b")
		Expect(err).NotTo(HaveOccurred())

		// Simulate B and C joining the bucket's view alongside seed A.
		bEp := cluster.NewEndpoint("10.0.0.2", 11210, false)
		cEp := cluster.NewEndpoint("10.0.0.3", 11210, false)
		for _, ep := range []cluster.Endpoint{bEp, cEp} {
			h := cluster.NewNodeHandle(ep, cmn.Couchbase, cluster.NodeCapabilities{KV: true}, &nopConnCore{})
			c.registry.Add(h)
			Expect(h.Assign(attachment)).To(Succeed())
			attachment.addNode(h)
		}
		Expect(attachment.Nodes()).To(HaveLen(3))

		owned := attachment.Nodes()
		Expect(c.Rebootstrap(ctx, "b")).To(Succeed())

		// Every previously owned node - including the original seed - is
		// evicted and disposed (spec §4.6 step 1); rebootstrap reconnects
		// fresh handles for the bootstrap endpoints.
		for _, h := range owned {
			Expect(h.IsDisposed()).To(BeTrue())
		}
		_, stillThere := c.registry.TryGet(a)
		Expect(stillThere).To(BeTrue()) // reconnected fresh under the same endpoint
		Expect(attachment.IsBootstrapped()).To(BeTrue())
	})
})

var _ = Describe("TopologyReconciler", func() {
	// Scenario 5: config prune.
	It("removes and disposes nodes absent from the new config's host set", func() {
		ctx := context.Background()
		aEp := cluster.NewEndpoint("a.local", 11210, false)
		bEp := cluster.NewEndpoint("b.local", 11210, false)
		cEp := cluster.NewEndpoint("c.local", 11210, false)

		dns := &fakeDNS{}
		factory := newFakeNodeFactory()
		handshake := newFakeHandshake()
		bf := &countingBucketFactory{handshake: handshake, log: fakeLogger{}}
		core := newTestCore(&cmn.ClusterOptions{ConnectionString: "couchbase://a.local"}, dns, factory, handshake, bf)

		attachment := newBucketAttachment("b", cmn.Couchbase, handshake, fakeLogger{})
		var handles []*cluster.NodeHandle
		for _, ep := range []cluster.Endpoint{aEp, bEp, cEp} {
			h := cluster.NewNodeHandle(ep, cmn.Couchbase, cluster.NodeCapabilities{KV: true}, &nopConnCore{})
			core.registry.Add(h)
			Expect(h.Assign(attachment)).To(Succeed())
			attachment.addNode(h)
			handles = append(handles, h)
		}

		newCfg := cluster.NewBucketConfig("b", 2, []cluster.NodeAdapter{
			{Endpoint: aEp, Capabilities: cluster.NodeCapabilities{KV: true}},
			{Endpoint: cEp, Capabilities: cluster.NodeCapabilities{KV: true}},
		}, cluster.LocatorVBucket, cmn.NetworkInternal, false)

		reconciler := NewTopologyReconciler(core)
		Expect(reconciler.ApplyConfig(ctx, attachment, newCfg)).To(Succeed())

		Expect(handles[1].IsDisposed()).To(BeTrue()) // b.local pruned
		_, stillThere := core.registry.TryGet(bEp)
		Expect(stillThere).To(BeFalse())

		for _, ep := range []cluster.Endpoint{aEp, cEp} {
			_, ok := core.registry.TryGet(ep)
			Expect(ok).To(BeTrue())
		}
		Expect(attachment.Revision()).To(Equal(int64(2)))
	})
})
