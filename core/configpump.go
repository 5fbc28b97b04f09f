/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"sync"
	"sync/atomic"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

const pumpSinkBuffer = 16

// pumpSink is the per-bucket delivery channel: a single consumer
// goroutine drains it in order, guaranteeing ConfigPump never runs two
// apply_config calls for the same bucket concurrently (spec §4.8).
type pumpSink struct {
	token        string // subscription correlation id, surfaced in drain's log lines
	attachment   *BucketAttachment
	ch           chan *cluster.BucketConfig
	done         chan struct{}
	lastRevision atomic.Int64
}

// ConfigPump is the publish/subscribe facade over heterogeneous config
// sources (HTTP streaming, CCCP polling, server-pushed CONFIG ops;
// spec §4.8). It owns nothing about wire formats itself - sources
// decode bytes into cluster.BucketConfig and call Publish.
type ConfigPump struct {
	core       *ClusterCore
	reconciler *TopologyReconciler

	mu      sync.Mutex
	subs    map[string]*pumpSink
	started bool

	globalRevision atomic.Int64

	httpSource *httpStreamSource
	wg         sync.WaitGroup
}

func NewConfigPump(core *ClusterCore) *ConfigPump {
	return &ConfigPump{
		core:       core,
		reconciler: NewTopologyReconciler(core),
		subs:       make(map[string]*pumpSink),
	}
}

// Start begins producing updates (spec §4.8's start(enable_polling)).
// When a fasthttp-backed streaming source has been attached via
// SetHTTPSource, enablePolling additionally starts it.
func (p *ConfigPump) Start(enablePolling bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	if enablePolling && p.httpSource != nil {
		p.httpSource.start(p.core.ctx, p)
	}
}

// SetHTTPSource wires the fasthttp streaming adapter (core/configpump_http.go).
// Left unset in tests that publish configs directly.
func (p *ConfigPump) SetHTTPSource(src *httpStreamSource) {
	p.mu.Lock()
	p.httpSource = src
	p.mu.Unlock()
}

// Subscribe registers a per-bucket sink and starts its serialized
// delivery goroutine (spec §4.8's subscribe).
func (p *ConfigPump) Subscribe(attachment *BucketAttachment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.subs[attachment.Name]; exists {
		return
	}
	sink := &pumpSink{
		token:      cmn.GenUUID(),
		attachment: attachment,
		ch:         make(chan *cluster.BucketConfig, pumpSinkBuffer),
		done:       make(chan struct{}),
	}
	sink.lastRevision.Store(attachment.Revision())
	p.subs[attachment.Name] = sink

	p.wg.Add(1)
	go p.drain(sink)
}

// Unsubscribe removes bucket's sink and stops its delivery goroutine
// (spec §4.8's unsubscribe).
func (p *ConfigPump) Unsubscribe(bucket string) {
	p.mu.Lock()
	sink, exists := p.subs[bucket]
	if exists {
		delete(p.subs, bucket)
	}
	p.mu.Unlock()
	if exists {
		close(sink.done)
	}
}

func (p *ConfigPump) drain(sink *pumpSink) {
	defer p.wg.Done()
	for {
		select {
		case <-sink.done:
			return
		case <-p.core.ctx.Done():
			return
		case cfg, ok := <-sink.ch:
			if !ok {
				return
			}
			if err := p.reconciler.ApplyConfig(p.core.ctx, sink.attachment, cfg); err != nil {
				p.core.services.Log.Warnf("apply_config %s [sub:%s]: %v", sink.attachment.Name, sink.token, err)
			}
		}
	}
}

// Publish fans a freshly received config out to the global sink (if
// IsGlobal) and to the bucket attachment whose name it matches (spec
// §4.8). Revisions not strictly greater than the last one seen for
// their target are discarded here, before TopologyReconciler.ApplyConfig
// ever runs - a cheap pre-filter in front of the authoritative
// per-bucket check apply_config performs itself (spec §4.7).
func (p *ConfigPump) Publish(cfg *cluster.BucketConfig) error {
	if cfg.IsGlobal {
		p.publishGlobal(cfg)
	}
	if cfg.Bucket == "" {
		return nil
	}

	p.mu.Lock()
	sink, ok := p.subs[cfg.Bucket]
	p.mu.Unlock()
	if !ok {
		p.core.services.Log.Warnf("publish: no subscriber for bucket %q, discarding config", cfg.Bucket)
		return nil
	}

	for {
		prev := sink.lastRevision.Load()
		if cfg.Revision <= prev {
			p.core.stats.ConfigsDiscarded.Inc()
			return nil
		}
		if sink.lastRevision.CompareAndSwap(prev, cfg.Revision) {
			break
		}
	}

	select {
	case sink.ch <- cfg:
	case <-sink.done:
	case <-p.core.ctx.Done():
	}
	return nil
}

func (p *ConfigPump) publishGlobal(cfg *cluster.BucketConfig) {
	for {
		prev := p.globalRevision.Load()
		if cfg.Revision <= prev {
			p.core.stats.ConfigsDiscarded.Inc()
			return
		}
		if p.globalRevision.CompareAndSwap(prev, cfg.Revision) {
			p.core.setGlobalConfig(cfg)
			return
		}
	}
}

// Stop tears down every sink's delivery goroutine and waits for them
// to exit (part of ClusterCore's idempotent Dispose contract, spec §5).
func (p *ConfigPump) Stop() {
	p.mu.Lock()
	subs := p.subs
	p.subs = make(map[string]*pumpSink)
	src := p.httpSource
	p.mu.Unlock()
	for _, sink := range subs {
		close(sink.done)
	}
	if src != nil {
		src.stop()
	}
	p.wg.Wait()
}
