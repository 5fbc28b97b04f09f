/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"bufio"
	"context"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

// httpStreamSource is the HTTP-streaming ConfigSource adapter (spec
// §1/§4.8 "HTTP streaming config delivery"): a long-lived fasthttp GET
// against a pools/default/bs-style endpoint that returns
// newline-delimited JSON cluster-map objects, one per topology change.
// Named after the reference client's poolsStreaming/
// nodeServicesStreaming endpoints.
type httpStreamSource struct {
	baseURL     string // e.g. "http://node1:8091"
	bucket      string // "" for the global pools/default stream
	networkHint string
	client      *fasthttp.Client

	mu      sync.Mutex
	stopped chan struct{}
}

func NewHTTPStreamSource(baseURL, bucket, networkHint string) *httpStreamSource {
	return &httpStreamSource{
		baseURL:     baseURL,
		bucket:      bucket,
		networkHint: networkHint,
		client:      &fasthttp.Client{Name: "clustercore-configpump"},
	}
}

func (s *httpStreamSource) start(ctx context.Context, pump *ConfigPump) {
	s.mu.Lock()
	if s.stopped != nil {
		s.mu.Unlock()
		return
	}
	s.stopped = make(chan struct{})
	stopped := s.stopped
	s.mu.Unlock()

	go s.run(ctx, pump, stopped)
}

func (s *httpStreamSource) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
}

func (s *httpStreamSource) path() string {
	if s.bucket == "" {
		return cmn.URLPathNodeServicesStreaming.S
	}
	return cmn.BucketStreamPath(s.bucket)
}

// run issues the streaming GET and decodes newline-delimited JSON
// bodies as they arrive, handing each to pump.Publish. A failed request
// or a dropped stream is logged and ends run; nothing reconnects, since
// ConfigPump.Start starts the source only once (spec §7: absorb and
// log, never panic the caller).
func (s *httpStreamSource) run(ctx context.Context, pump *ConfigPump, stopped chan struct{}) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + s.path())
	req.Header.SetMethod(fasthttp.MethodGet)

	resp.StreamBody = true
	if err := s.client.Do(req, resp); err != nil {
		pump.core.services.Log.Warnf("configpump http source %s: %v", s.baseURL, err)
		return
	}

	scanner := bufio.NewScanner(resp.BodyStream())
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-stopped:
			return
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cfg, err := cluster.DecodeWireConfig(line, s.bucket == "", s.networkHint)
		if err != nil {
			pump.core.services.Log.Warnf("configpump http source %s: decode: %v", s.baseURL, err)
			continue
		}
		if s.bucket != "" {
			cfg.Bucket = s.bucket
		}
		_ = pump.Publish(cfg)
	}
	if err := scanner.Err(); err != nil {
		pump.core.services.Log.Warnf("configpump http source %s: stream ended: %v", s.baseURL, err)
	}
}
