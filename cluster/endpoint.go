// Package cluster provides the data model and live registry for cluster
// coordination: endpoints, node handles, node capabilities, and the
// versioned cluster-map (BucketConfig) that the core reconciles
// against.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"fmt"
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// Endpoint identifies one server node's network address. It is a value
// type: comparable by exact equality and usable as a map key directly
// (spec §3: "Value type, comparable by exact equality").
type Endpoint struct {
	Host string
	Port int
	TLS  bool
}

func NewEndpoint(host string, port int, tls bool) Endpoint {
	return Endpoint{Host: host, Port: port, TLS: tls}
}

func (e Endpoint) String() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// URL renders the couchbase://host:port (or couchbases:// for TLS) form.
func (e Endpoint) URL() string {
	scheme := "couchbase"
	if e.TLS {
		scheme = "couchbases"
	}
	return fmt.Sprintf("%s://%s", scheme, e.String())
}

// HostEquals is the host-only equality predicate spec §3 calls out
// for pruning: "also supports a host-only equality predicate".
func (e Endpoint) HostEquals(other Endpoint) bool { return e.Host == other.Host }

// Digest is a stable hash of the endpoint, used by NodeRegistry as the
// shard key for its striped-lock map (SPEC_FULL domain stack: xxhash
// wired the same way the teacher's Snode.Digest() uses it - cheaply
// and once per endpoint).
func (e Endpoint) Digest() uint64 {
	return xxhash.ChecksumString64S(e.String(), mlcg32)
}

// mlcg32 mirrors the teacher's cmn.MLCG32 seed constant used to salt
// xxhash digests so they don't collide with unrelated hash domains
// that might share the same input strings.
const mlcg32 = 0x93d765dd
