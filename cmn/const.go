// Package cmn provides common low-level types, error kinds, and
// configuration shared across the cluster coordination core.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

// Bucket types (spec §3, Data Model: BucketConfig / NodeHandle).
const (
	Couchbase = "couchbase"
	Memcached = "memcached"
)

// Service identifiers (spec §4.2, NodeSelector service-to-capability mapping).
const (
	ServiceKV        = "kv"
	ServiceQuery     = "query"
	ServiceSearch    = "search"
	ServiceAnalytics = "analytics"
	ServiceViews     = "views"
	ServiceEventing  = "eventing"
)

// Network resolution hints (spec §3, BucketConfig's "network-resolution hint").
const (
	NetworkInternal  = "internal"
	NetworkAlternate = "alternate"
)

// Network schemes used when constructing an Endpoint's URL form.
const (
	SchemeCouchbase  = "couchbase"
	SchemeCouchbases = "couchbases"
)

const (
	DefaultKVPort      = 11210
	DefaultKVPortTLS   = 11207
	DefaultHTTPPort    = 8091
	DefaultHTTPPortTLS = 18091
)
