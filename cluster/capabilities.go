/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

// NodeCapabilities is the fixed set of booleans a server advertises
// during the connect handshake (spec §3). Immutable once the node is
// connected - callers must not mutate a NodeHandle's Capabilities in
// place; refreshing capabilities replaces the whole value.
type NodeCapabilities struct {
	KV          bool
	Query       bool
	Search      bool
	Analytics   bool
	Views       bool
	Eventing    bool
	Collections bool
	PreserveTTL bool
}

// HasService reports whether the capability set advertises the given
// service (spec §4.2's fixed service-to-capability mapping). For Views
// this only reports the capability flag; the additional bucket
// ownership requirement is checked separately by NodeSelector.
func (c NodeCapabilities) HasService(service string) bool {
	switch service {
	case "query":
		return c.Query
	case "search":
		return c.Search
	case "analytics":
		return c.Analytics
	case "eventing":
		return c.Eventing
	case "views":
		return c.Views
	case "kv":
		return c.KV
	default:
		return false
	}
}

// NodeAdapter is the per-node slice of a cluster-map used to construct
// or refresh a live NodeHandle (spec §3 glossary: "Adapter").
type NodeAdapter struct {
	Endpoint         Endpoint
	AlternateEndpoint *Endpoint // present only when the server published one
	Capabilities     NodeCapabilities
	KVPort           int
	HTTPPort         int
}

// ResolvedEndpoint applies the network-resolution hint (spec §3:
// "internal vs alternate addresses") to pick which endpoint this
// adapter should bind to.
func (a NodeAdapter) ResolvedEndpoint(networkHint string) Endpoint {
	if networkHint == "alternate" && a.AlternateEndpoint != nil {
		return *a.AlternateEndpoint
	}
	return a.Endpoint
}
