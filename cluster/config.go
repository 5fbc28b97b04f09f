/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BucketConfig is the versioned cluster-map snapshot (spec §3). Ketama
// ("memcached") vs vbucket locators pick the dispatch strategy that the
// out-of-scope KV pipeline uses; this core only carries the flag.
type BucketConfig struct {
	Bucket      string // "" for the global (GCCCP) config
	Revision    int64  // monotonically non-decreasing per source
	UUID        string
	Nodes       []NodeAdapter
	Locator     string // "ketama" | "vbucket"
	NetworkHint string // cmn.NetworkInternal | cmn.NetworkAlternate
	IsGlobal    bool   // true only when produced by GCCCP bootstrap
}

const (
	LocatorKetama  = "ketama"
	LocatorVBucket = "vbucket"
)

// NewBucketConfig stamps a fresh UUID the way spec §3 describes the
// cluster-map's UUID as "assigned once at creation time" - here, that
// creation is this constructor, not a later mutation.
func NewBucketConfig(bucket string, revision int64, nodes []NodeAdapter, locator, networkHint string, isGlobal bool) *BucketConfig {
	return &BucketConfig{
		Bucket:      bucket,
		Revision:    revision,
		UUID:        uuid.NewString(),
		Nodes:       nodes,
		Locator:     locator,
		NetworkHint: networkHint,
		IsGlobal:    isGlobal,
	}
}

func (c *BucketConfig) String() string {
	if c == nil {
		return "BucketConfig<nil>"
	}
	return fmt.Sprintf("BucketConfig(%s)[rev=%d, uuid=%s, nodes=%d, global=%t]",
		c.Bucket, c.Revision, c.UUID, len(c.Nodes), c.IsGlobal)
}

// HostSet returns the set of hosts the config's nodes resolve to under
// its own NetworkHint - used by TopologyReconciler's host-only prune
// (spec §4.7: "Pruning compares on host only (not port)").
func (c *BucketConfig) HostSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Nodes))
	for _, a := range c.Nodes {
		set[a.ResolvedEndpoint(c.NetworkHint).Host] = struct{}{}
	}
	return set
}

// wireBucketConfig is the JSON shape a ConfigPump source decodes off
// the wire (CCCP payload or HTTP streaming body) before it is turned
// into the in-process BucketConfig above. Kept separate from
// BucketConfig itself so wire-format churn never touches the type the
// rest of the core depends on.
type wireNodeAdapter struct {
	Hostname       string `json:"hostname"`
	AltHostname    string `json:"alternateHostname,omitempty"`
	KVPort         int    `json:"kv_port"`
	AltKVPort      int    `json:"alternate_kv_port,omitempty"`
	HTTPPort       int    `json:"mgmt_port"`
	AltHTTPPort    int    `json:"alternate_mgmt_port,omitempty"`
	TLS            bool   `json:"tls"`
	HasKV          bool   `json:"kv"`
	HasQuery       bool   `json:"n1ql"`
	HasSearch      bool   `json:"fts"`
	HasAnalytics   bool   `json:"cbas"`
	HasViews       bool   `json:"capi"`
	HasEventing    bool   `json:"eventing"`
	HasCollections bool   `json:"collections"`
	PreserveTTL    bool   `json:"preserveExpiry"`
}

type wireBucketConfig struct {
	Name        string            `json:"name"`
	Rev         int64             `json:"rev"`
	UUID        string            `json:"uuid"`
	NodeLocator string            `json:"nodeLocator"`
	Nodes       []wireNodeAdapter `json:"nodesExt"`
}

// DecodeWireConfig turns a raw JSON payload (from the HTTP-streaming
// or CCCP source) into a BucketConfig. isGlobal and networkHint are
// supplied by the caller since neither is reliably present on the
// wire for every server version.
func DecodeWireConfig(raw []byte, isGlobal bool, networkHint string) (*BucketConfig, error) {
	var w wireBucketConfig
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode cluster-map: %w", err)
	}
	nodes := make([]NodeAdapter, 0, len(w.Nodes))
	for _, wn := range w.Nodes {
		a := NodeAdapter{
			Endpoint: NewEndpoint(wn.Hostname, wn.KVPort, wn.TLS),
			Capabilities: NodeCapabilities{
				KV:          wn.HasKV,
				Query:       wn.HasQuery,
				Search:      wn.HasSearch,
				Analytics:   wn.HasAnalytics,
				Views:       wn.HasViews,
				Eventing:    wn.HasEventing,
				Collections: wn.HasCollections,
				PreserveTTL: wn.PreserveTTL,
			},
			KVPort:   wn.KVPort,
			HTTPPort: wn.HTTPPort,
		}
		if wn.AltHostname != "" {
			alt := NewEndpoint(wn.AltHostname, wn.AltKVPort, wn.TLS)
			a.AlternateEndpoint = &alt
		}
		nodes = append(nodes, a)
	}
	locator := LocatorVBucket
	if w.NodeLocator == LocatorKetama {
		locator = LocatorKetama
	}
	cfgUUID := w.UUID
	if cfgUUID == "" {
		cfgUUID = uuid.NewString()
	}
	return &BucketConfig{
		Bucket:      w.Name,
		Revision:    w.Rev,
		UUID:        cfgUUID,
		Nodes:       nodes,
		Locator:     locator,
		NetworkHint: networkHint,
		IsGlobal:    isGlobal,
	}, nil
}
