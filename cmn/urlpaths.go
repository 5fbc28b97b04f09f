// Package cmn provides common low-level types, error kinds, and
// configuration shared across the cluster coordination core.
/*
 * Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "strings"

// URLPath is a pre-joined REST path, following the teacher's
// urlpath()/URLPathXxx convention (cmn/urlpaths.go) but naming the
// couchbase-style config-delivery endpoints this core's ConfigPump
// streams from, instead of the teacher's object-storage API surface.
type URLPath struct {
	L []string
	S string
}

func urlpath(words ...string) URLPath { return URLPath{L: words, S: JoinWords(words...)} }

// JoinWords joins path segments with "/" the way the teacher's
// (unretrieved) helper of the same name does for its own URLPath table.
func JoinWords(words ...string) string {
	return "/" + strings.Join(words, "/")
}

const (
	poolsDefault = "pools/default"
)

var (
	// URLPathPools is the root pools listing, analogous to the
	// reference couchbase client's "/pools" (other_examples'
	// dcp-pools.go: Client.Info via GetPool).
	URLPathPools = urlpath("pools")

	// URLPathBucketsStreaming is the per-bucket config-delivery
	// stream: "/pools/default/bs/<bucket>", named after the reference
	// client's streamingUri / poolsStreaming convention.
	URLPathBucketsStreaming = urlpath(poolsDefault, "bs")

	// URLPathNodeServicesStreaming is the bucket-less, global
	// node-services stream used by GCCCP bootstrap.
	URLPathNodeServicesStreaming = urlpath(poolsDefault, "nodeServicesStreaming")
)

// BucketStreamPath returns the streaming config endpoint for one bucket.
func BucketStreamPath(bucket string) string {
	return URLPathBucketsStreaming.S + "/" + bucket
}
