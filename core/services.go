// Package core implements the cluster coordination core: bootstrap,
// per-bucket attachment, topology reconciliation, and service-based
// node selection (spec §1/§2). It corresponds to the teacher's ais
// package (proxyrunner/daemon orchestration), generalized from a
// server-side gateway daemon to a client-side coordination library.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"

	"github.com/couchbase/clustercore/cluster"
)

type (
	// DnsResolver resolves a DNS-SRV name into literal endpoints
	// (spec §6). Resolution failure is non-fatal by contract: callers
	// fall through to literal endpoints rather than treating an error
	// as fatal.
	DnsResolver interface {
		ResolveSRV(ctx context.Context, name string) ([]cluster.Endpoint, error)
	}

	// ClusterNodeFactory is the only way nodes are born (spec §6):
	// ownership of the returned handle's connection resource transfers
	// to the caller, which is responsible for eventually disposing it.
	ClusterNodeFactory interface {
		CreateAndConnect(ctx context.Context, endpoint cluster.Endpoint, bucketType string, adapter *cluster.NodeAdapter) (*cluster.NodeHandle, error)
	}

	// BucketFactory constructs a fresh, not-yet-bootstrapped bucket
	// attachment (spec §6).
	BucketFactory interface {
		Create(name, bucketType string) *BucketAttachment
	}

	// BucketHandshake is the per-bucket protocol collaborator
	// BucketAttachment.attach drives: SELECT_BUCKET over an existing
	// KV connection, and the first per-bucket cluster-map fetch. The
	// wire protocol itself is out of scope (spec §1).
	BucketHandshake interface {
		SelectBucket(ctx context.Context, node *cluster.NodeHandle, bucket string) error
		FetchConfig(ctx context.Context, node *cluster.NodeHandle, bucket string) (*cluster.BucketConfig, error)
	}

	// Logger is the fire-and-forget collaborator spec §6 requires
	// never fail and never block the caller on a logging error.
	Logger interface {
		Infof(format string, args ...interface{})
		Warnf(format string, args ...interface{})
		Errorf(format string, args ...interface{})
	}

	// Redactor scrubs sensitive fields (credentials, document bodies)
	// before they reach a Logger or RequestTracer. Fire-and-forget,
	// same as Logger (spec §6).
	Redactor interface {
		Redact(s string) string
	}

	// RequestTracer is the optional tracing subsystem (spec §6);
	// listeners may be owned by the core and disposed with it.
	RequestTracer interface {
		Start(listener interface{}) (stop func(), err error)
	}

	// Services bundles every collaborator ClusterCore needs at
	// construction (spec §9, Design Notes: "pass a Services bundle
	// ... into the core at construction; avoid runtime reflection").
	Services struct {
		DNS       DnsResolver
		Nodes     ClusterNodeFactory
		Buckets   BucketFactory
		Handshake BucketHandshake
		Log       Logger
		Redact    Redactor
		Tracer    RequestTracer

		// OrphanTracer is the orphan-response reporter recognized
		// alongside Tracer (spec §6: OrphanTracingOptions) - a distinct
		// collaborator since threshold (slow-operation) and orphan
		// (no-response) tracing are independent subsystems in the real
		// Couchbase SDKs.
		OrphanTracer RequestTracer
	}
)
