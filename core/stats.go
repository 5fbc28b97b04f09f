/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import "github.com/prometheus/client_golang/prometheus"

// CoreStats is the optional metrics collector behind a narrow
// collaborator boundary (SPEC_FULL.md domain stack): the core updates
// these counters/gauges on its own; registering them with a process
// registry is left to the embedding application.
type CoreStats struct {
	BootstrapAttempts prometheus.Counter
	BootstrapFailures prometheus.Counter
	BucketAttaches    prometheus.Counter
	BucketAttachFails prometheus.Counter
	Reconciles        prometheus.Counter
	ConfigsDiscarded  prometheus.Counter
	NodesRegistered   prometheus.Gauge
}

func NewCoreStats() *CoreStats {
	return &CoreStats{
		BootstrapAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercore", Name: "bootstrap_attempts_total",
			Help: "Total number of global bootstrap attempts.",
		}),
		BootstrapFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercore", Name: "bootstrap_failures_total",
			Help: "Total number of global bootstrap attempts that exhausted all endpoints.",
		}),
		BucketAttaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercore", Name: "bucket_attaches_total",
			Help: "Total number of successful bucket attachments.",
		}),
		BucketAttachFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercore", Name: "bucket_attach_failures_total",
			Help: "Total number of bucket attach attempts that exhausted every endpoint/type combination.",
		}),
		Reconciles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercore", Name: "reconciles_total",
			Help: "Total number of applied topology reconciliations.",
		}),
		ConfigsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clustercore", Name: "configs_discarded_total",
			Help: "Total number of configs discarded for being at or behind the current revision.",
		}),
		NodesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clustercore", Name: "nodes_registered",
			Help: "Current number of node handles held in the registry.",
		}),
	}
}

// Collectors returns every metric so the embedding application can
// register them with its own prometheus.Registerer.
func (s *CoreStats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.BootstrapAttempts, s.BootstrapFailures,
		s.BucketAttaches, s.BucketAttachFails,
		s.Reconciles, s.ConfigsDiscarded, s.NodesRegistered,
	}
}
