/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

// NodeSelector implements random-with-predicate service selection over
// the registry (spec §4.2). Key/value routing is handled outside this
// core, by the bucket's vbucket/ketama dispatch.
type NodeSelector struct {
	registry *cluster.NodeRegistry
}

func NewNodeSelector(registry *cluster.NodeRegistry) *NodeSelector {
	return &NodeSelector{registry: registry}
}

// SelectForService implements the fixed service-to-capability mapping
// of spec §4.2: Views additionally requires the owning node's bucket
// name to match bucketName.
func (s *NodeSelector) SelectForService(service string, bucketName string) (*cluster.NodeHandle, error) {
	pred := func(h *cluster.NodeHandle) bool {
		if h.IsDisposed() {
			return false
		}
		caps := h.Capabilities()
		if !caps.HasService(service) {
			return false
		}
		if service == cmn.ServiceViews {
			owner := h.Owner()
			if owner == nil || owner.OwnerName() != bucketName {
				return false
			}
		}
		return true
	}

	h, ok := s.registry.Random(pred)
	if ok {
		return h, nil
	}

	// Distinguish "no node anywhere advertises the service" from
	// "the service exists cluster-wide but not scoped to this bucket"
	// (spec §4.2: ServiceNotAvailable vs ServiceMissing(bucket)).
	anyAdvertises := s.registry.FindFirst(func(h *cluster.NodeHandle) bool {
		return !h.IsDisposed() && h.Capabilities().HasService(service)
	})
	if anyAdvertises == nil {
		return nil, &cmn.ErrServiceNotAvailable{Service: service}
	}
	return nil, &cmn.ErrServiceMissing{Service: service, Bucket: bucketName}
}
