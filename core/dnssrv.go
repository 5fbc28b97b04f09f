/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"context"
	"net"

	"github.com/couchbase/clustercore/cluster"
)

// defaultDnsResolver is the stdlib-backed default DnsResolver. DNS-SRV
// resolution is explicitly out of scope (spec §1: "a pure function
// from hostname to endpoint list") and its own failures are non-fatal
// by contract (spec §4.4 step 1), so net.LookupSRV needs no
// third-party client on top of it - see DESIGN.md.
type defaultDnsResolver struct {
	service string // e.g. "couchbase"
	proto   string // "tcp"
}

func NewDefaultDnsResolver() DnsResolver {
	return &defaultDnsResolver{service: "couchbase", proto: "tcp"}
}

func (d *defaultDnsResolver) ResolveSRV(ctx context.Context, name string) ([]cluster.Endpoint, error) {
	_, addrs, err := net.DefaultResolver.LookupSRV(ctx, d.service, d.proto, name)
	if err != nil {
		return nil, err
	}
	endpoints := make([]cluster.Endpoint, 0, len(addrs))
	for _, a := range addrs {
		endpoints = append(endpoints, cluster.NewEndpoint(a.Target, int(a.Port), false))
	}
	return endpoints, nil
}
