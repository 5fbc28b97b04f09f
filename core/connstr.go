/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/couchbase/clustercore/cluster"
	"github.com/couchbase/clustercore/cmn"
)

// ParsedConnStr is the result of parsing a connection string: either a
// literal endpoint list, or a DNS-SRV name to resolve (spec §4.4,
// step 1). Mirrors the reference couchbase client's parse-then-connect
// split (other_examples' dcp-pools.go: ParseURL before Connect).
type ParsedConnStr struct {
	DnsSRVName string // non-empty when the string names a DNS-SRV lookup
	Endpoints  []cluster.Endpoint
}

// ParseConnStr accepts "couchbase://host1,host2:12000" and
// "couchbases://host" (TLS). A single host with no dots and no port
// (e.g. "couchbase://mycluster") is returned as a DNS-SRV name for the
// DnsResolver collaborator instead of a literal endpoint.
func ParseConnStr(connStr string) (*ParsedConnStr, error) {
	if connStr == "" {
		return nil, &cmn.ErrInvalidConnectionString{ConnStr: connStr}
	}
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, &cmn.ErrInvalidConnectionString{ConnStr: connStr}
	}
	tls := u.Scheme == cmn.SchemeCouchbases
	if u.Scheme != cmn.SchemeCouchbase && u.Scheme != cmn.SchemeCouchbases {
		return nil, &cmn.ErrInvalidConnectionString{ConnStr: connStr}
	}

	hostport := u.Host
	if !strings.Contains(hostport, ",") && isDNSSRVStyle(hostport) {
		return &ParsedConnStr{DnsSRVName: hostport}, nil
	}

	defaultPort := cmn.DefaultKVPort
	if tls {
		defaultPort = cmn.DefaultKVPortTLS
	}

	var endpoints []cluster.Endpoint
	for _, hp := range strings.Split(hostport, ",") {
		if hp == "" {
			continue
		}
		host, portStr, found := strings.Cut(hp, ":")
		port := defaultPort
		if found {
			p, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, &cmn.ErrInvalidConnectionString{ConnStr: connStr}
			}
			port = p
		}
		endpoints = append(endpoints, cluster.NewEndpoint(host, port, tls))
	}
	if len(endpoints) == 0 {
		return nil, &cmn.ErrInvalidConnectionString{ConnStr: connStr}
	}
	return &ParsedConnStr{Endpoints: endpoints}, nil
}

// isDNSSRVStyle is a conservative heuristic: a bare single-label host
// with no dots is far more likely to be a DNS-SRV service name handed
// to a resolver that knows its own search domain than a literal,
// connectable hostname.
func isDNSSRVStyle(host string) bool {
	return host != "" && !strings.ContainsAny(host, ".:")
}
