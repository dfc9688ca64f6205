// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
)

// AdvertisedAddresses returns the host:port pairs peers can use to reach
// a listener bound to listen. A specific host is returned as-is; an
// unspecified one ("", 0.0.0.0, ::) expands to every global unicast
// address of the machine's interfaces, IPv4 first.
func AdvertisedAddresses(listen string) ([]string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, err
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
			return []string{listen}, nil
		}
	}

	interfaceAddresses, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("listing interface addresses: %w", err)
	}
	return expandUnspecified(interfaceAddresses, port), nil
}

func expandUnspecified(interfaceAddresses []net.Addr, port string) []string {
	var v4, v6 []string
	for _, address := range interfaceAddresses {
		network, ok := address.(*net.IPNet)
		if !ok || !network.IP.IsGlobalUnicast() {
			continue
		}
		endpoint := net.JoinHostPort(network.IP.String(), port)
		if network.IP.To4() != nil {
			v4 = append(v4, endpoint)
		} else {
			v6 = append(v6, endpoint)
		}
	}
	return append(v4, v6...)
}
