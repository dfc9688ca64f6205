// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"net"
	"slices"
	"testing"
)

func TestAdvertisedAddressesSpecificHost(t *testing.T) {
	for _, listen := range []string{"192.0.2.10:7420", "node.example:7420", "[2001:db8::1]:7420"} {
		got, err := AdvertisedAddresses(listen)
		if err != nil {
			t.Fatalf("AdvertisedAddresses(%q): %v", listen, err)
		}
		if !slices.Equal(got, []string{listen}) {
			t.Errorf("AdvertisedAddresses(%q) = %v", listen, got)
		}
	}
}

func TestAdvertisedAddressesUnspecified(t *testing.T) {
	got, err := AdvertisedAddresses("0.0.0.0:7420")
	if err != nil {
		t.Fatalf("AdvertisedAddresses: %v", err)
	}
	for _, address := range got {
		host, port, err := net.SplitHostPort(address)
		if err != nil || port != "7420" {
			t.Errorf("advertised %q, want host:7420", address)
			continue
		}
		if ip := net.ParseIP(host); ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			t.Errorf("advertised non-routable address %q", address)
		}
	}
}

func TestExpandUnspecified(t *testing.T) {
	network := func(cidr string) net.Addr {
		ip, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			t.Fatalf("ParseCIDR(%q): %v", cidr, err)
		}
		ipNet.IP = ip
		return ipNet
	}
	addresses := []net.Addr{
		network("127.0.0.1/8"),
		network("2001:db8::5/64"),
		network("fe80::1/64"),
		network("10.1.2.3/24"),
	}
	got := expandUnspecified(addresses, "22")
	want := []string{"10.1.2.3:22", "[2001:db8::5]:22"}
	if !slices.Equal(got, want) {
		t.Errorf("expandUnspecified = %v, want %v", got, want)
	}
}

func TestAdvertisedAddressesInvalid(t *testing.T) {
	if _, err := AdvertisedAddresses("no-port"); err == nil {
		t.Error("AdvertisedAddresses accepted an address without a port")
	}
}
