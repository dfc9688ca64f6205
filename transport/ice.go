// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/burrow-net/burrow/lib/config"
)

// ICEConfig holds the ICE servers PeerConnections gather candidates
// against.
type ICEConfig struct {
	// Servers lists STUN and TURN servers. An empty list restricts
	// gathering to host candidates, which is enough on one LAN.
	Servers []webrtc.ICEServer
}

// ICEConfigFromConfig builds an ICEConfig from the transport section of
// the node configuration. STUN servers given as bare host:port get a
// "stun:" scheme.
func ICEConfigFromConfig(transport config.TransportConfig) ICEConfig {
	var servers []webrtc.ICEServer
	if len(transport.STUNServers) > 0 {
		urls := make([]string, 0, len(transport.STUNServers))
		for _, server := range transport.STUNServers {
			urls = append(urls, stunURL(server))
		}
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}
	for _, turn := range transport.TURNServers {
		if len(turn.URLs) == 0 {
			continue
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn.URLs,
			Username:   turn.Username,
			Credential: turn.Credential,
		})
	}
	return ICEConfig{Servers: servers}
}

func stunURL(server string) string {
	if strings.HasPrefix(server, "stun:") || strings.HasPrefix(server, "stuns:") {
		return server
	}
	return "stun:" + server
}
