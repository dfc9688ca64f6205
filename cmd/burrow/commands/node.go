// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/forward"
	"github.com/burrow-net/burrow/lib/config"
	"github.com/burrow-net/burrow/lib/identity"
	"github.com/burrow-net/burrow/signaling"
	"github.com/burrow-net/burrow/transport"
)

// brokerConnectTimeout bounds the wait for the first broker connection
// in short-lived commands.
const brokerConnectTimeout = 10 * time.Second

// node is the configuration and identity every peer-facing command
// works from.
type node struct {
	config   *config.Config
	identity *identity.Identity
	logger   *slog.Logger
}

func loadNode(common *cli.Common, logger *slog.Logger) (*node, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	id, err := loadIdentity(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &node{config: cfg, identity: id, logger: logger}, nil
}

// loadIdentity loads the node's certificate, generating it on first
// use when tls.generate is set, and attaches the CA pool if one is
// configured.
func loadIdentity(cfg *config.Config, logger *slog.Logger) (*identity.Identity, error) {
	certificate, key := cfg.CertificatePaths()

	var id *identity.Identity
	if cfg.TLS.Generate {
		if err := cfg.EnsureStateDir(); err != nil {
			return nil, cli.Internal("%w", err)
		}
		loaded, generated, err := identity.LoadOrGenerate(cfg.Node.Name, certificate, key)
		if err != nil {
			return nil, cli.Internal("node identity: %w", err)
		}
		if generated {
			logger.Info("generated node identity", "node_id", loaded.ID, "certificate", certificate)
		}
		id = loaded
	} else {
		loaded, err := identity.Load(certificate, key)
		if err != nil {
			return nil, cli.NotFound("node identity: %w", err)
		}
		id = loaded
	}

	if cfg.TLS.CA != "" {
		pool, err := identity.LoadCA(cfg.TLS.CA)
		if err != nil {
			return nil, cli.NotFound("%w", err)
		}
		id.CA = pool
	}
	return id, nil
}

// startBroker starts a signaling client that runs until ctx ends. It
// does not wait for the connection.
func (n *node) startBroker(ctx context.Context) (*signaling.Client, error) {
	if n.config.Signaling.Broker == "" {
		return nil, cli.Validation("signaling.broker is not configured")
	}
	client := signaling.NewClient(n.config.Signaling.Broker, n.config.Node.Name, n.logger)
	go client.Run(ctx)
	return client, nil
}

// connectBroker starts a signaling client and waits for its first
// connection.
func (n *node) connectBroker(ctx context.Context) (*signaling.Client, error) {
	client, err := n.startBroker(ctx)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(brokerConnectTimeout)
	defer timer.Stop()
	select {
	case <-client.Connected():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return client, nil
	case <-timer.C:
		return nil, cli.Transient("signaling broker %s unreachable after %s", n.config.Signaling.Broker, brokerConnectTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PeerParams are the flags of commands that open sessions to a peer.
// It is exported so flag binding can reach its fields when embedded.
type PeerParams struct {
	cli.Common
	Via  string        `flag:"via" desc:"how to reach the peer: auto, tcp or webrtc" default:"auto"`
	Pins []string      `flag:"pin" desc:"node ID the peer must present when given as host:port"`
	Wait time.Duration `flag:"wait" desc:"how long to wait for peer announcements" default:"2s"`
}

func (p *PeerParams) validate() error {
	switch p.Via {
	case "auto", "tcp", "webrtc":
		return nil
	default:
		return cli.Validation("--via must be auto, tcp or webrtc, got %q", p.Via)
	}
}

// resolvePeer turns target, a host:port or the name or node ID of an
// announced peer, into a forward.Peer. The returned release function
// frees the transports created for it and must be called once the
// sessions have ended.
func (n *node) resolvePeer(ctx context.Context, target string, params *PeerParams) (forward.Peer, func(), error) {
	if err := params.validate(); err != nil {
		return forward.Peer{}, nil, err
	}
	peer := forward.Peer{Address: target, Identity: n.identity}

	if _, _, err := net.SplitHostPort(target); err == nil && params.Via != "webrtc" {
		peer.Dialer = &transport.TCPDialer{}
		peer.Pins = params.Pins
		return peer, func() {}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	client, err := n.connectBroker(ctx)
	if err != nil {
		cancel()
		return forward.Peer{}, nil, err
	}
	directory := signaling.NewDirectory(n.config.PeerTTL())
	if err := signaling.Discover(ctx, client, directory, params.Wait); err != nil {
		cancel()
		return forward.Peer{}, nil, cli.Transient("discovering peers: %w", err)
	}
	announce, ok := directory.Lookup(target)
	if !ok {
		cancel()
		return forward.Peer{}, nil, cli.NotFound("no peer %q announced itself within %s", target, params.Wait)
	}
	peer.Pins = []string{announce.NodeID}

	routes, closeRoutes, err := n.routes(ctx, client, announce, params.Via)
	if err != nil {
		cancel()
		return forward.Peer{}, nil, err
	}
	peer.Dialer = &transport.RouteDialer{Routes: routes, Logger: n.logger}
	n.logger.Debug("resolved peer",
		"peer", announce.Name,
		"peer_id", announce.NodeID,
		"routes", len(routes),
	)
	return peer, func() {
		closeRoutes()
		cancel()
	}, nil
}

// routes lists the ways to reach an announced peer: its TCP addresses
// first, then WebRTC when both sides support it.
func (n *node) routes(ctx context.Context, bus signaling.Bus, announce signaling.Announce, via string) ([]transport.Route, func(), error) {
	var routes []transport.Route
	if via != "webrtc" {
		for _, address := range announce.Addresses {
			routes = append(routes, transport.Route{Dialer: &transport.TCPDialer{}, Address: address})
		}
	}

	release := func() {}
	if via != "tcp" && announce.WebRTC {
		// A name of our own keeps our offers and answers apart from a
		// node daemon running under the same configuration.
		self := n.config.Node.Name + "-" + xid.New().String()
		signaler := transport.NewBusSignaler(bus, self, n.logger)
		webrtc, err := transport.NewWebRTCTransport(ctx, signaler, self, transport.ICEConfigFromConfig(n.config.Transport), n.logger)
		if err != nil {
			return nil, nil, cli.Internal("starting WebRTC: %w", err)
		}
		routes = append(routes, transport.Route{Dialer: webrtc, Address: announce.Name})
		release = func() { webrtc.Close() }
	}

	if len(routes) == 0 {
		return nil, nil, cli.NotFound("peer %q offers no route over %s", announce.Name, via)
	}
	return routes, release, nil
}

// tunnelOptions returns the tunnel tuning for sessions this node opens.
func (n *node) tunnelOptions() forward.TunnelOptions {
	return forward.TunnelOptionsFromConfig(n.config)
}
