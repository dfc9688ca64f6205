// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/burrow-net/burrow/signaling"
)

var (
	_ Listener = (*WebRTCTransport)(nil)
	_ Dialer   = (*WebRTCTransport)(nil)
)

const (
	// iceGatherTimeout bounds candidate gathering before an SDP is sent.
	iceGatherTimeout = 15 * time.Second

	// answerTimeout bounds the wait for the answer to an offer.
	answerTimeout = 30 * time.Second

	// iceConnectTimeout bounds the wait for ICE to connect once both
	// descriptions are set.
	iceConnectTimeout = 30 * time.Second

	// channelOpenTimeout bounds the wait for a new data channel to open.
	channelOpenTimeout = 10 * time.Second

	// inboundQueue is how many opened inbound channels may wait for
	// Accept.
	inboundQueue = 64
)

// errAbandoned reports that a PeerConnection attempt was torn down
// while a dialer waited on it, either because signaling failed or
// because the peer's simultaneous offer won the tie break.
var errAbandoned = errors.New("peer connection attempt abandoned")

// WebRTCTransport carries peer connections over WebRTC data channels.
// It is both a Listener and a Dialer because the two directions share
// one PeerConnection per remote node: a dial opens a new data channel
// on the existing connection (signaling a new one first if needed),
// and Accept yields data channels the remote side opened.
//
// When two nodes dial each other at the same moment, both send offers.
// The node whose name sorts first is the canonical offerer: it ignores
// the other's offer, and the other abandons its own attempt and answers.
type WebRTCTransport struct {
	signaler Signaler
	node     string
	logger   *slog.Logger
	api      *webrtc.API

	// iceConfig may be replaced at runtime, e.g. when TURN credentials
	// rotate. Only new PeerConnections see the change.
	configMu  sync.RWMutex
	iceConfig ICEConfig

	mu    sync.Mutex
	peers map[string]*peer

	inbound chan net.Conn

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	handlers  sync.WaitGroup

	channelCounter atomic.Uint64
}

// NewWebRTCTransport starts a transport for node. It begins receiving
// signals immediately and runs until Close or until ctx is done.
func NewWebRTCTransport(ctx context.Context, signaler Signaler, node string, iceConfig ICEConfig, logger *slog.Logger) (*WebRTCTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Detached channels give stream access to data channels; loopback
	// candidates make same-host peers and tests work.
	settings := webrtc.SettingEngine{}
	settings.DetachDataChannels()
	settings.SetIncludeLoopbackCandidate(true)

	ctx, cancel := context.WithCancel(ctx)
	wt := &WebRTCTransport{
		signaler:  signaler,
		node:      node,
		logger:    logger.With("node", node),
		api:       webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		iceConfig: iceConfig,
		peers:     make(map[string]*peer),
		inbound:   make(chan net.Conn, inboundQueue),
		ctx:       ctx,
		cancel:    cancel,
		closed:    make(chan struct{}),
	}

	signals, err := signaler.Receive(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("receiving WebRTC signals for %s: %w", node, err)
	}
	wt.handlers.Add(1)
	go wt.dispatch(signals)
	context.AfterFunc(ctx, func() { wt.Close() })

	return wt, nil
}

// Accept returns the next data channel a peer opened to this node.
func (wt *WebRTCTransport) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-wt.inbound:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.closed:
		return nil, net.ErrClosed
	}
}

// Address returns the node name peers dial this transport by.
func (wt *WebRTCTransport) Address() string {
	return wt.node
}

// Close tears down every PeerConnection and stops signal handling.
// Data channels already returned are closed with their connection.
func (wt *WebRTCTransport) Close() error {
	wt.closeOnce.Do(func() {
		close(wt.closed)
		wt.cancel()

		wt.mu.Lock()
		peers := wt.peers
		wt.peers = make(map[string]*peer)
		wt.mu.Unlock()

		for _, p := range peers {
			p.abandon()
			p.connection.Close()
		}
		wt.handlers.Wait()

		for {
			select {
			case conn := <-wt.inbound:
				conn.Close()
			default:
				return
			}
		}
	})
	return nil
}

// UpdateICEConfig replaces the ICE servers used for new
// PeerConnections.
func (wt *WebRTCTransport) UpdateICEConfig(config ICEConfig) {
	wt.configMu.Lock()
	defer wt.configMu.Unlock()
	wt.iceConfig = config
}

// DialContext opens a data channel to the node named address,
// establishing a PeerConnection first if none is up.
func (wt *WebRTCTransport) DialContext(ctx context.Context, address string) (net.Conn, error) {
	if address == wt.node {
		return nil, fmt.Errorf("dialing %s: cannot dial self", address)
	}

	// One retry covers losing a simultaneous-offer race: the second
	// pass finds the connection the peer offered.
	for range 2 {
		select {
		case <-wt.closed:
			return nil, net.ErrClosed
		default:
		}

		p, err := wt.peerFor(ctx, address)
		if errors.Is(err, errAbandoned) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("establishing peer connection to %s: %w", address, err)
		}

		timer := time.NewTimer(iceConnectTimeout)
		select {
		case <-p.established:
			timer.Stop()
			return wt.openDataChannel(p)
		case <-p.abandoned:
			timer.Stop()
			continue
		case <-timer.C:
			return nil, fmt.Errorf("ICE connection to %s not established within %s", address, iceConnectTimeout)
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wt.closed:
			timer.Stop()
			return nil, net.ErrClosed
		}
	}
	return nil, fmt.Errorf("establishing peer connection to %s: %w", address, errAbandoned)
}

// dispatch routes incoming signals until the signal channel closes.
func (wt *WebRTCTransport) dispatch(signals <-chan Signal) {
	defer wt.handlers.Done()
	for signal := range signals {
		switch signal.Kind {
		case signaling.KindAnswer:
			wt.deliverAnswer(signal)
		case signaling.KindOffer:
			p := wt.acceptOffer(signal.From)
			if p == nil {
				continue
			}
			wt.handlers.Add(1)
			go func() {
				defer wt.handlers.Done()
				if err := wt.answer(wt.ctx, p, signal.SDP); err != nil {
					wt.forget(p)
					if wt.ctx.Err() == nil {
						wt.logger.Error("answering WebRTC offer failed", "peer", signal.From, "error", err)
					}
				}
			}()
		}
	}
}

// acceptOffer decides whether an offer from name should be answered
// and, if so, registers the inbound PeerConnection that will answer it.
func (wt *WebRTCTransport) acceptOffer(name string) *peer {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if existing, ok := wt.peers[name]; ok {
		if existing.alive() && existing.outbound && wt.node < name {
			wt.logger.Debug("ignoring offer from peer, local node is the canonical offerer", "peer", name)
			return nil
		}
		// Their offer wins the tie break, or the peer restarted and
		// our connection to it is stale.
		existing.abandon()
		existing.connection.Close()
		delete(wt.peers, name)
	}

	connection, err := wt.newPeerConnection()
	if err != nil {
		wt.logger.Error("creating PeerConnection for inbound offer failed", "peer", name, "error", err)
		return nil
	}
	p := newPeer(name, connection, false)
	wt.track(p)
	wt.peers[name] = p
	return p
}

func (wt *WebRTCTransport) deliverAnswer(signal Signal) {
	wt.mu.Lock()
	p, ok := wt.peers[signal.From]
	wt.mu.Unlock()

	if !ok || !p.outbound {
		wt.logger.Debug("ignoring unsolicited WebRTC answer", "peer", signal.From)
		return
	}
	select {
	case p.answers <- signal.SDP:
	default:
		wt.logger.Debug("ignoring duplicate WebRTC answer", "peer", signal.From)
	}
}

// peerFor returns a live PeerConnection to name, offering a new one if
// necessary. Concurrent callers share one attempt: the first registers
// the peer before signaling and the rest wait on it.
func (wt *WebRTCTransport) peerFor(ctx context.Context, name string) (*peer, error) {
	wt.mu.Lock()
	if p, ok := wt.peers[name]; ok {
		if p.alive() {
			wt.mu.Unlock()
			return p, nil
		}
		p.abandon()
		p.connection.Close()
		delete(wt.peers, name)
	}

	connection, err := wt.newPeerConnection()
	if err != nil {
		wt.mu.Unlock()
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	p := newPeer(name, connection, true)
	wt.track(p)
	wt.peers[name] = p
	wt.mu.Unlock()

	if err := wt.offer(ctx, p); err != nil {
		wt.forget(p)
		return nil, err
	}
	return p, nil
}

// forget removes p if it is still the registered peer for its node and
// closes its connection.
func (wt *WebRTCTransport) forget(p *peer) {
	wt.mu.Lock()
	if current, ok := wt.peers[p.name]; ok && current == p {
		delete(wt.peers, p.name)
	}
	wt.mu.Unlock()
	p.abandon()
	p.connection.Close()
}

func (wt *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	wt.configMu.RLock()
	config := webrtc.Configuration{ICEServers: wt.iceConfig.Servers}
	wt.configMu.RUnlock()
	return wt.api.NewPeerConnection(config)
}

// peerCount reports how many PeerConnections are registered.
func (wt *WebRTCTransport) peerCount() int {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	return len(wt.peers)
}
