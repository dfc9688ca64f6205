// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/burrow-net/burrow/signaling"
)

// initChannelLabel names the throwaway channel an offerer creates so
// its SDP carries an application section. Nothing is sent on it and
// the answerer closes it on sight.
const initChannelLabel = "init"

// peer is the PeerConnection to one remote node.
type peer struct {
	name       string
	connection *webrtc.PeerConnection

	// outbound is true when this node sent the offer. Only outbound
	// peers receive answers.
	outbound bool
	answers  chan string

	established   chan struct{}
	establishOnce sync.Once

	abandoned   chan struct{}
	abandonOnce sync.Once
}

func newPeer(name string, connection *webrtc.PeerConnection, outbound bool) *peer {
	return &peer{
		name:        name,
		connection:  connection,
		outbound:    outbound,
		answers:     make(chan string, 1),
		established: make(chan struct{}),
		abandoned:   make(chan struct{}),
	}
}

func (p *peer) alive() bool {
	select {
	case <-p.abandoned:
		return false
	default:
	}
	switch p.connection.ICEConnectionState() {
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		return false
	}
	return true
}

func (p *peer) markEstablished() { p.establishOnce.Do(func() { close(p.established) }) }
func (p *peer) abandon()         { p.abandonOnce.Do(func() { close(p.abandoned) }) }

// track installs the callbacks every PeerConnection needs.
func (wt *WebRTCTransport) track(p *peer) {
	p.connection.OnDataChannel(func(dc *webrtc.DataChannel) {
		wt.handleInboundDataChannel(dc, p.name)
	})
	p.connection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.handleICEStateChange(p, state)
	})
}

// offer signals an outbound PeerConnection and applies the answer. The
// established channel closes later, from the ICE state callback.
func (wt *WebRTCTransport) offer(ctx context.Context, p *peer) error {
	pc := p.connection
	if _, err := pc.CreateDataChannel(initChannelLabel, nil); err != nil {
		return fmt.Errorf("creating %s data channel: %w", initChannelLabel, err)
	}

	description, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	if err := wt.gather(ctx, p, description); err != nil {
		return err
	}

	if err := wt.signaler.Send(ctx, p.name, Signal{Kind: signaling.KindOffer, SDP: pc.LocalDescription().SDP}); err != nil {
		return fmt.Errorf("sending SDP offer: %w", err)
	}
	wt.logger.Info("WebRTC offer sent", "peer", p.name)

	timer := time.NewTimer(answerTimeout)
	defer timer.Stop()

	var answerSDP string
	select {
	case answerSDP = <-p.answers:
	case <-p.abandoned:
		return errAbandoned
	case <-timer.C:
		return fmt.Errorf("no SDP answer from %s within %s", p.name, answerTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-wt.closed:
		return net.ErrClosed
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("applying SDP answer: %w", err)
	}
	wt.logger.Info("WebRTC answer applied", "peer", p.name)
	return nil
}

// answer responds to an offer on an inbound PeerConnection.
func (wt *WebRTCTransport) answer(ctx context.Context, p *peer, offerSDP string) error {
	pc := p.connection
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("applying SDP offer: %w", err)
	}

	description, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	if err := wt.gather(ctx, p, description); err != nil {
		return err
	}

	if err := wt.signaler.Send(ctx, p.name, Signal{Kind: signaling.KindAnswer, SDP: pc.LocalDescription().SDP}); err != nil {
		return fmt.Errorf("sending SDP answer: %w", err)
	}
	wt.logger.Info("WebRTC offer answered", "peer", p.name)
	return nil
}

// gather sets the local description and waits until every candidate
// is in it.
func (wt *WebRTCTransport) gather(ctx context.Context, p *peer, description webrtc.SessionDescription) error {
	complete := webrtc.GatheringCompletePromise(p.connection)
	if err := p.connection.SetLocalDescription(description); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}

	timer := time.NewTimer(iceGatherTimeout)
	defer timer.Stop()
	select {
	case <-complete:
		return nil
	case <-p.abandoned:
		return errAbandoned
	case <-timer.C:
		return fmt.Errorf("ICE gathering did not complete within %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleInboundDataChannel hands a channel the peer opened to Accept
// once it is open.
func (wt *WebRTCTransport) handleInboundDataChannel(dc *webrtc.DataChannel, peerName string) {
	label := dc.Label()
	if label == initChannelLabel {
		dc.OnOpen(func() { dc.Close() })
		return
	}

	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			wt.logger.Error("detaching inbound data channel failed", "peer", peerName, "label", label, "error", err)
			return
		}
		wt.logger.Debug("inbound data channel opened", "peer", peerName, "label", label)

		conn := NewDataChannelConn(raw, wt.node+"/"+label, peerName+"/"+label)
		select {
		case wt.inbound <- conn:
		case <-wt.closed:
			conn.Close()
		}
	})
}

func (wt *WebRTCTransport) handleICEStateChange(p *peer, state webrtc.ICEConnectionState) {
	wt.logger.Debug("ICE state change", "peer", p.name, "state", state.String())

	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		p.markEstablished()
		wt.logger.Info("WebRTC peer connected", "peer", p.name, "outbound", p.outbound)

	case webrtc.ICEConnectionStateFailed:
		// The next dial sees the failed state and signals afresh.
		wt.logger.Warn("WebRTC peer connection failed", "peer", p.name)

	case webrtc.ICEConnectionStateClosed:
		wt.mu.Lock()
		if current, ok := wt.peers[p.name]; ok && current == p {
			delete(wt.peers, p.name)
		}
		wt.mu.Unlock()
		p.abandon()
	}
}

// openDataChannel opens an ordered, reliable channel on an established
// PeerConnection.
func (wt *WebRTCTransport) openDataChannel(p *peer) (net.Conn, error) {
	label := fmt.Sprintf("tunnel-%d", wt.channelCounter.Add(1))

	ordered := true
	dc, err := p.connection.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating data channel %s: %w", label, err)
	}

	opened := make(chan struct{})
	var openOnce sync.Once
	dc.OnOpen(func() { openOnce.Do(func() { close(opened) }) })

	timer := time.NewTimer(channelOpenTimeout)
	defer timer.Stop()
	select {
	case <-opened:
	case <-timer.C:
		dc.Close()
		return nil, fmt.Errorf("data channel %s to %s did not open within %s", label, p.name, channelOpenTimeout)
	case <-p.abandoned:
		dc.Close()
		return nil, errAbandoned
	case <-wt.closed:
		dc.Close()
		return nil, net.ErrClosed
	}

	raw, err := dc.Detach()
	if err != nil {
		dc.Close()
		return nil, fmt.Errorf("detaching data channel %s: %w", label, err)
	}
	wt.logger.Debug("data channel opened", "peer", p.name, "label", label)
	return NewDataChannelConn(raw, wt.node+"/"+label, p.name+"/"+label), nil
}
