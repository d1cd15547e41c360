package eftl

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// backoffDelay returns the reconnect delay for 0-indexed attempt k: a
// jittered [0.5, 1.5)s delay for the first attempt, remembered as
// firstDelay, then exponential growth capped at maxDelay.
func backoffDelay(k int, firstDelay *time.Duration, maxDelay time.Duration) time.Duration {
	if k == 0 {
		d := time.Duration(500+rand.Intn(1000)) * time.Millisecond
		*firstDelay = d
		return d
	}
	// Compare in float64: for large k the product exceeds the
	// time.Duration range and would wrap if converted first.
	grown := float64(*firstDelay) * pow2(k)
	if grown > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(grown)
}

func pow2(k int) float64 {
	v := 1.0
	for i := 0; i < k; i++ {
		v *= 2
	}
	return v
}

// connectOnce dials ep, performs the LOGIN/WELCOME handshake, and
// returns the resulting transport and WELCOME frame. ctx bounds the
// whole attempt; callers combine handshake and login timeouts into it.
func connectOnce(ctx context.Context, ep *endpoint, opts ConnectOptions, idToken string) (*transport, *wireFrame, error) {
	tr, err := dialTransport(ctx, ep, opts)
	if err != nil {
		return nil, nil, err
	}

	login := &wireFrame{
		Op:             opLogin,
		Protocol:       protocolVersion,
		ClientType:     clientType,
		ClientVersion:  clientVersion,
		LoginOptions:   map[string]any{"_qos": "true", "_resume": "true"},
		MaxPendingAcks: opts.MaxPendingAcks,
	}
	if ep.user != "" {
		login.User = ep.user
		login.Password = ep.password
	} else {
		login.User = opts.User
		login.Password = opts.Password
	}
	clientID := ep.clientID
	if clientID == "" {
		clientID = opts.ClientID
	}
	login.ClientID = clientID
	if idToken != "" {
		login.IDToken = idToken
	}

	if err := tr.send(login); err != nil {
		tr.conn.Close()
		return nil, nil, fmt.Errorf("eftl: send LOGIN: %w", err)
	}

	type result struct {
		frame *wireFrame
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		f, err := tr.recv()
		resCh <- result{f, err}
	}()

	loginTimer := time.NewTimer(opts.LoginTimeout)
	defer loginTimer.Stop()

	select {
	case <-ctx.Done():
		tr.conn.Close()
		return nil, nil, fmt.Errorf("eftl: login aborted: %w", ctx.Err())
	case <-loginTimer.C:
		// No WELCOME within the login deadline: close cleanly and let
		// the caller try the next endpoint.
		_ = tr.closeNormal()
		return nil, nil, fmt.Errorf("eftl: login timed out after %v", opts.LoginTimeout)
	case res := <-resCh:
		if res.err != nil {
			tr.conn.Close()
			return nil, nil, fmt.Errorf("eftl: read WELCOME: %w", res.err)
		}
		if res.frame.Op != opWelcome {
			tr.conn.Close()
			return nil, nil, fmt.Errorf("eftl: expected WELCOME, got op %d", res.frame.Op)
		}
		return tr, res.frame, nil
	}
}
