// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clawpal/clawpal/doctor"
	"github.com/clawpal/clawpal/lib/clock"
	"github.com/clawpal/clawpal/lib/netutil"
)

// maxFrameSize bounds a single inbound frame. Invoke requests carry
// whole command lines and chat finals carry whole replies.
const maxFrameSize = 4 << 20

const protocolVersion = 3

// linkConfig parameterizes one WebSocket link.
type linkConfig struct {
	role           string
	clock          clock.Clock
	logger         *slog.Logger
	requestTimeout time.Duration

	// onEvent runs on the read goroutine for every event other than
	// connect.challenge, in arrival order.
	onEvent func(connection *link, name string, payload json.RawMessage)

	// onClose runs once when the link ends without close having been
	// called.
	onClose func(connection *link, err error)
}

// link is one WebSocket connection to the gateway with request/response
// correlation. Requests may be issued from any goroutine.
type link struct {
	config linkConfig
	conn   *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	challenge chan string
	done      chan struct{}
	closing   atomic.Bool

	mutex    sync.Mutex
	counter  uint64
	waiting  map[string]chan inboundFrame
	closed   bool
	closeErr error
}

// dialLink opens a WebSocket to endpoint and starts reading. The link is
// not authenticated until handshake succeeds.
func dialLink(ctx context.Context, endpoint string, config linkConfig) (*link, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: dialing %s link: %w", config.role, err)
	}
	conn.SetReadLimit(maxFrameSize)

	linkCtx, cancel := context.WithCancel(context.Background())
	connection := &link{
		config:    config,
		conn:      conn,
		ctx:       linkCtx,
		cancel:    cancel,
		challenge: make(chan string, 1),
		done:      make(chan struct{}),
		waiting:   make(map[string]chan inboundFrame),
	}
	go connection.readLoop()
	return connection, nil
}

func (connection *link) readLoop() {
	for {
		messageType, data, err := connection.conn.Read(connection.ctx)
		if err != nil {
			connection.shutdown(err)
			return
		}
		if messageType != websocket.MessageText {
			continue
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			connection.config.logger.Warn("malformed gateway frame", "role", connection.config.role, "error", err)
			continue
		}
		switch frame.Type {
		case frameResponse:
			connection.deliver(frame)
		case frameEvent:
			if frame.Event == "connect.challenge" {
				connection.offerChallenge(frame.Payload)
				continue
			}
			if connection.config.onEvent != nil {
				connection.config.onEvent(connection, frame.Event, frame.Payload)
			}
		}
	}
}

func (connection *link) offerChallenge(payload json.RawMessage) {
	var challenge struct {
		Nonce string `json:"nonce"`
	}
	if err := json.Unmarshal(payload, &challenge); err != nil || challenge.Nonce == "" {
		return
	}
	select {
	case connection.challenge <- challenge.Nonce:
	default:
	}
}

func (connection *link) deliver(frame inboundFrame) {
	connection.mutex.Lock()
	reply, exists := connection.waiting[frame.ID]
	delete(connection.waiting, frame.ID)
	connection.mutex.Unlock()
	if exists {
		reply <- frame
	}
}

// shutdown fails every waiting request and reports an unexpected end.
func (connection *link) shutdown(err error) {
	connection.mutex.Lock()
	if connection.closed {
		connection.mutex.Unlock()
		return
	}
	connection.closed = true
	connection.closeErr = err
	for id, reply := range connection.waiting {
		close(reply)
		delete(connection.waiting, id)
	}
	connection.mutex.Unlock()
	close(connection.done)
	connection.cancel()

	if connection.closing.Load() {
		return
	}
	if netutil.IsExpectedCloseError(err) {
		connection.config.logger.Info("gateway link closed", "role", connection.config.role, "reason", netutil.CloseReason(err))
	} else {
		connection.config.logger.Warn("gateway link failed", "role", connection.config.role, "error", err)
	}
	if connection.config.onClose != nil {
		connection.config.onClose(connection, err)
	}
}

// close ends the link without reporting it as a drop.
func (connection *link) close() {
	if connection.closing.Swap(true) {
		return
	}
	connection.conn.Close(websocket.StatusNormalClosure, "client closing")
	connection.cancel()
	<-connection.done
}

// err returns why the link ended.
func (connection *link) err() error {
	connection.mutex.Lock()
	defer connection.mutex.Unlock()
	if connection.closeErr != nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, netutil.CloseReason(connection.closeErr))
	}
	return ErrNotConnected
}

func (connection *link) nextID() string {
	connection.mutex.Lock()
	defer connection.mutex.Unlock()
	connection.counter++
	return "n" + strconv.FormatUint(connection.counter, 10)
}

// request sends method and waits for the matching response.
func (connection *link) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := connection.nextID()
	reply := make(chan inboundFrame, 1)

	connection.mutex.Lock()
	if connection.closed {
		connection.mutex.Unlock()
		return nil, fmt.Errorf("gateway: %s: %w", method, connection.err())
	}
	connection.waiting[id] = reply
	connection.mutex.Unlock()

	forget := func() {
		connection.mutex.Lock()
		delete(connection.waiting, id)
		connection.mutex.Unlock()
	}
	if err := wsjson.Write(ctx, connection.conn, requestFrame{Type: frameRequest, ID: id, Method: method, Params: params}); err != nil {
		forget()
		return nil, fmt.Errorf("gateway: sending %s: %w", method, err)
	}

	expired := make(chan struct{})
	timer := connection.config.clock.AfterFunc(connection.config.requestTimeout, func() { close(expired) })
	defer timer.Stop()

	select {
	case response, ok := <-reply:
		if !ok {
			return nil, fmt.Errorf("gateway: %s: %w", method, connection.err())
		}
		if !response.OK {
			if response.Error != nil {
				return nil, response.Error
			}
			return nil, &Error{Message: method + " failed"}
		}
		return response.Payload, nil
	case <-expired:
		forget()
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, method, connection.config.requestTimeout)
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// notify sends method without waiting for a response.
func (connection *link) notify(ctx context.Context, method string, params any) error {
	select {
	case <-connection.done:
		return fmt.Errorf("gateway: %s: %w", method, connection.err())
	default:
	}
	frame := requestFrame{Type: frameRequest, ID: connection.nextID(), Method: method, Params: params}
	if err := wsjson.Write(ctx, connection.conn, frame); err != nil {
		return fmt.Errorf("gateway: sending %s: %w", method, err)
	}
	return nil
}

// hello describes who is connecting.
type hello struct {
	role       string
	clientID   string
	clientMode string
	scopes     []string
	caps       []string
	commands   []string
	token      string
	identity   *Identity
	version    string
	instanceID string
}

// handshake waits for the challenge nonce, then authenticates. A
// gateway that sends no challenge within challengeTimeout is answered
// with an empty nonce.
func (connection *link) handshake(ctx context.Context, greeting hello, challengeTimeout time.Duration) (json.RawMessage, error) {
	expired := make(chan struct{})
	timer := connection.config.clock.AfterFunc(challengeTimeout, func() { close(expired) })
	var nonce string
	select {
	case nonce = <-connection.challenge:
	case <-expired:
		connection.config.logger.Debug("no connect challenge", "role", greeting.role)
	case <-connection.done:
		timer.Stop()
		return nil, connection.refusal(connection.err())
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	}
	timer.Stop()

	signedAt := connection.config.clock.Now().UnixMilli()
	signature := greeting.identity.Sign(SignaturePayload(
		greeting.identity.DeviceID, greeting.clientID, greeting.clientMode, greeting.role,
		greeting.scopes, signedAt, greeting.token, nonce,
	))
	device := map[string]any{
		"id":        greeting.identity.DeviceID,
		"publicKey": greeting.identity.PublicKey(),
		"signature": signature,
		"signedAt":  signedAt,
	}
	if nonce != "" {
		device["nonce"] = nonce
	}
	scopes := greeting.scopes
	if scopes == nil {
		scopes = []string{}
	}
	params := map[string]any{
		"minProtocol": protocolVersion,
		"maxProtocol": protocolVersion,
		"auth":        map[string]any{"token": greeting.token},
		"role":        greeting.role,
		"scopes":      scopes,
		"device":      device,
		"client": map[string]any{
			"id":          greeting.clientID,
			"displayName": "ClawPal",
			"platform":    runtime.GOOS,
			"mode":        greeting.clientMode,
			"version":     greeting.version,
			"instanceId":  greeting.instanceID,
		},
	}
	if greeting.caps != nil {
		params["caps"] = greeting.caps
	}
	if greeting.commands != nil {
		params["commands"] = greeting.commands
	}

	payload, err := connection.request(ctx, "connect", params)
	if err != nil {
		return nil, connection.refusal(err)
	}
	return payload, nil
}

// refusal marks a failed handshake as a pairing refusal when the
// gateway said so, in a response error or a close reason.
func (connection *link) refusal(err error) error {
	var gatewayError *Error
	if errors.As(err, &gatewayError) && isPairingRefusal(gatewayError.Code, gatewayError.Message) {
		return fmt.Errorf("%w: %w", doctor.ErrPairingRequired, err)
	}
	connection.mutex.Lock()
	closeErr := connection.closeErr
	connection.mutex.Unlock()
	var closeError websocket.CloseError
	if errors.As(closeErr, &closeError) && isPairingRefusal("", closeError.Reason) {
		return fmt.Errorf("%w: %w", doctor.ErrPairingRequired, closeErr)
	}
	return err
}
