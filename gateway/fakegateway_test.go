// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clawpal/clawpal/doctor"
	"github.com/clawpal/clawpal/lib/clock"
	"github.com/clawpal/clawpal/lib/testutil"
)

const testNonce = "nonce-1"

// recordedRequest is a request frame the fake gateway received after
// the handshake.
type recordedRequest struct {
	Role   string
	Method string
	Params json.RawMessage
}

// recordedConnect is a connect request and whether its signature
// verified.
type recordedConnect struct {
	Role     string
	Params   map[string]any
	Verified bool
}

// fakeGateway is an in-process gateway. It answers the challenge
// handshake, refuses unpaired nodes, and records every other request.
type fakeGateway struct {
	t      *testing.T
	server *httptest.Server

	connects chan recordedConnect
	requests chan recordedRequest

	mutex sync.Mutex
	conns map[string]*websocket.Conn

	// nodePaired controls whether node connects succeed.
	nodePaired bool
	// pending is returned by device.pair.list.
	pending []pairingRequest
	// silent lists methods that get no response.
	silent map[string]bool
	// duringNodeHandshake runs before the node connect is answered.
	duringNodeHandshake func(conn *websocket.Conn)
	// closeUnpairedWith, when set, closes the socket with this reason
	// instead of sending an error response.
	closeUnpairedWith string
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	gateway := &fakeGateway{
		t:          t,
		connects:   make(chan recordedConnect, 16),
		requests:   make(chan recordedRequest, 64),
		conns:      make(map[string]*websocket.Conn),
		nodePaired: true,
		silent:     make(map[string]bool),
	}
	gateway.server = httptest.NewServer(http.HandlerFunc(gateway.serve))
	t.Cleanup(gateway.server.Close)
	return gateway
}

func (gateway *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(gateway.server.URL, "http")
}

func (gateway *fakeGateway) serve(writer http.ResponseWriter, request *http.Request) {
	conn, err := websocket.Accept(writer, request, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := request.Context()

	if err := wsjson.Write(ctx, conn, map[string]any{
		"type": "event", "event": "connect.challenge", "payload": map[string]any{"nonce": testNonce},
	}); err != nil {
		return
	}

	role := ""
	for {
		var frame struct {
			Type   string          `json:"type"`
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}
		if frame.Method == "connect" {
			role = gateway.accept(ctx, conn, frame.ID, frame.Params)
			if role == "" {
				return
			}
			continue
		}
		gateway.requests <- recordedRequest{Role: role, Method: frame.Method, Params: frame.Params}
		gateway.mutex.Lock()
		silent := gateway.silent[frame.Method]
		gateway.mutex.Unlock()
		if silent {
			continue
		}
		wsjson.Write(ctx, conn, map[string]any{
			"type": "res", "id": frame.ID, "ok": true, "payload": gateway.payloadFor(frame.Method, frame.Params),
		})
	}
}

// accept answers a connect request and returns the role, or "" if the
// connection was refused.
func (gateway *fakeGateway) accept(ctx context.Context, conn *websocket.Conn, id string, raw json.RawMessage) string {
	var params map[string]any
	json.Unmarshal(raw, &params)
	role, _ := params["role"].(string)
	gateway.connects <- recordedConnect{Role: role, Params: params, Verified: verifyConnect(params)}

	gateway.mutex.Lock()
	paired := gateway.nodePaired
	closeReason := gateway.closeUnpairedWith
	hook := gateway.duringNodeHandshake
	gateway.mutex.Unlock()

	if role == "node" && !paired {
		if closeReason != "" {
			conn.Close(websocket.StatusPolicyViolation, closeReason)
			return ""
		}
		wsjson.Write(ctx, conn, map[string]any{
			"type": "res", "id": id, "ok": false,
			"error": map[string]any{"code": CodeNotPaired, "message": "device is not paired"},
		})
		return ""
	}
	if role == "node" && hook != nil {
		hook(conn)
	}
	gateway.mutex.Lock()
	gateway.conns[role] = conn
	gateway.mutex.Unlock()
	wsjson.Write(ctx, conn, map[string]any{
		"type": "res", "id": id, "ok": true, "payload": map[string]any{"type": "hello-ok"},
	})
	return role
}

func (gateway *fakeGateway) payloadFor(method string, raw json.RawMessage) any {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	switch method {
	case "device.pair.list":
		return map[string]any{"pending": gateway.pending}
	case "device.pair.approve":
		gateway.nodePaired = true
		return map[string]any{"ok": true}
	}
	return map[string]any{}
}

// verifyConnect checks the device signature of a connect request.
func verifyConnect(params map[string]any) bool {
	device, _ := params["device"].(map[string]any)
	client, _ := params["client"].(map[string]any)
	auth, _ := params["auth"].(map[string]any)
	publicKey, err := base64.RawURLEncoding.DecodeString(fmt.Sprint(device["publicKey"]))
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	signature, err := base64.RawURLEncoding.DecodeString(fmt.Sprint(device["signature"]))
	if err != nil {
		return false
	}
	var scopes []string
	for _, scope := range params["scopes"].([]any) {
		scopes = append(scopes, scope.(string))
	}
	signedAt, _ := device["signedAt"].(float64)
	nonce, _ := device["nonce"].(string)
	token, _ := auth["token"].(string)
	payload := SignaturePayload(
		fmt.Sprint(device["id"]), fmt.Sprint(client["id"]), fmt.Sprint(client["mode"]),
		fmt.Sprint(params["role"]), scopes, int64(signedAt), token, nonce,
	)
	return ed25519.Verify(publicKey, []byte(payload), signature)
}

func (gateway *fakeGateway) conn(role string) *websocket.Conn {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return gateway.conns[role]
}

func (gateway *fakeGateway) setPaired(paired bool) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.nodePaired = paired
}

func (gateway *fakeGateway) sendEvent(role, name string, payload any) {
	gateway.t.Helper()
	conn := gateway.conn(role)
	if conn == nil {
		gateway.t.Fatalf("no %s connection", role)
	}
	if err := wsjson.Write(context.Background(), conn, map[string]any{"type": "event", "event": name, "payload": payload}); err != nil {
		gateway.t.Fatalf("sending %s event: %v", name, err)
	}
}

func (gateway *fakeGateway) sendInvoke(id, shell string) {
	gateway.t.Helper()
	params, _ := json.Marshal(map[string]any{"command": []string{"sh", "-lc", shell}})
	gateway.sendEvent("node", "node.invoke.request", map[string]any{
		"id": id, "command": CommandSystemRun, "nodeId": "gw-node-7", "paramsJSON": string(params),
	})
}

// nextRequest returns the next recorded request with method.
func (gateway *fakeGateway) nextRequest(method string) recordedRequest {
	gateway.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case request := <-gateway.requests:
			if request.Method == method {
				return request
			}
		case <-deadline:
			gateway.t.Fatalf("no %s request within 5s", method)
		}
	}
}

// receivedResult is a node.invoke.result as the gateway sees it.
type receivedResult struct {
	ID      string          `json:"id"`
	NodeID  string          `json:"nodeId"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload"`
	Error   *Error          `json:"error"`
}

// nextInvokeResult decodes the next node.invoke.result.
func (gateway *fakeGateway) nextInvokeResult() receivedResult {
	gateway.t.Helper()
	request := gateway.nextRequest("node.invoke.result")
	var result receivedResult
	if err := json.Unmarshal(request.Params, &result); err != nil {
		gateway.t.Fatalf("decoding invoke result: %v", err)
	}
	return result
}

// scriptedExecutor returns a fixed result and records what it ran.
type scriptedExecutor struct {
	mutex    sync.Mutex
	commands []Command
	targets  []string
	result   Result
	err      error
}

func (executor *scriptedExecutor) Run(ctx context.Context, target string, command Command) (Result, error) {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	executor.commands = append(executor.commands, command)
	executor.targets = append(executor.targets, target)
	return executor.result, executor.err
}

func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return identity
}

func newTestClient(t *testing.T, configure ...func(*Config)) *Client {
	t.Helper()
	config := Config{
		Identity: newTestIdentity(t),
		Executor: &scriptedExecutor{result: Result{Stdout: "ok\n", Success: true}},
		NodeID:   "test-host",
	}
	for _, apply := range configure {
		apply(&config)
	}
	client := NewClient(config)
	t.Cleanup(func() { client.Close() })
	return client
}

func connectBoth(t *testing.T, client *Client, gateway *fakeGateway) {
	t.Helper()
	ctx := context.Background()
	credentials := doctor.Credentials{Token: "secret-token"}
	if err := client.ConnectOperator(ctx, gateway.url(), credentials); err != nil {
		t.Fatalf("ConnectOperator: %v", err)
	}
	if err := client.ConnectBridge(ctx, gateway.url(), credentials); err != nil {
		t.Fatalf("ConnectBridge: %v", err)
	}
}

func nextEvent(t *testing.T, client *Client) doctor.Event {
	t.Helper()
	return testutil.RequireReceive(t, client.Events(), 5*time.Second, "gateway client event")
}

func fakeClock() *clock.FakeClock {
	return clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}
