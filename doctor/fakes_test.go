// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"sync"
	"testing"

	"github.com/clawpal/clawpal/lib/clock"
)

// fakeGateway records outbound calls. Errors are returned as configured;
// approveGate, when set, holds ApproveInvoke until it is closed.
type fakeGateway struct {
	mutex       sync.Mutex
	chats       []ChatRequest
	approvals   []ApprovalRequest
	rejections  []string
	chatErr     error
	approveErr  error
	rejectErr   error
	approveGate chan struct{}
}

func (gateway *fakeGateway) SendChat(ctx context.Context, request ChatRequest) error {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.chats = append(gateway.chats, request)
	return gateway.chatErr
}

func (gateway *fakeGateway) ApproveInvoke(ctx context.Context, request ApprovalRequest) error {
	gateway.mutex.Lock()
	gate := gateway.approveGate
	gateway.mutex.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.approvals = append(gateway.approvals, request)
	return gateway.approveErr
}

func (gateway *fakeGateway) RejectInvoke(ctx context.Context, invokeID, reason string) error {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.rejections = append(gateway.rejections, invokeID)
	return gateway.rejectErr
}

func (gateway *fakeGateway) setChatErr(err error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.chatErr = err
}

func (gateway *fakeGateway) setApproveErr(err error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.approveErr = err
}

func (gateway *fakeGateway) chatCalls() []ChatRequest {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return append([]ChatRequest(nil), gateway.chats...)
}

func (gateway *fakeGateway) approvalCalls() []ApprovalRequest {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return append([]ApprovalRequest(nil), gateway.approvals...)
}

func (gateway *fakeGateway) rejectionCalls() []string {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return append([]string(nil), gateway.rejections...)
}

type fakeArchiver struct {
	mutex   sync.Mutex
	records []SessionRecord
}

func (archiver *fakeArchiver) Archive(ctx context.Context, record SessionRecord) error {
	archiver.mutex.Lock()
	defer archiver.mutex.Unlock()
	archiver.records = append(archiver.records, record)
	return nil
}

func (archiver *fakeArchiver) archived() []SessionRecord {
	archiver.mutex.Lock()
	defer archiver.mutex.Unlock()
	return append([]SessionRecord(nil), archiver.records...)
}

func newTestController(t *testing.T, gateway *fakeGateway, configure ...func(*ControllerConfig)) *Controller {
	t.Helper()
	config := ControllerConfig{
		Gateway: gateway,
		Clock:   clock.Fake(testEpoch),
	}
	for _, apply := range configure {
		apply(&config)
	}
	controller, err := NewController(config)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(controller.Close)
	return controller
}

// startSession connects both links and starts a diagnosis of "local".
func startSession(t *testing.T, controller *Controller) Session {
	t.Helper()
	controller.Handle(OperatorConnected{})
	controller.Handle(BridgeConnected{})
	session, err := controller.StartDiagnosis(context.Background(), DiagnosisRequest{
		Target:  "local",
		AgentID: "main",
		Context: "hostname: test",
	})
	if err != nil {
		t.Fatalf("StartDiagnosis: %v", err)
	}
	return session
}

func readInvoke(id, path string) Invoke {
	return Invoke{ID: id, Type: InvokeRead, Command: "cmd", Args: map[string]any{"path": path}}
}

func writeInvoke(id, shell string) Invoke {
	return Invoke{ID: id, Type: InvokeWrite, Command: "system.run", Args: map[string]any{"command": shell}}
}

func countKind(messages []Message, kind MessageKind) int {
	count := 0
	for _, message := range messages {
		if message.Kind == kind {
			count++
		}
	}
	return count
}

// requirePendingMatchesTranscript checks that every in-flight invoke
// has a tool call with no result, and vice versa.
func requirePendingMatchesTranscript(t *testing.T, snapshot Snapshot) {
	t.Helper()
	results := make(map[string]bool)
	for _, message := range snapshot.Messages {
		if message.Kind == MessageToolResult {
			results[message.InvokeID] = true
		}
	}
	unresolved := 0
	for _, message := range snapshot.Messages {
		if message.Kind == MessageToolCall && message.Status != StatusRejected && !results[message.Invoke.ID] {
			unresolved++
		}
	}
	if unresolved != len(snapshot.Pending) {
		t.Fatalf("%d unresolved tool calls but %d pending invokes", unresolved, len(snapshot.Pending))
	}
}
