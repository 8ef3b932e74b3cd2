// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawpal/clawpal/lib/clock"
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Gateway carries chat and invoke decisions. Required.
	Gateway Gateway

	// Approvals is the process-wide pattern cache. When nil the
	// controller creates its own, which then lives as long as the
	// controller.
	Approvals *ApprovalPatternCache

	// Archiver receives each session's transcript when it is reset or
	// replaced. Optional.
	Archiver Archiver

	// FullAuto approves every invocation without asking.
	FullAuto bool

	// Clock stamps messages. Defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	Session         Session
	StartedAt       time.Time
	Messages        []Message
	Pending         []PendingInvoke
	Streaming       string
	Connected       bool
	BridgeConnected bool
	Loading         bool
	FullAuto        bool

	// Error is the most recent surfaced failure, or "" when none.
	Error string
}

// Controller owns one diagnosis session at a time. All session state
// sits behind a single mutex; every inbound event and every mutation
// entry point applies its change atomically under it. Calls to the
// gateway are made with the mutex released.
type Controller struct {
	gateway   Gateway
	approvals *ApprovalPatternCache
	archiver  Archiver
	clock     clock.Clock
	logger    *slog.Logger

	// ctx bounds background forwards and archival. Close cancels it.
	ctx      context.Context
	cancel   context.CancelFunc
	forwards sync.WaitGroup

	changes chan struct{}

	mutex           sync.Mutex
	session         Session
	startedAt       time.Time
	archived        bool
	transcript      Transcript
	pending         *PendingInvokeTable
	turn            TurnAccumulator
	fullAuto        bool
	connected       bool
	bridgeConnected bool
	loading         bool
	lastError       error
}

// NewController returns an idle controller with no session.
func NewController(config ControllerConfig) (*Controller, error) {
	if config.Gateway == nil {
		return nil, errors.New("doctor: controller requires a gateway")
	}
	if config.Approvals == nil {
		config.Approvals = NewApprovalPatternCache()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gateway:   config.Gateway,
		approvals: config.Approvals,
		archiver:  config.Archiver,
		clock:     config.Clock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		changes:   make(chan struct{}, 1),
		pending:   NewPendingInvokeTable(),
		fullAuto:  config.FullAuto,
	}, nil
}

// Close cancels background forwards and waits for them to finish.
func (c *Controller) Close() {
	c.cancel()
	c.forwards.Wait()
}

// Changes returns a channel that receives a value after state changes.
// Notifications coalesce: one receive may stand for many changes, so
// receivers should take a fresh Snapshot each time.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Approvals returns the pattern cache the controller consults.
func (c *Controller) Approvals() *ApprovalPatternCache {
	return c.approvals
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	snapshot := Snapshot{
		Session:         c.session,
		StartedAt:       c.startedAt,
		Messages:        c.transcript.Messages(),
		Pending:         c.pending.List(),
		Streaming:       c.turn.Streaming(),
		Connected:       c.connected,
		BridgeConnected: c.bridgeConnected,
		Loading:         c.loading,
		FullAuto:        c.fullAuto,
	}
	if c.lastError != nil {
		snapshot.Error = c.lastError.Error()
	}
	return snapshot
}

// Err returns the most recent surfaced failure.
func (c *Controller) Err() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastError
}

// Run applies events until ctx is done or events is closed.
func (c *Controller) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			c.Handle(event)
		}
	}
}

// DiagnosisRequest starts a session.
type DiagnosisRequest struct {
	// Target is "local" or a remote host id.
	Target  string
	AgentID string

	// Context is the system description sent with the opening prompt.
	Context string
}

// NewSessionKey returns a fresh key for a diagnosis of target by
// agentID. Keys never repeat.
func NewSessionKey(agentID, target string) string {
	return fmt.Sprintf("agent:%s:diagnostic:%s:%s", agentID, target, uuid.NewString())
}

// StartDiagnosis begins a new session, replacing any current one, and
// sends the opening prompt. The operator link must already be
// connected. If the prompt cannot be sent the new session is left
// inactive.
func (c *Controller) StartDiagnosis(ctx context.Context, request DiagnosisRequest) (Session, error) {
	if request.Target == "" || request.AgentID == "" {
		return Session{}, fmt.Errorf("%w: target and agent id are required", ErrStartFailed)
	}

	c.mutex.Lock()
	if !c.connected {
		c.lastError = fmt.Errorf("%w: operator link is not connected", ErrStartFailed)
		err := c.lastError
		c.notifyLocked()
		c.mutex.Unlock()
		return Session{}, err
	}
	previous, hasPrevious := c.takeRecordLocked()
	c.clearLocked()
	session := Session{
		Key:     NewSessionKey(request.AgentID, request.Target),
		Target:  request.Target,
		AgentID: request.AgentID,
		Active:  true,
	}
	c.session = session
	c.startedAt = c.clock.Now()
	c.archived = false
	c.loading = true
	c.lastError = nil
	c.notifyLocked()
	c.mutex.Unlock()

	c.logger.Info("diagnosis started",
		"session_key", session.Key,
		"target", session.Target,
		"agent_id", session.AgentID,
	)
	if hasPrevious {
		c.archive(previous)
	}

	err := c.gateway.SendChat(ctx, ChatRequest{
		SessionKey: session.Key,
		AgentID:    session.AgentID,
		Text:       DiagnosisPrompt(session.Target, request.Context),
	})
	if err != nil {
		err = fmt.Errorf("%w: sending initial prompt: %w", ErrStartFailed, err)
		c.mutex.Lock()
		if c.session.Key == session.Key {
			c.session.Active = false
			c.loading = false
			c.lastError = err
			c.notifyLocked()
		}
		c.mutex.Unlock()
		c.logger.Warn("diagnosis start failed", "session_key", session.Key, "error", err)
		return Session{}, err
	}
	return session, nil
}

// SendMessage appends a user message and forwards it to the agent. On
// failure the message stays in the transcript so it can be retried.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mutex.Lock()
	if !c.session.Active {
		c.mutex.Unlock()
		return ErrNoSession
	}
	c.transcript.append(Message{Kind: MessageUser, Text: text}, c.clock.Now())
	c.turn.Interrupt()
	c.loading = true
	session := c.session
	c.notifyLocked()
	c.mutex.Unlock()

	err := c.gateway.SendChat(ctx, ChatRequest{SessionKey: session.Key, AgentID: session.AgentID, Text: text})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSendFailed, err)
		c.fail(session.Key, err, true)
		return err
	}
	return nil
}

// Approve approves a pending invocation and forwards the decision. It
// is a no-op when the session has ended, and for an id that is not
// pending or is already approved. A
// forward failure is returned and recorded, but the approval stands.
func (c *Controller) Approve(ctx context.Context, invokeID string) error {
	c.mutex.Lock()
	forward := c.approveLocked(invokeID, StatusApproved)
	c.notifyLocked()
	c.mutex.Unlock()
	if forward == nil {
		return nil
	}
	return forward(ctx)
}

// Reject removes a pending invocation and forwards the rejection. It is
// a no-op when the session has ended, for an id that is not pending,
// and for an invocation already approved: its execution was forwarded
// and its result is still expected. A forward failure is returned and
// recorded, but the rejection stands.
func (c *Controller) Reject(ctx context.Context, invokeID, reason string) error {
	c.mutex.Lock()
	entry, exists := c.pending.Get(invokeID)
	if !c.session.Active || !exists || entry.Status != StatusPending {
		c.mutex.Unlock()
		return nil
	}
	c.pending.Resolve(invokeID)
	c.transcript.setStatus(invokeID, StatusRejected, reason)
	session := c.session
	c.notifyLocked()
	c.mutex.Unlock()

	c.logger.Info("invoke rejected", "invoke_id", invokeID, "reason", reason)
	if err := c.gateway.RejectInvoke(ctx, invokeID, reason); err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrRejectionForwardFailed, invokeID, err)
		c.fail(session.Key, err, false)
		return err
	}
	return nil
}

// SetFullAuto switches full-auto mode. Turning it on does not approve
// invocations that are already waiting.
func (c *Controller) SetFullAuto(enabled bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.fullAuto = enabled
	c.notifyLocked()
}

// Stop ends the session but keeps the transcript visible. Later events
// for it are discarded.
func (c *Controller) Stop() {
	c.mutex.Lock()
	wasActive := c.session.Active
	key := c.session.Key
	c.session.Active = false
	c.loading = false
	record, hasRecord := c.takeRecordLocked()
	c.notifyLocked()
	c.mutex.Unlock()

	if wasActive {
		c.logger.Info("diagnosis stopped", "session_key", key)
	}
	if hasRecord {
		c.archive(record)
	}
}

// Reset ends the session and clears the transcript, the pending table,
// and the streaming state. The bridge is considered disconnected
// afterwards: the node must re-register so that invokes queued for the
// old session are flushed. Approved patterns survive. Reset is
// idempotent.
func (c *Controller) Reset() {
	c.mutex.Lock()
	record, hasRecord := c.takeRecordLocked()
	key := c.session.Key
	c.clearLocked()
	c.session = Session{}
	c.startedAt = time.Time{}
	c.bridgeConnected = false
	c.lastError = nil
	c.notifyLocked()
	c.mutex.Unlock()

	if key != "" {
		c.logger.Info("diagnosis reset", "session_key", key)
	}
	if hasRecord {
		c.archive(record)
	}
}

// Handle applies one inbound event.
func (c *Controller) Handle(event Event) {
	var followUp func()

	c.mutex.Lock()
	if !isLinkStatus(event) && !c.session.Active {
		c.mutex.Unlock()
		c.logger.Debug("event dropped, no active session", "event", fmt.Sprintf("%T", event))
		return
	}

	now := c.clock.Now()
	switch event := event.(type) {
	case OperatorConnected:
		c.connected = true
	case OperatorDisconnected:
		c.connected = false
		c.loading = false
		c.logger.Info("operator link dropped", "reason", event.Reason)
	case BridgeConnected:
		c.bridgeConnected = true
	case BridgeDisconnected:
		c.bridgeConnected = false
		c.logger.Info("node link dropped", "reason", event.Reason)

	case ChatDelta:
		if !c.ownsLocked(event.SessionKey) {
			c.mutex.Unlock()
			return
		}
		c.turn.Delta(&c.transcript, event.Text, now)
	case ChatFinal:
		if !c.ownsLocked(event.SessionKey) {
			c.mutex.Unlock()
			return
		}
		if c.turn.Final(&c.transcript, event.Text, now) {
			c.loading = false
		}
	case ChatError:
		if !c.ownsLocked(event.SessionKey) {
			c.mutex.Unlock()
			return
		}
		c.turn.Interrupt()
		c.loading = false
		c.lastError = fmt.Errorf("doctor: agent error: %s", event.Message)

	case InvokeRequested:
		followUp = c.onInvokeLocked(event.Invoke, now)
	case InvokeCompleted:
		followUp = c.onInvokeResultLocked(event, now)
	}
	c.notifyLocked()
	c.mutex.Unlock()

	if followUp != nil {
		c.forwards.Add(1)
		go func() {
			defer c.forwards.Done()
			followUp()
		}()
	}
}

// Wait blocks until background forwards started so far have finished.
func (c *Controller) Wait() {
	c.forwards.Wait()
}

// ownsLocked reports whether a chat event tagged with key belongs to
// the current session. Untagged events are accepted.
func (c *Controller) ownsLocked(key string) bool {
	if key == "" || key == c.session.Key {
		return true
	}
	c.logger.Debug("chat event dropped, foreign session", "session_key", key)
	return false
}

// onInvokeLocked admits a new invocation and decides whether it is
// approved without the operator. The returned function, if any,
// performs the forward.
func (c *Controller) onInvokeLocked(invoke Invoke, now time.Time) func() {
	if !c.pending.Insert(invoke, now) {
		c.logger.Debug("invoke redelivered", "invoke_id", invoke.ID)
		return nil
	}
	stored := invoke
	c.transcript.append(Message{Kind: MessageToolCall, Invoke: &stored, Status: StatusPending}, now)
	c.logger.Info("invoke received",
		"invoke_id", invoke.ID,
		"type", invoke.Type,
		"command", invoke.Command,
	)

	if result, early := c.pending.takeEarly(invoke.ID); early {
		// The result overtook the invoke. The node only runs approved
		// commands, so it was approved before this controller saw it.
		c.transcript.setStatus(invoke.ID, StatusApproved, "")
		c.completeLocked(invoke.ID, result, now)
		return nil
	}

	var forward func(context.Context) error
	switch {
	case c.fullAuto:
		forward = c.approveLocked(invoke.ID, StatusAuto)
	case invoke.Type == InvokeRead && c.approvals.Contains(PatternFor(invoke)):
		forward = c.approveLocked(invoke.ID, StatusAuto)
	}
	if forward == nil {
		return nil
	}
	return func() { _ = forward(c.ctx) }
}

// approveLocked is the single approval primitive. It records the
// pattern and the status and returns the forward to run after the
// mutex is released, or nil when there is nothing to approve.
func (c *Controller) approveLocked(invokeID string, status InvokeStatus) func(context.Context) error {
	if !c.session.Active {
		return nil
	}
	entry, exists := c.pending.Get(invokeID)
	if !exists || entry.Status == StatusApproved || entry.Status == StatusAuto {
		return nil
	}
	pattern := PatternFor(entry.Invoke)
	c.approvals.Add(pattern)
	entry.Status = status
	c.transcript.setStatus(invokeID, status, "")
	session := c.session
	c.logger.Info("invoke approved", "invoke_id", invokeID, "status", status, "pattern", pattern)

	request := ApprovalRequest{
		InvokeID:   invokeID,
		Target:     session.Target,
		SessionKey: session.Key,
		AgentID:    session.AgentID,
	}
	return func(ctx context.Context) error {
		if err := c.gateway.ApproveInvoke(ctx, request); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrApprovalForwardFailed, invokeID, err)
			c.fail(session.Key, err, false)
			return err
		}
		return nil
	}
}

// onInvokeResultLocked applies a result. Results for unknown ids are
// held until the invocation arrives; results for resolved ids are
// dropped.
func (c *Controller) onInvokeResultLocked(event InvokeCompleted, now time.Time) func() {
	entry, exists := c.pending.Get(event.InvokeID)
	if !exists {
		if !c.pending.Seen(event.InvokeID) && c.pending.holdEarly(event.InvokeID, event.Result) {
			c.logger.Debug("result held for unseen invoke", "invoke_id", event.InvokeID)
		} else {
			c.logger.Debug("result redelivered", "invoke_id", event.InvokeID)
		}
		return nil
	}
	if c.transcript.hasToolResult(event.InvokeID) {
		return nil
	}
	invoke := entry.Invoke
	c.completeLocked(event.InvokeID, event.Result, now)
	if !event.Expired {
		return nil
	}

	// The agent stopped waiting for this result; hand it over as chat.
	c.loading = true
	session := c.session
	text := expiredResultText(invoke, Message{Result: event.Result}.ResultText())
	return func() {
		err := c.gateway.SendChat(c.ctx, ChatRequest{SessionKey: session.Key, AgentID: session.AgentID, Text: text})
		if err != nil {
			c.fail(session.Key, fmt.Errorf("%w: relaying late result %s: %w", ErrSendFailed, invoke.ID, err), true)
		}
	}
}

func (c *Controller) completeLocked(invokeID string, result []byte, now time.Time) {
	c.pending.Resolve(invokeID)
	c.transcript.append(Message{Kind: MessageToolResult, InvokeID: invokeID, Result: result}, now)
	c.turn.Interrupt()
}

// fail records err as the last error if the session it belongs to is
// still current.
func (c *Controller) fail(sessionKey string, err error, clearLoading bool) {
	c.logger.Warn("forward failed", "session_key", sessionKey, "error", err)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session.Key != sessionKey {
		return
	}
	c.lastError = err
	if clearLoading {
		c.loading = false
	}
	c.notifyLocked()
}

// clearLocked empties the session-scoped state.
func (c *Controller) clearLocked() {
	c.session.Active = false
	c.transcript.clear()
	c.pending.Clear()
	c.turn.Reset()
	c.loading = false
}

// takeRecordLocked returns the current session for archival, once per
// session, when it has any messages.
func (c *Controller) takeRecordLocked() (SessionRecord, bool) {
	if c.archiver == nil || c.archived || c.session.Key == "" || c.transcript.Len() == 0 {
		return SessionRecord{}, false
	}
	c.archived = true
	session := c.session
	session.Active = false
	return SessionRecord{
		Session:   session,
		StartedAt: c.startedAt,
		EndedAt:   c.clock.Now(),
		Messages:  c.transcript.Messages(),
	}, true
}

func (c *Controller) archive(record SessionRecord) {
	if err := c.archiver.Archive(c.ctx, record); err != nil {
		c.logger.Error("archiving session failed", "session_key", record.Session.Key, "error", err)
		return
	}
	c.logger.Info("session archived", "session_key", record.Session.Key, "messages", len(record.Messages))
}

func (c *Controller) notifyLocked() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
