// Package call runs one live voice call: a browser client bridged to
// an upstream realtime session, with tool dispatch, transcript capture,
// and persona handoff riding on the relayed stream.
//
// A call owns four goroutines: a client read loop, an upstream read
// loop, the single client-bound writer, and the event loop in Run that
// the other three feed. Tool executions and the handoff announcement
// run as supervised tasks that are cancelled and awaited at teardown.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cxbuddy/voicerelay/pkg/core"
	"github.com/cxbuddy/voicerelay/pkg/relay/auth"
	"github.com/cxbuddy/voicerelay/pkg/relay/handoff"
	"github.com/cxbuddy/voicerelay/pkg/relay/metrics"
	"github.com/cxbuddy/voicerelay/pkg/relay/persona"
	"github.com/cxbuddy/voicerelay/pkg/relay/protocol"
	"github.com/cxbuddy/voicerelay/pkg/relay/ticket"
	"github.com/cxbuddy/voicerelay/pkg/relay/tools"
)

var errBackpressure = errors.New("client outbound backpressure")

// Upstream is the realtime session the call relays against.
type Upstream interface {
	ReadMessage() (messageType int, data []byte, err error)
	Send(frame any) error
	SendSequence(frames ...any) error
	Forward(messageType int, data []byte) error
	Close() error
}

type Config struct {
	MaxClientFrameBytes int64
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	OutboundQueueSize   int
	HandoffDelay        time.Duration
	GreetingOnConnect   bool
}

type Dependencies struct {
	ClientConn *websocket.Conn
	Upstream   Upstream
	Logger     *slog.Logger
	Dispatcher *tools.Dispatcher
	Tools      *tools.Registry
	Personas   *persona.Registry
	Agent      persona.Persona
	Contexts   *handoff.ContextStore
	// Parked is the claimed handoff context on a reconnect, nil for a
	// fresh call.
	Parked    *handoff.Context
	Tickets   *ticket.Store
	TicketID  string
	Principal auth.Principal
	CallID    string
	Metrics   *metrics.Metrics
	Config    Config
}

type LiveCall struct {
	conn       *websocket.Conn
	up         Upstream
	logger     *slog.Logger
	dispatcher *tools.Dispatcher
	tools      *tools.Registry
	agent      persona.Persona
	parked     *handoff.Context
	tickets    *ticket.Store
	ticketID   string
	callID     string
	metrics    *metrics.Metrics
	cfg        Config

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	history     *historyBuffer
	coordinator *handoff.Coordinator

	wg sync.WaitGroup
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

const outboundPriorityQueueSize = 8

func New(deps Dependencies) (*LiveCall, error) {
	if deps.ClientConn == nil {
		return nil, fmt.Errorf("client connection is required")
	}
	if deps.Upstream == nil {
		return nil, fmt.Errorf("upstream session is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if deps.Personas == nil {
		return nil, fmt.Errorf("persona registry is required")
	}
	if deps.Agent.Name == "" {
		return nil, fmt.Errorf("agent persona is required")
	}
	if deps.Contexts == nil {
		return nil, fmt.Errorf("handoff context store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.HandoffDelay <= 0 {
		deps.Config.HandoffDelay = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(auth.WithPrincipal(context.Background(), deps.Principal))
	c := &LiveCall{
		conn:             deps.ClientConn,
		up:               deps.Upstream,
		logger:           deps.Logger,
		dispatcher:       deps.Dispatcher,
		tools:            deps.Tools,
		agent:            deps.Agent,
		parked:           deps.Parked,
		tickets:          deps.Tickets,
		ticketID:         deps.TicketID,
		callID:           deps.CallID,
		metrics:          deps.Metrics,
		cfg:              deps.Config,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		history:          newHistoryBuffer(),
	}
	c.coordinator = handoff.NewCoordinator(deps.Personas, deps.Contexts, deps.Config.HandoffDelay, c.history, c.sendHandoffFrame, deps.Logger)
	return c, nil
}

// Run drives the call until either side disconnects or the call is
// cancelled. It always tears down completely: tasks cancelled and
// awaited, ticket closed exactly once, upstream closed, client socket
// closed by the writer.
func (c *LiveCall) Run() error {
	defer c.teardown()

	if c.cfg.MaxClientFrameBytes > 0 {
		c.conn.SetReadLimit(c.cfg.MaxClientFrameBytes)
	}

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:           c.conn,
			ctx:          c.ctx,
			pingInterval: c.cfg.PingInterval,
			writeTimeout: c.cfg.WriteTimeout,
			priority:     c.outboundPriority,
			normal:       c.outboundNormal,
		}
		writerErrCh <- w.Run()
	}()

	// The session must be configured and the greeting queued before any
	// client frame is forwarded.
	if err := c.configureUpstream(); err != nil {
		c.logger.Error("session configuration failed", "call_id", c.callID, "error", err)
		_ = c.sendCallError("upstream_unavailable", "voice service is unavailable", true)
		return err
	}

	clientCh := make(chan inboundFrame, 64)
	upstreamCh := make(chan inboundFrame, 64)
	go c.clientReadLoop(clientCh)
	go c.upstreamReadLoop(upstreamCh)

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case err := <-writerErrCh:
			if err != nil {
				c.logger.Debug("client writer stopped", "call_id", c.callID, "error", err)
			}
			return nil
		case frame, ok := <-clientCh:
			if !ok {
				clientCh = nil
				continue
			}
			if frame.err != nil {
				c.logClientGone(frame.err)
				return nil
			}
			if err := c.handleClientFrame(frame); err != nil {
				c.logger.Warn("upstream write failed", "call_id", c.callID, "error", err)
				return nil
			}
		case frame, ok := <-upstreamCh:
			if !ok {
				upstreamCh = nil
				continue
			}
			if frame.err != nil {
				c.logUpstreamGone(frame.err)
				return nil
			}
			c.handleUpstreamFrame(frame)
		}
	}
}

// Cancel tears the call down from outside, typically on server drain.
func (c *LiveCall) Cancel() {
	c.cancel()
}

// Warn pushes a non-fatal relay error frame to the client.
func (c *LiveCall) Warn(code, message string) error {
	return c.sendCallError(code, message, false)
}

func (c *LiveCall) configureUpstream() error {
	instructions := c.agent.Instructions
	if c.parked != nil {
		instructions = handoff.InstructionsWithContext(instructions, *c.parked)
	}
	defs := c.tools.Definitions(c.agent.Tools)

	frames := []any{protocol.NewSessionUpdate(c.agent.Voice, instructions, defs)}
	if c.cfg.GreetingOnConnect {
		frames = append(frames, protocol.NewResponseCreate())
	}
	if err := c.up.SendSequence(frames...); err != nil {
		return err
	}

	c.logger.Info("session configured",
		"call_id", c.callID, "agent", c.agent.Name, "tools", len(defs), "resumed", c.parked != nil)
	if c.cfg.GreetingOnConnect {
		c.logger.Info("greeting triggered", "call_id", c.callID, "agent", c.agent.Name)
		c.logTranscript(core.SpeakerAgent, fmt.Sprintf("[%s greeting started]", c.agent.Title), nil)
	}
	return nil
}

func (c *LiveCall) clientReadLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-c.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *LiveCall) upstreamReadLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := c.up.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-c.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-c.ctx.Done():
			return
		}
	}
}

// handleClientFrame forwards one client frame upstream. Typed user text
// is mirrored into the transcript on the way through.
func (c *LiveCall) handleClientFrame(frame inboundFrame) error {
	if frame.messageType == websocket.BinaryMessage {
		c.metrics.RecordAudio("input", len(frame.data))
		return c.up.Forward(websocket.BinaryMessage, frame.data)
	}
	for _, text := range protocol.ExtractUserTexts(frame.data) {
		c.logTranscript(core.SpeakerUser, text, nil)
	}
	return c.up.Forward(frame.messageType, frame.data)
}

// handleUpstreamFrame classifies one upstream frame for side effects,
// then forwards the raw frame to the client unchanged.
func (c *LiveCall) handleUpstreamFrame(frame inboundFrame) {
	if frame.messageType == websocket.BinaryMessage {
		c.metrics.RecordAudio("output", len(frame.data))
		c.enqueueBinary(frame.data)
		return
	}

	switch ev := protocol.ClassifyUpstream(frame.data).(type) {
	case protocol.FunctionCallDone:
		c.logger.Info("tool call requested", "call_id", c.callID, "tool", ev.Name, "invocation", ev.CallID)
		c.logTranscript(core.SpeakerAgent, fmt.Sprintf("[Tool Call: %s]", ev.Name),
			[]core.ToolCallRecord{{Name: ev.Name, Arguments: ev.Arguments}})
		c.launchTool(core.ToolInvocation{InvocationID: ev.CallID, Name: ev.Name, Arguments: ev.Arguments})
	case protocol.AgentTranscriptDone:
		if ev.Transcript != "" {
			c.logTranscript(core.SpeakerAgent, ev.Transcript, nil)
			c.history.Append(core.SpeakerAgent, ev.Transcript)
		}
	case protocol.UserTranscriptDone:
		if ev.Transcript != "" {
			c.logTranscript(core.SpeakerUser, ev.Transcript, nil)
			c.history.Append(core.SpeakerUser, ev.Transcript)
		}
	case protocol.SpeechStarted:
		c.logger.Info("user started speaking", "call_id", c.callID)
	case protocol.UpstreamError:
		c.logger.Error("upstream error event", "call_id", c.callID, "details", string(ev.Error))
	case protocol.Lifecycle:
		c.logger.Info("upstream event", "call_id", c.callID, "type", ev.Type)
	}

	c.enqueueText(frame.data)
}

func (c *LiveCall) launchTool(inv core.ToolInvocation) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runTool(inv)
	}()
}

func (c *LiveCall) runTool(inv core.ToolInvocation) {
	result := c.dispatcher.Execute(c.ctx, inv)
	c.metrics.RecordToolCall(inv.Name, result.Err)
	if result.Err {
		c.logger.Warn("tool execution failed", "call_id", c.callID, "tool", inv.Name, "output", result.Output)
	} else {
		c.logger.Info("tool executed", "call_id", c.callID, "tool", inv.Name)
	}

	// Result and trigger go out as one unit so concurrent invocations
	// cannot interleave between them.
	err := c.up.SendSequence(
		protocol.NewFunctionCallOutput(result.InvocationID, result.Output),
		protocol.NewResponseCreate(),
	)
	if err != nil {
		c.logger.Warn("tool result not delivered", "call_id", c.callID, "tool", inv.Name, "error", err)
		return
	}

	if result.Handoff == nil {
		return
	}
	req := *result.Handoff
	if !c.coordinator.Begin(req) {
		return
	}
	c.metrics.RecordHandoff(c.agent.Name, req.TargetPersona)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.coordinator.Announce(c.ctx, req)
	}()
}

// logTranscript appends one interaction to the call's ticket. Sink
// failures are logged and never interrupt the relay.
func (c *LiveCall) logTranscript(speaker core.Speaker, message string, toolCalls []core.ToolCallRecord) {
	if c.tickets == nil || c.ticketID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.tickets.LogInteraction(ctx, c.ticketID, string(speaker), message, toolCalls); err != nil {
		c.metrics.RecordTranscriptFailure()
		c.logger.Error("transcript write failed", "call_id", c.callID, "ticket_id", c.ticketID, "error", err)
	}
}

func (c *LiveCall) sendHandoffFrame(frame protocol.AgentHandoff) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.enqueuePriority(outboundFrame{textPayload: payload})
}

func (c *LiveCall) sendCallError(code, message string, closeCall bool) error {
	frame := protocol.NewRelayError(protocol.ScopeCall, code, message)
	frame.Close = closeCall
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.enqueuePriority(outboundFrame{textPayload: payload})
}

// enqueueText queues a client-bound text frame. A full queue means the
// client has stopped reading relay traffic; the call ends rather than
// skipping protocol frames.
func (c *LiveCall) enqueueText(data []byte) {
	select {
	case c.outboundNormal <- outboundFrame{textPayload: data}:
	default:
		c.logger.Warn("client not keeping up, ending call", "call_id", c.callID)
		_ = c.sendCallError("backpressure", "client is not reading relay frames", true)
		c.cancel()
	}
}

// enqueueBinary queues client-bound audio. Audio tolerates loss, so a
// full queue drops the frame instead of ending the call.
func (c *LiveCall) enqueueBinary(data []byte) {
	select {
	case c.outboundNormal <- outboundFrame{binaryPayload: data}:
	default:
		c.logger.Debug("audio frame dropped", "call_id", c.callID, "bytes", len(data))
	}
}

func (c *LiveCall) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case c.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-c.outboundPriority:
		default:
		}
	}
	select {
	case c.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (c *LiveCall) logClientGone(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		c.logger.Info("client disconnected", "call_id", c.callID)
		return
	}
	c.logger.Warn("client read failed", "call_id", c.callID, "error", err)
}

func (c *LiveCall) logUpstreamGone(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		c.logger.Info("upstream session ended", "call_id", c.callID)
		return
	}
	c.logger.Warn("upstream read failed", "call_id", c.callID, "error", err)
}

func (c *LiveCall) teardown() {
	c.cancel()
	c.wg.Wait()
	c.closeTicket()
	_ = c.up.Close()
	c.logger.Info("call ended", "call_id", c.callID)
}

func (c *LiveCall) closeTicket() {
	if c.tickets == nil || c.ticketID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.tickets.CloseSession(ctx, c.ticketID, true); err != nil {
		c.logger.Error("ticket close failed", "call_id", c.callID, "ticket_id", c.ticketID, "error", err)
		return
	}
	c.logger.Info("ticket closed", "call_id", c.callID, "ticket_id", c.ticketID)
}
