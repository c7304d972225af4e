package ddc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 3
)

// Logger is the interface for structured logging within the DDC bridge.
// Matches the log/slog call shape so an slog.Logger adapts trivially.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// BridgeStats is a snapshot of bridge counters for health reporting and
// the metrics endpoint.
type BridgeStats struct {
	// TransportOpen reports whether the bridge is serving its transport.
	TransportOpen bool

	// TransportDriver names the transport driver.
	TransportDriver string

	// TransportOpenSince is when the bridge took ownership of the transport.
	TransportOpenSince time.Time

	// CommandsReceived counts commands consumed from MQTT.
	CommandsReceived uint64

	// VCPReads counts VCP feature reads performed.
	VCPReads uint64

	// VCPWrites counts VCP feature writes performed.
	VCPWrites uint64

	// ErrorsTotal counts errors encountered.
	ErrorsTotal uint64
}

// Bridge orchestrates bidirectional translation between DDC/CI and MQTT.
// It handles:
//   - Probing displays and announcing them with their capability reports
//   - Receiving commands from Core via MQTT and translating to VCP writes
//   - Polling display state and publishing changes to MQTT
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       *Config
	mqtt      MQTTClient
	transport Transport
	health    *HealthReporter

	// Probed monitors keyed by transport address
	monitors   map[string]*Monitor
	displayIDs map[string]string // address → core display ID, learned from commands
	monitorsMu sync.RWMutex

	// Current state per display, also the publish payload source
	stateCache   map[string]map[string]any
	stateCacheMu sync.Mutex

	// Counters
	statsMu          sync.Mutex
	commandsReceived uint64
	vcpReads         uint64
	vcpWrites        uint64
	errorsTotal      uint64
	running          bool
	startedAt        time.Time

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Transport is the monitor control channel. The caller owns it and
	// closes it after Stop().
	Transport Transport

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        opts.Config,
		mqtt:       opts.MQTTClient,
		transport:  opts.Transport,
		monitors:   make(map[string]*Monitor),
		displayIDs: make(map[string]string),
		stateCache: make(map[string]map[string]any),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	// Create health reporter; the bridge itself is the stats source
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   "1.0.0", // TODO: inject from build
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTTClient,
		Stats:     b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation.
// This probes the transport's displays, announces them, subscribes to
// MQTT topics, and starts health reporting and state polling.
func (b *Bridge) Start(ctx context.Context) error {
	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Probe displays. Probes run concurrently, so one probe timeout
	// covers the whole scan.
	scanCtx, cancel := context.WithTimeout(ctx, b.cfg.GetProbeTimeout())
	monitors, probeErr := ProbeAll(scanCtx, b.transport)
	cancel()
	if probeErr != nil {
		if len(monitors) == 0 {
			return fmt.Errorf("probe displays: %w", probeErr)
		}
		b.logError("some displays failed to probe", probeErr)
		b.countError()
	}

	b.monitorsMu.Lock()
	for _, m := range monitors {
		b.monitors[m.Address()] = m
	}
	b.monitorsMu.Unlock()

	b.statsMu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.statsMu.Unlock()

	// Announce probed displays with their capability summaries
	b.publishDiscovery()

	// Subscribe to command topics
	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Subscribe to request topics
	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	// Start health reporting
	b.health.Start(ctx)

	// Publish initial healthy status
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	// Start state polling
	if b.cfg.GetPollInterval() > 0 {
		b.wg.Add(1)
		go b.pollLoop()
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"displays", len(monitors))

	return nil
}

// Stop gracefully shuts down the bridge. The transport stays open; the
// caller that provided it closes it after Stop returns.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for pending operations
		b.wg.Wait()

		b.statsMu.Lock()
		b.running = false
		b.statsMu.Unlock()

		b.logInfo("bridge stopped")
	})
}

// Stats implements StatsSource.
func (b *Bridge) Stats() BridgeStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return BridgeStats{
		TransportOpen:      b.running,
		TransportDriver:    b.cfg.Transport.Driver,
		TransportOpenSince: b.startedAt,
		CommandsReceived:   b.commandsReceived,
		VCPReads:           b.vcpReads,
		VCPWrites:          b.vcpWrites,
		ErrorsTotal:        b.errorsTotal,
	}
}

// DisplayCount implements StatsSource.
func (b *Bridge) DisplayCount() int {
	b.monitorsMu.RLock()
	defer b.monitorsMu.RUnlock()
	return len(b.monitors)
}

// Monitors returns the probed monitors sorted by address.
func (b *Bridge) Monitors() []*Monitor {
	b.monitorsMu.RLock()
	monitors := make([]*Monitor, 0, len(b.monitors))
	for _, m := range b.monitors {
		monitors = append(monitors, m)
	}
	b.monitorsMu.RUnlock()

	sort.Slice(monitors, func(i, j int) bool {
		return monitors[i].Address() < monitors[j].Address()
	})
	return monitors
}

// MonitorByAddress returns the probed monitor at a transport address.
func (b *Bridge) MonitorByAddress(address string) (*Monitor, error) {
	b.monitorsMu.RLock()
	defer b.monitorsMu.RUnlock()
	m, ok := b.monitors[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDisplayNotFound, address)
	}
	return m, nil
}

// Capabilities returns the parsed capability report for a display.
func (b *Bridge) Capabilities(address string) (CapabilityReport, error) {
	m, err := b.MonitorByAddress(address)
	if err != nil {
		return CapabilityReport{}, err
	}
	return m.Report(), nil
}

// RawCapabilities returns the capabilities string for a display exactly
// as the monitor sent it.
func (b *Bridge) RawCapabilities(address string) (string, error) {
	m, err := b.MonitorByAddress(address)
	if err != nil {
		return "", err
	}
	return m.RawCapabilities(), nil
}

// RefreshCapabilities re-probes a display's capabilities and re-announces
// discovery so consumers see the updated feature set.
func (b *Bridge) RefreshCapabilities(ctx context.Context, address string) error {
	m, err := b.MonitorByAddress(address)
	if err != nil {
		return err
	}

	refreshCtx, cancel := context.WithTimeout(ctx, b.cfg.GetProbeTimeout())
	defer cancel()
	if err := m.Refresh(refreshCtx); err != nil {
		b.countError()
		return err
	}

	b.publishDiscovery()
	return nil
}

// publishDiscovery announces the probed displays and their capability
// summaries on the discovery topic.
func (b *Bridge) publishDiscovery() {
	msg := NewDiscoveryMessage(b.cfg.Bridge.ID, b.Monitors())

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal discovery", err)
		return
	}
	if err := b.mqtt.Publish(DiscoveryTopic(), payload, 1, true); err != nil {
		b.logError("failed to publish discovery", err)
	}
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	// Parse topic to determine message type
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	messageType := parts[1] // command, request, etc.

	switch messageType {
	case "command":
		address := ""
		if len(parts) > minTopicParts {
			address = DecodeTopicAddress(parts[len(parts)-1])
		}
		b.handleCommand(address, payload)
	case "request":
		b.handleRequest(payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", messageType))
	}
}

// handleCommand processes a command message from Core. The display is
// addressed by the last topic segment.
func (b *Bridge) handleCommand(address string, payload []byte) {
	// Parse command message
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		b.countError()
		return
	}

	b.statsMu.Lock()
	b.commandsReceived++
	b.statsMu.Unlock()

	b.logInfo("received command",
		"command_id", cmd.ID,
		"display_id", cmd.DisplayID,
		"command", cmd.Command,
		"address", address)

	m, err := b.MonitorByAddress(address)
	if err != nil {
		b.publishAckError(cmd, address, ErrCodeDisplayUnreachable,
			fmt.Sprintf("display %s not probed", address), 0)
		return
	}

	// Remember which core display ID this address serves, for state messages
	if cmd.DisplayID != "" {
		b.monitorsMu.Lock()
		b.displayIDs[address] = cmd.DisplayID
		b.monitorsMu.Unlock()
	}

	if err := b.executeCommand(cmd, m); err != nil {
		b.logError("command execution failed", err)
		// Error ack already sent by executeCommand
	}
}

// executeCommand translates and executes a command against a monitor.
func (b *Bridge) executeCommand(cmd CommandMessage, m *Monitor) error {
	// Derive timeout from bridge context so commands are cancelled on shutdown
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.GetRequestTimeout())
	defer cancel()

	switch cmd.Command {
	case "set_feature":
		return b.executeSetFeature(ctx, cmd, m)
	case "power_on":
		return b.executePower(ctx, cmd, m, uint16(0x01))
	case "power_off":
		// 0x04 is DPMS off; the display wakes on the next power_on write
		return b.executePower(ctx, cmd, m, uint16(0x04))
	case "restore_factory":
		return b.executeRestoreFactory(ctx, cmd, m)
	default:
		b.publishAckError(cmd, m.Address(), ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command), 0)
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

// executeSetFeature writes a VCP feature named by code or canonical name.
func (b *Bridge) executeSetFeature(ctx context.Context, cmd CommandMessage, m *Monitor) error {
	featureAny, ok := cmd.Parameters["feature"]
	if !ok {
		b.publishAckError(cmd, m.Address(), ErrCodeInvalidParameters,
			"missing 'feature' parameter", 0)
		return fmt.Errorf("missing feature parameter")
	}
	featureStr, ok := featureAny.(string)
	if !ok {
		b.publishAckError(cmd, m.Address(), ErrCodeInvalidParameters,
			"'feature' must be a string", 0)
		return fmt.Errorf("feature must be a string")
	}

	code, err := resolveFeatureCode(featureStr)
	if err != nil {
		b.publishAckError(cmd, m.Address(), ErrCodeInvalidParameters,
			fmt.Sprintf("unknown feature %q", featureStr), 0)
		return err
	}

	valueAny, ok := cmd.Parameters["value"]
	if !ok {
		b.publishAckError(cmd, m.Address(), ErrCodeInvalidParameters,
			"missing 'value' parameter", 0)
		return fmt.Errorf("missing value parameter")
	}
	valueFloat, ok := valueAny.(float64)
	if !ok {
		b.publishAckError(cmd, m.Address(), ErrCodeInvalidParameters,
			"'value' must be a number", 0)
		return fmt.Errorf("value must be a number")
	}
	if valueFloat < 0 || valueFloat > math.MaxUint16 {
		b.publishAckError(cmd, m.Address(), ErrCodeInvalidParameters,
			fmt.Sprintf("'value' must be 0-65535, got %.2f", valueFloat), 0)
		return fmt.Errorf("value out of range: %.2f", valueFloat)
	}
	value := uint16(valueFloat)

	// Publish accepted ack before writing
	b.publishAck(cmd, m.Address(), AckAccepted)

	if err := b.setAndConfirm(ctx, m, code, value); err != nil {
		b.publishAckError(cmd, m.Address(), ackCodeForError(err),
			fmt.Sprintf("set %s failed: %v", code, err), 0)
		return err
	}
	return nil
}

// executePower writes the power mode feature.
func (b *Bridge) executePower(ctx context.Context, cmd CommandMessage, m *Monitor, mode uint16) error {
	code := FormatCode(byte(VCPPowerMode))

	// Publish accepted ack before writing
	b.publishAck(cmd, m.Address(), AckAccepted)

	if err := b.setAndConfirm(ctx, m, code, mode); err != nil {
		b.publishAckError(cmd, m.Address(), ackCodeForError(err),
			fmt.Sprintf("power mode write failed: %v", err), 0)
		return err
	}
	return nil
}

// executeRestoreFactory asks the display to restore factory defaults and
// republishes the full polled state afterwards.
func (b *Bridge) executeRestoreFactory(ctx context.Context, cmd CommandMessage, m *Monitor) error {
	// Publish accepted ack before writing
	b.publishAck(cmd, m.Address(), AckAccepted)

	if err := m.RestoreFactory(ctx); err != nil {
		b.countError()
		b.publishAckError(cmd, m.Address(), ackCodeForError(err),
			fmt.Sprintf("restore failed: %v", err), 0)
		return err
	}
	b.statsMu.Lock()
	b.vcpWrites++
	b.statsMu.Unlock()

	// Every polled value may have moved
	b.pollDisplay(ctx, m, true)
	return nil
}

// setAndConfirm writes a feature, reads it back, and publishes the
// display's state with the confirmed value. Monitors clamp continuous
// writes, so the read-back value is authoritative.
func (b *Bridge) setAndConfirm(ctx context.Context, m *Monitor, code string, value uint16) error {
	if err := m.SetFeature(ctx, code, value); err != nil {
		b.countError()
		return err
	}
	b.statsMu.Lock()
	b.vcpWrites++
	b.statsMu.Unlock()

	confirmed := any(value)
	if v, err := m.GetFeature(ctx, code); err == nil {
		b.statsMu.Lock()
		b.vcpReads++
		b.statsMu.Unlock()
		confirmed = v.Current
	}

	if b.updateStateKey(m.Address(), StateKeyForCode(code), confirmed) {
		b.publishState(m.Address())
	}
	return nil
}

// resolveFeatureCode turns a feature reference into a canonical VCP code.
// Accepts canonical names and aliases ("brightness", "luminance") as well
// as hex codes ("10", "0x10" is not accepted, bare hex only).
func resolveFeatureCode(feature string) (string, error) {
	if code, ok := CodeForCommand(feature); ok {
		return code, nil
	}
	normalised := NormalizeCode(feature)
	if _, err := CodeToByte(normalised); err != nil {
		return "", err
	}
	return normalised, nil
}

// ackCodeForError maps command failures to wire error codes.
func ackCodeForError(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFeature):
		return ErrCodeUnsupported
	case errors.Is(err, ErrValueNotAllowed):
		return ErrCodeValueNotAllowed
	case errors.Is(err, ErrInvalidCode):
		return ErrCodeInvalidParameters
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, ErrDisplayNotFound), errors.Is(err, ErrTransportClosed):
		return ErrCodeDisplayUnreachable
	default:
		return ErrCodeProtocolError
	}
}

// publishAck publishes a command acknowledgment.
//
//nolint:unparam // status parameter will be used for AckQueued when queue support is added
func (b *Bridge) publishAck(cmd CommandMessage, address string, status AckStatus) {
	ack := NewAckMessage(cmd, status, address)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := AckTopic(address)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, address, code, message string, retries int) {
	ack := NewAckError(cmd, address, code, message, retries)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	topic := AckTopic(address)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

// handleRequest processes a request message from Core.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		b.countError()
		return
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	var resp ResponseMessage

	switch req.Action {
	case "read_state":
		resp = b.handleReadState(req)
	case "read_all":
		resp = b.handleReadAll(req)
	case "get_capabilities":
		resp = b.handleGetCapabilities(req)
	case "refresh_capabilities":
		resp = b.handleRefreshCapabilities(req)
	case "discover":
		b.publishDiscovery()
		resp = ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   true,
			Data:      map[string]any{"displays": b.DisplayCount()},
		}
	default:
		resp = ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error: &ResponseError{
				Code:    ErrCodeInvalidCommand,
				Message: fmt.Sprintf("unknown action: %s", req.Action),
			},
		}
	}

	// Publish response
	respPayload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}

	respTopic := ResponseTopic(req.RequestID)
	if err := b.mqtt.Publish(respTopic, respPayload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

// requestMonitor resolves the monitor a request targets, by address
// first and by previously learned display ID second.
func (b *Bridge) requestMonitor(req RequestMessage) (*Monitor, *ResponseError) {
	address := req.Address
	if address == "" && req.DisplayID != "" {
		b.monitorsMu.RLock()
		for addr, id := range b.displayIDs {
			if id == req.DisplayID {
				address = addr
				break
			}
		}
		b.monitorsMu.RUnlock()
	}
	if address == "" {
		return nil, &ResponseError{
			Code:    ErrCodeInvalidParameters,
			Message: "address or display_id is required",
		}
	}

	m, err := b.MonitorByAddress(address)
	if err != nil {
		return nil, &ResponseError{
			Code:    ErrCodeDisplayUnreachable,
			Message: fmt.Sprintf("display %s not probed", address),
		}
	}
	return m, nil
}

// handleReadState handles a read_state request. Unlike bus protocols
// where reads complete asynchronously, VCP reads are synchronous, so the
// fresh state rides back in the response as well as on the state topic.
func (b *Bridge) handleReadState(req RequestMessage) ResponseMessage {
	m, respErr := b.requestMonitor(req)
	if respErr != nil {
		return ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error:     respErr,
		}
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.GetRequestTimeout())
	defer cancel()
	b.pollDisplay(ctx, m, true)

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"address": m.Address(),
			"state":   b.stateSnapshot(m.Address()),
		},
	}
}

// handleReadAll handles a read_all request.
func (b *Bridge) handleReadAll(req RequestMessage) ResponseMessage {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.GetProbeTimeout())
	defer cancel()

	read := 0
	for _, m := range b.Monitors() {
		select {
		case <-ctx.Done():
			return ResponseMessage{
				RequestID: req.RequestID,
				Timestamp: time.Now().UTC(),
				Success:   false,
				Error: &ResponseError{
					Code:    ErrCodeTimeout,
					Message: "read_all timed out",
				},
			}
		default:
		}
		b.pollDisplay(ctx, m, true)
		read++
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"displays_read": read,
			"message":       "state published per display",
		},
	}
}

// handleGetCapabilities handles a get_capabilities request.
func (b *Bridge) handleGetCapabilities(req RequestMessage) ResponseMessage {
	m, respErr := b.requestMonitor(req)
	if respErr != nil {
		return ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error:     respErr,
		}
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"address": m.Address(),
			"raw":     m.RawCapabilities(),
			"report":  m.Report(),
		},
	}
}

// handleRefreshCapabilities handles a refresh_capabilities request.
func (b *Bridge) handleRefreshCapabilities(req RequestMessage) ResponseMessage {
	m, respErr := b.requestMonitor(req)
	if respErr != nil {
		return ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error:     respErr,
		}
	}

	if err := b.RefreshCapabilities(b.ctx, m.Address()); err != nil {
		return ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error: &ResponseError{
				Code:    ackCodeForError(err),
				Message: fmt.Sprintf("refresh failed: %v", err),
			},
		}
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"address": m.Address(),
			"report":  m.Report(),
		},
	}
}

// pollLoop periodically polls every display's configured VCP codes and
// publishes state when a value moves.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.GetPollInterval())
	defer ticker.Stop()

	// Seed retained state topics right away
	b.pollAll()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pollAll()
		}
	}
}

// pollAll polls every probed display once.
func (b *Bridge) pollAll() {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.GetPollInterval())
	defer cancel()

	for _, m := range b.Monitors() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		b.pollDisplay(ctx, m, false)
	}
}

// pollDisplay reads the configured VCP codes from one display and
// publishes its state when a value changed. When force is set the state
// is published even if nothing moved.
func (b *Bridge) pollDisplay(ctx context.Context, m *Monitor, force bool) {
	report := m.Report()
	changed := false

	for _, code := range b.cfg.PollCodes() {
		if !report.Supports(code) {
			continue
		}

		value, err := m.GetFeature(ctx, code)
		if err != nil {
			b.countError()
			b.logDebug("poll read failed",
				"address", m.Address(), "code", code, "error", err.Error())
			continue
		}
		b.statsMu.Lock()
		b.vcpReads++
		b.statsMu.Unlock()

		if b.updateStateKey(m.Address(), StateKeyForCode(code), value.Current) {
			changed = true
		}
	}

	if changed || force {
		b.publishState(m.Address())
	}
}

// updateStateKey stores a state value and reports whether it changed.
func (b *Bridge) updateStateKey(address, key string, value any) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	if b.stateCache[address] == nil {
		b.stateCache[address] = make(map[string]any)
	}
	if b.stateCache[address][key] == value {
		return false
	}
	b.stateCache[address][key] = value
	return true
}

// stateSnapshot copies the cached state for a display.
func (b *Bridge) stateSnapshot(address string) map[string]any {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	state := make(map[string]any, len(b.stateCache[address]))
	for k, v := range b.stateCache[address] {
		state[k] = v
	}
	return state
}

// publishState publishes the full cached state of a display, retained.
func (b *Bridge) publishState(address string) {
	state := b.stateSnapshot(address)
	if len(state) == 0 {
		return
	}

	b.monitorsMu.RLock()
	displayID := b.displayIDs[address]
	b.monitorsMu.RUnlock()
	if displayID == "" {
		// Core has not addressed this display yet; identify it by address
		displayID = address
	}

	msg := NewStateMessage(displayID, address, state)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := StateTopic(address)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// countError bumps the error counter.
func (b *Bridge) countError() {
	b.statsMu.Lock()
	b.errorsTotal++
	b.statsMu.Unlock()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Running         bool   `json:"running"`
	Status          string `json:"status"`
	Driver          string `json:"driver"`
	VCPReads        uint64 `json:"vcp_reads"`
	VCPWrites       uint64 `json:"vcp_writes"`
	CommandsHandled uint64 `json:"commands_handled"`
	Errors          uint64 `json:"errors"`
	DisplaysManaged int    `json:"displays_managed"`
}

// GetMetrics returns current bridge metrics for the API metrics endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	stats := b.Stats()

	status := "stopped"
	if stats.TransportOpen {
		status = "healthy"
	}

	return BridgeMetrics{
		Running:         stats.TransportOpen,
		Status:          status,
		Driver:          stats.TransportDriver,
		VCPReads:        stats.VCPReads,
		VCPWrites:       stats.VCPWrites,
		CommandsHandled: stats.CommandsReceived,
		Errors:          stats.ErrorsTotal,
		DisplaysManaged: b.DisplayCount(),
	}
}
