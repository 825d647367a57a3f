// Package shard implements the per-shard gateway session core: a single
// state machine that owns one logical connection, drives the
// identify/resume handshake, heartbeats, sequences outbound commands, and
// fans inbound dispatches out in wire order.
package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mjumbe/internal/frame"
	"github.com/jkaninda/mjumbe/internal/gateway"
	"github.com/jkaninda/mjumbe/internal/heartbeat"
	"github.com/jkaninda/mjumbe/internal/intents"
	"github.com/jkaninda/mjumbe/internal/observability"
	"github.com/jkaninda/mjumbe/internal/ratelimit"
)

// State is the connection lifecycle state. Owned exclusively by the session
// loop; observers read it atomically.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdentifying
	StateResuming
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const maxFrameSize = 1 << 24

// Config configures a single shard session.
type Config struct {
	ID      int
	Count   int
	Token   string
	Intents intents.Intents

	// GatewayURL is the wss endpoint from the out-of-scope discovery call.
	GatewayURL string
	// Version is the protocol version placed in the dial query. Default: 10.
	Version int
	// Codec is the payload format. Default: frame.JSON.
	Codec frame.Codec
	// Compression selects payload or transport decompression.
	Compression frame.Compression

	// Sink receives dispatched events. Required.
	Sink gateway.EventSink
	// Gate is the shared identify rate limit. Required for multi-shard use;
	// nil means unlimited.
	Gate *ratelimit.Gate

	// InitialPresence, when non-nil, seeds the durable presence before the
	// first identify.
	InitialPresence *gateway.PresenceUpdate
	// LargeThreshold is the identify large_threshold field. 0 = server default.
	LargeThreshold int

	HandshakeTimeout time.Duration // default 30s
	BackoffInitial   time.Duration // default 1s
	BackoffMax       time.Duration // default 60s
	// StableReset is how long a connection must hold Connected before the
	// reconnect backoff resets to its minimum. Default 60s.
	StableReset time.Duration

	Logger  *slog.Logger
	Metrics *observability.MetricsCollector
	Tracer  trace.Tracer
}

func (c *Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout > 0 {
		return c.HandshakeTimeout
	}
	return 30 * time.Second
}

func (c *Config) backoffInitial() time.Duration {
	if c.BackoffInitial > 0 {
		return c.BackoffInitial
	}
	return time.Second
}

func (c *Config) backoffMax() time.Duration {
	if c.BackoffMax > 0 {
		return c.BackoffMax
	}
	return 60 * time.Second
}

func (c *Config) stableReset() time.Duration {
	if c.StableReset > 0 {
		return c.StableReset
	}
	return 60 * time.Second
}

func (c *Config) version() int {
	if c.Version > 0 {
		return c.Version
	}
	return 10
}

// Shard is one gateway session state machine. It implements gateway.Shard.
type Shard struct {
	cfg        Config
	codec      frame.Codec
	log        *slog.Logger
	tracer     trace.Tracer
	shardLabel string

	state  atomic.Int32
	seq    atomic.Int64  // last fully-processed dispatch sequence; 0 = none
	userID atomic.Uint64 // learned from ready; 0 = unknown
	hb     atomic.Pointer[heartbeat.Monitor]

	writeMu sync.Mutex // serializes socket writes (loop + heartbeat goroutine)

	mu        sync.Mutex // guards session handle, presence, and lifecycle fields
	sessionID string
	resumeURL string
	presence  pendingPresence
	running   bool
	closing   bool
	closeCh   chan struct{}
	doneCh    chan struct{}
	fatal     error

	cmdCh chan outboundCommand
}

type outboundCommand struct {
	name  string
	frame *frame.Frame
}

// connResult describes why a connection attempt ended.
type connResult struct {
	class  frame.CloseClass
	reason string
	stable bool // held Connected long enough to reset backoff
	err    error
}

var _ gateway.Shard = (*Shard)(nil)

// New creates a shard session. It does not connect until Start.
func New(cfg Config) (*Shard, error) {
	if cfg.ID < 0 || cfg.Count <= 0 || cfg.ID >= cfg.Count {
		return nil, fmt.Errorf("shard id %d out of range for count %d", cfg.ID, cfg.Count)
	}
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	if cfg.GatewayURL == "" {
		return nil, errors.New("gateway url is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("event sink is required")
	}
	if cfg.Codec == nil {
		cfg.Codec = frame.JSON
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.Int("shard_id", cfg.ID))
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("")
	}

	s := &Shard{
		cfg:        cfg,
		codec:      cfg.Codec,
		log:        logger,
		tracer:     tracer,
		shardLabel: strconv.Itoa(cfg.ID),
		cmdCh:      make(chan outboundCommand, 16),
	}
	if cfg.InitialPresence != nil {
		s.presence.merge(*cfg.InitialPresence)
	}
	return s, nil
}

// ID is the 0-based shard index.
func (s *Shard) ID() int { return s.cfg.ID }

// ShardCount is the total number of shards in the application.
func (s *Shard) ShardCount() int { return s.cfg.Count }

// Intents returns the intent set negotiated at identify time.
func (s *Shard) Intents() intents.Intents { return s.cfg.Intents }

// State returns the current connection state.
func (s *Shard) State() State { return State(s.state.Load()) }

// IsAlive reports whether the session loop is running, including while it is
// mid-reconnect. It only goes false on explicit close or a fatal error.
func (s *Shard) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsConnected reports whether the session is in the Connected state.
func (s *Shard) IsConnected() bool { return s.State() == StateConnected }

// HeartbeatLatency is the most recent beat/ack round trip in seconds, NaN
// until the first ack of the current connection arrives.
func (s *Shard) HeartbeatLatency() float64 {
	if hb := s.hb.Load(); hb != nil {
		return hb.Latency()
	}
	return math.NaN()
}

// SessionInfo returns the session id (empty if none) and last dispatch
// sequence, for observability surfaces.
func (s *Shard) SessionInfo() (string, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.seq.Load()
}

// GetUserID returns the application user id from the ready payload.
func (s *Shard) GetUserID() (gateway.Snowflake, error) {
	if !s.IsAlive() {
		return 0, gateway.ErrNotConnected
	}
	uid := s.userID.Load()
	if uid == 0 {
		return 0, gateway.ErrNotConnected
	}
	return gateway.Snowflake(uid), nil
}

// Start launches the session loop and blocks until the first successful
// handshake or a fatal error. The loop keeps running in the background until
// Close or a fatal error; ctx only bounds the wait here.
func (s *Shard) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return gateway.ErrAlreadyStarted
	}
	s.running = true
	s.closing = false
	s.fatal = nil
	s.closeCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	done := s.doneCh
	s.mu.Unlock()

	ready := make(chan error, 1)
	go s.run(ready)

	select {
	case err := <-ready:
		if err != nil {
			<-done
			return err
		}
		return nil
	case <-ctx.Done():
		_ = s.Close(context.Background())
		return ctx.Err()
	}
}

// Close shuts the session down. Idempotent: calling it twice, or before
// Start, is a no-op. Safe from any goroutine; never deadlocks against Join.
func (s *Shard) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.closing {
		s.closing = true
		close(s.closeCh)
	}
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join blocks until the session loop terminates. Returns the fatal error if
// the loop died on one; nil after a clean close. Returns immediately when
// the shard was never started.
func (s *Shard) Join(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		err := s.fatal
		s.mu.Unlock()
		return err
	}
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.fatal
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the session loop: one independently scheduled unit of execution per
// shard. Everything that mutates the session handle funnels through here.
func (s *Shard) run(ready chan<- error) {
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()
	go func() {
		select {
		case <-s.closeChan():
			loopCancel()
		case <-loopCtx.Done():
		}
	}()

	fan := newFanout(s.cfg.ID, s.cfg.Sink, s.log, s.cfg.Metrics, s.shardLabel)
	go fan.run(loopCtx)

	defer func() {
		s.setState(StateDisconnected)
		s.hb.Store(nil)
		s.mu.Lock()
		s.running = false
		done := s.doneCh
		s.mu.Unlock()
		close(done)
	}()

	notify := func(err error) {
		select {
		case ready <- err:
		default:
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.backoffInitial()
	bo.MaxInterval = s.cfg.backoffMax()
	bo.Reset()

	for {
		if s.closeRequested() {
			notify(gateway.ErrNotConnected)
			return
		}

		s.setState(StateConnecting)
		res := s.connectOnce(loopCtx, fan, notify)
		s.hb.Store(nil)
		s.drainCommands()

		switch res.class {
		case frame.ClassNormal:
			// Unblocks a Start still waiting on the first handshake.
			notify(gateway.ErrNotConnected)
			s.log.Info("gateway connection closed")
			return
		case frame.ClassFatalAuth, frame.ClassFatal:
			s.mu.Lock()
			s.fatal = res.err
			s.mu.Unlock()
			s.log.Error("gateway session failed permanently",
				slog.String("error", res.err.Error()),
			)
			notify(res.err)
			return
		case frame.ClassReidentify:
			s.clearSession()
		case frame.ClassResumable:
			// session handle kept for resume
		}
		s.countReconnect(res.reason)

		if res.stable {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		errMsg := "connection ended"
		if res.err != nil {
			errMsg = res.err.Error()
		}
		s.log.Warn("gateway connection lost, reconnecting",
			slog.String("error", errMsg),
			slog.String("reason", res.reason),
			slog.String("backoff", wait.String()),
		)

		select {
		case <-s.closeChan():
			return
		case <-time.After(wait):
		}
	}
}

// connectOnce runs a single connection from dial to teardown and reports why
// it ended.
func (s *Shard) connectOnce(loopCtx context.Context, fan *fanout, notify func(error)) connResult {
	ctx, cancel := context.WithCancel(loopCtx)
	defer cancel()

	if s.cfg.Gate != nil {
		if err := s.cfg.Gate.Wait(ctx, s.cfg.ID); err != nil {
			return s.transient("identify_gate", err)
		}
	}

	s.mu.Lock()
	sessionID := s.sessionID
	resumeURL := s.resumeURL
	s.mu.Unlock()
	resuming := sessionID != ""

	ctx, span := s.tracer.Start(ctx, "shard.connect", trace.WithAttributes(
		attribute.Int("shard.id", s.cfg.ID),
		attribute.Bool("shard.resume", resuming),
	))
	defer span.End()

	base := s.cfg.GatewayURL
	if resuming && resumeURL != "" {
		base = resumeURL
	}
	dialURL := s.dialURL(base)
	dialStart := time.Now()

	// One deadline covers dial, hello, and the full handshake. A zombied
	// handshake otherwise hangs until the first heartbeat timeout.
	var handshook atomic.Bool
	var timedOut atomic.Bool
	hsTimer := time.AfterFunc(s.cfg.handshakeTimeout(), func() {
		if !handshook.Load() {
			timedOut.Store(true)
			cancel()
		}
	})
	defer hsTimer.Stop()

	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		s.countConnect("dial_error")
		span.RecordError(err)
		return s.transient("dial_error", fmt.Errorf("dialing gateway: %w", err))
	}
	conn.SetReadLimit(maxFrameSize)
	defer conn.CloseNow()

	readFrame, err := s.frameReader(ctx, conn)
	if err != nil {
		s.countConnect("stream_error")
		return s.transient("stream_error", err)
	}

	// The hello frame carries the heartbeat interval.
	hello, err := s.readHello(readFrame)
	if err != nil {
		s.countConnect("hello_error")
		span.RecordError(err)
		return s.classifyReadError(err)
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	if resuming {
		s.setState(StateResuming)
		err = s.sendResume(ctx, conn, sessionID)
	} else {
		s.setState(StateIdentifying)
		err = s.sendIdentify(ctx, conn)
	}
	if err != nil {
		s.countConnect("handshake_write_error")
		return s.transient("handshake_write_error", err)
	}

	var zombied atomic.Bool
	hb := heartbeat.NewMonitor(interval,
		func(hbCtx context.Context) error {
			return s.sendHeartbeat(hbCtx, conn)
		},
		func() {
			zombied.Store(true)
			cancel()
		},
		s.log,
	)
	s.hb.Store(hb)
	go hb.Run(ctx)

	// Read pump. Frames stay ordered: one reader, one channel, one consumer.
	frames := make(chan *frame.Frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := readFrame()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	var connectedAt time.Time
	stable := func() bool {
		return !connectedAt.IsZero() && time.Since(connectedAt) >= s.cfg.stableReset()
	}

	for {
		select {
		case <-ctx.Done():
			if s.closeRequested() {
				s.setState(StateClosing)
				s.writeMu.Lock()
				_ = conn.Close(websocket.StatusNormalClosure, "shard shutting down")
				s.writeMu.Unlock()
				return connResult{class: frame.ClassNormal, reason: "closed"}
			}
			if zombied.Load() {
				// Abandon the socket, not a graceful close: the remote end
				// already stopped responding.
				s.countConnect("zombied")
				return connResult{class: frame.ClassResumable, reason: "zombied", stable: stable(),
					err: errors.New("heartbeat ack overdue")}
			}
			if timedOut.Load() {
				s.countConnect("handshake_timeout")
				return connResult{class: frame.ClassResumable, reason: "handshake_timeout", stable: stable(),
					err: fmt.Errorf("handshake did not complete within %s", s.cfg.handshakeTimeout())}
			}
			return connResult{class: frame.ClassResumable, reason: "canceled", stable: stable(), err: ctx.Err()}

		case err := <-readErr:
			res := s.classifyReadError(err)
			res.stable = stable()
			return res

		case cmd := <-s.cmdCh:
			if err := s.writeFrame(ctx, conn, cmd.frame); err != nil {
				s.countDropped(cmd.name)
				res := s.classifyReadError(err)
				res.stable = stable()
				return res
			}

		case f := <-frames:
			s.countFrame(f.Op, "in")
			res, handled := s.handleFrame(ctx, conn, f, hb, fan, notify, &connectedAt, &handshook, hsTimer, dialStart, span)
			if handled {
				res.stable = stable()
				return res
			}
		}
	}
}

// handleFrame processes one inbound frame. The bool result reports whether
// the connection must tear down with the given result.
func (s *Shard) handleFrame(
	ctx context.Context,
	conn *websocket.Conn,
	f *frame.Frame,
	hb *heartbeat.Monitor,
	fan *fanout,
	notify func(error),
	connectedAt *time.Time,
	handshook *atomic.Bool,
	hsTimer *time.Timer,
	dialStart time.Time,
	span trace.Span,
) (connResult, bool) {
	switch f.Op {
	case frame.OpDispatch:
		// The sequence advances before the event is handed off; it is the
		// value replayed verbatim in resumes and heartbeats.
		if f.S > s.seq.Load() {
			s.seq.Store(f.S)
		}
		switch f.T {
		case "READY":
			var rd frame.Ready
			if err := s.codec.Unmarshal(f.D, &rd); err != nil {
				return connResult{class: frame.ClassResumable, reason: "decode_error",
					err: &frame.DecodeError{Format: s.codec.Name(), Err: err}}, true
			}
			s.userID.Store(uint64(rd.User.ID))
			s.mu.Lock()
			s.sessionID = rd.SessionID
			s.resumeURL = rd.ResumeGatewayURL
			s.mu.Unlock()
			s.becameConnected(connectedAt, handshook, hsTimer, dialStart, notify)
			span.AddEvent("ready")
			s.log.Info("gateway session ready",
				slog.String("session_id", rd.SessionID),
				slog.String("user_id", rd.User.ID.String()),
			)
		case "RESUMED":
			s.becameConnected(connectedAt, handshook, hsTimer, dialStart, notify)
			span.AddEvent("resumed")
			s.log.Info("gateway session resumed", slog.Int64("seq", s.seq.Load()))
		default:
			fan.enqueue(&gateway.InboundEvent{
				ShardID:  s.cfg.ID,
				Sequence: f.S,
				Kind:     f.T,
				Payload:  f.D,
			})
		}
		return connResult{}, false

	case frame.OpHeartbeatACK:
		hb.Ack()
		s.setLatency(hb.Latency())
		return connResult{}, false

	case frame.OpHeartbeat:
		// Server-requested immediate beat.
		if err := s.sendHeartbeat(ctx, conn); err != nil {
			return s.transient("heartbeat_write_error", err), true
		}
		return connResult{}, false

	case frame.OpReconnect:
		return connResult{class: frame.ClassResumable, reason: "reconnect_requested",
			err: errors.New("server requested reconnect")}, true

	case frame.OpInvalidSession:
		var resumable bool
		if len(f.D) > 0 {
			_ = s.codec.Unmarshal(f.D, &resumable)
		}
		if resumable {
			return connResult{class: frame.ClassResumable, reason: "invalid_session_resumable",
				err: errors.New("session invalidated (resumable)")}, true
		}
		return connResult{class: frame.ClassReidentify, reason: "invalid_session",
			err: errors.New("session invalidated")}, true

	default:
		s.log.Debug("unexpected opcode", slog.String("op", f.Op.String()))
		return connResult{}, false
	}
}

func (s *Shard) becameConnected(connectedAt *time.Time, handshook *atomic.Bool, hsTimer *time.Timer, dialStart time.Time, notify func(error)) {
	*connectedAt = time.Now()
	handshook.Store(true)
	hsTimer.Stop()
	s.setState(StateConnected)
	s.observeHandshake(time.Since(dialStart))
	s.countConnect("connected")
	notify(nil)
}

// readHello consumes the first frame of a connection.
func (s *Shard) readHello(readFrame func() (*frame.Frame, error)) (*frame.Hello, error) {
	f, err := readFrame()
	if err != nil {
		return nil, err
	}
	if f.Op != frame.OpHello {
		return nil, fmt.Errorf("handshake expected HELLO, got %s", f.Op)
	}
	var hello frame.Hello
	if err := s.codec.Unmarshal(f.D, &hello); err != nil {
		return nil, &frame.DecodeError{Format: s.codec.Name(), Err: err}
	}
	if hello.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("hello carried invalid heartbeat interval %d", hello.HeartbeatInterval)
	}
	s.countFrame(frame.OpHello, "in")
	return &hello, nil
}

// frameReader builds the per-connection read function, wiring in transport
// or payload decompression as configured.
func (s *Shard) frameReader(ctx context.Context, conn *websocket.Conn) (func() (*frame.Frame, error), error) {
	switch s.cfg.Compression {
	case frame.CompressionTransport:
		src := &messageSource{ctx: ctx, conn: conn}
		zr, err := frame.NewStreamReader(src)
		if err != nil {
			return nil, err
		}
		dec := s.codec.NewDecoder(zr)
		return dec.Decode, nil

	case frame.CompressionPayload:
		return func() (*frame.Frame, error) {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return nil, err
			}
			if typ == websocket.MessageBinary {
				if data, err = frame.InflatePayload(data); err != nil {
					return nil, err
				}
			}
			return s.codec.Decode(data)
		}, nil

	default:
		return func() (*frame.Frame, error) {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return nil, err
			}
			return s.codec.Decode(data)
		}, nil
	}
}

// messageSource concatenates consecutive websocket messages into one
// continuous byte stream for the transport zlib inflater.
type messageSource struct {
	ctx  context.Context
	conn *websocket.Conn
	cur  io.Reader
}

func (m *messageSource) Read(p []byte) (int, error) {
	for {
		if m.cur == nil {
			_, r, err := m.conn.Reader(m.ctx)
			if err != nil {
				return 0, err
			}
			m.cur = r
		}
		n, err := m.cur.Read(p)
		if errors.Is(err, io.EOF) {
			m.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *Shard) sendIdentify(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	presence := s.presence.payload()
	s.mu.Unlock()

	d, err := s.codec.Marshal(&frame.Identify{
		Token: s.cfg.Token,
		Properties: frame.ConnectionProperties{
			OS:      "linux",
			Browser: "mjumbe",
			Device:  "mjumbe",
		},
		Compress:       s.cfg.Compression == frame.CompressionPayload,
		LargeThreshold: s.cfg.LargeThreshold,
		Shard:          [2]int{s.cfg.ID, s.cfg.Count},
		Presence:       presence,
		Intents:        uint64(s.cfg.Intents),
	})
	if err != nil {
		return fmt.Errorf("encoding identify: %w", err)
	}
	return s.writeFrame(ctx, conn, &frame.Frame{Op: frame.OpIdentify, D: d})
}

func (s *Shard) sendResume(ctx context.Context, conn *websocket.Conn, sessionID string) error {
	d, err := s.codec.Marshal(&frame.Resume{
		Token:     s.cfg.Token,
		SessionID: sessionID,
		Seq:       s.seq.Load(),
	})
	if err != nil {
		return fmt.Errorf("encoding resume: %w", err)
	}
	return s.writeFrame(ctx, conn, &frame.Frame{Op: frame.OpResume, D: d})
}

func (s *Shard) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	var d any
	if seq := s.seq.Load(); seq > 0 {
		d = seq
	}
	payload, err := s.codec.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding heartbeat: %w", err)
	}
	return s.writeFrame(ctx, conn, &frame.Frame{Op: frame.OpHeartbeat, D: payload})
}

// writeFrame encodes and writes a single frame. Serialized because the
// heartbeat monitor writes from its own goroutine.
func (s *Shard) writeFrame(ctx context.Context, conn *websocket.Conn, f *frame.Frame) error {
	data, err := s.codec.Encode(f)
	if err != nil {
		return err
	}
	msgType := websocket.MessageText
	if s.codec.Name() != "json" {
		msgType = websocket.MessageBinary
	}
	s.writeMu.Lock()
	err = conn.Write(ctx, msgType, data)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Op, err)
	}
	s.countFrame(f.Op, "out")
	return nil
}

// classifyReadError turns a read-pump failure into a reconnect decision
// using the transport close code when one is present.
func (s *Shard) classifyReadError(err error) connResult {
	var decodeErr *frame.DecodeError
	if errors.As(err, &decodeErr) {
		if code := websocket.CloseStatus(err); code == -1 {
			return connResult{class: frame.ClassResumable, reason: "decode_error", err: err}
		}
	}

	code := websocket.CloseStatus(err)
	if code == -1 {
		return connResult{class: frame.ClassResumable, reason: "network_error", err: err}
	}

	class := frame.ClassifyClose(int(code))
	res := connResult{class: class, reason: class.String(), err: err}
	switch class {
	case frame.ClassFatalAuth:
		res.err = &gateway.AuthenticationError{CloseCode: int(code), Reason: "authentication failed"}
	case frame.ClassFatal:
		res.err = &gateway.AuthenticationError{CloseCode: int(code), Reason: "identify parameters rejected"}
	case frame.ClassNormal:
		// Server closed 1000/1001 without a close() on our side: rebuild the
		// session from scratch rather than stopping.
		if !s.closeRequested() {
			res.class = frame.ClassReidentify
			res.reason = "server_closed"
		}
	}
	return res
}

func (s *Shard) transient(reason string, err error) connResult {
	if s.closeRequested() {
		return connResult{class: frame.ClassNormal, reason: "closed"}
	}
	return connResult{class: frame.ClassResumable, reason: reason, err: err}
}

// clearSession drops the session handle so the next connection identifies
// fresh.
func (s *Shard) clearSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.resumeURL = ""
	s.mu.Unlock()
	s.seq.Store(0)
}

func (s *Shard) dialURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("v", strconv.Itoa(s.cfg.version()))
	q.Set("encoding", s.codec.Name())
	if s.cfg.Compression == frame.CompressionTransport {
		q.Set("compress", "zlib-stream")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Shard) setState(st State) {
	s.state.Store(int32(st))
	if m := s.cfg.Metrics; m != nil {
		m.ShardState.WithLabelValues(s.shardLabel).Set(float64(st))
	}
}

func (s *Shard) closeChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCh
}

func (s *Shard) closeRequested() bool {
	select {
	case <-s.closeChan():
		return true
	default:
		return false
	}
}

// drainCommands discards commands that were submitted while the connection
// was going down. Only the durable presence survives a reconnect.
func (s *Shard) drainCommands() {
	for {
		select {
		case cmd := <-s.cmdCh:
			s.countDropped(cmd.name)
		default:
			return
		}
	}
}

func (s *Shard) countFrame(op frame.Opcode, direction string) {
	if m := s.cfg.Metrics; m != nil {
		m.FramesTotal.WithLabelValues(s.shardLabel, op.String(), direction).Inc()
	}
}

func (s *Shard) countConnect(outcome string) {
	if m := s.cfg.Metrics; m != nil {
		m.ConnectsTotal.WithLabelValues(s.shardLabel, outcome).Inc()
	}
}

func (s *Shard) countReconnect(reason string) {
	if m := s.cfg.Metrics; m != nil {
		m.ReconnectsTotal.WithLabelValues(s.shardLabel, reason).Inc()
	}
}

func (s *Shard) countDropped(command string) {
	if m := s.cfg.Metrics; m != nil {
		m.CommandsDroppedTotal.WithLabelValues(s.shardLabel, command).Inc()
	}
}

func (s *Shard) setLatency(seconds float64) {
	if m := s.cfg.Metrics; m != nil && !math.IsNaN(seconds) {
		m.HeartbeatLatency.WithLabelValues(s.shardLabel).Set(seconds)
	}
}

func (s *Shard) observeHandshake(d time.Duration) {
	if m := s.cfg.Metrics; m != nil {
		m.HandshakeDuration.WithLabelValues(s.shardLabel).Observe(d.Seconds())
	}
}
