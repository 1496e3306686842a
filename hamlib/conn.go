package hamlib

import (
	"errors"
	"math/rand"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

// State is the Connection's lifecycle state.
type State int

const (
	StateInitial State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind identifies which side of a wire exchange a DebugEvent
// describes.
type EventKind string

const (
	EventTX EventKind = "tx"
	EventRX EventKind = "rx"
)

// EventFunc receives one wire-level event. The Connection is the sole
// writer of these events; the owning Client is responsible for stamping
// a timestamp and appending to its debug ring.
type EventFunc func(kind EventKind, semantic, payload string)

const (
	// DefaultDeadline is the timeout for ordinary commands.
	DefaultDeadline = 2 * time.Second
	// DumpDeadline is the timeout for dump_caps/dump_state, which can
	// return hundreds of lines.
	DumpDeadline = 5 * time.Second

	queueDepth      = 64
	backoffInitial  = 500 * time.Millisecond
	backoffCap      = 5 * time.Second
	backoffJitterFr = 0.20
)

type submission struct {
	cmd      Command
	args     []string
	deadline time.Duration
	result   chan submitResult
}

type submitResult struct {
	resp *Response
	err  *Error
}

// Connection owns one outbound TCP connection to a rigctld-compatible
// endpoint and serializes command execution: exactly one command is in
// flight at a time, additional submissions queue up to queueDepth before
// enqueue itself fails with a busy error.
type Connection struct {
	addr    string
	onEvent EventFunc

	queue chan *submission
	done  chan struct{}

	mu           sync.Mutex
	state        State
	tcpConn      net.Conn
	proto        *textproto.Conn
	erpSupported bool
	nextRetryAt  time.Time
	backoff      time.Duration
	lastErr      string

	closeOnce sync.Once
}

// NewConnection constructs a Connection and starts its dispatch loop.
// The dispatch loop terminates when Close is called.
func NewConnection(addr string, onEvent EventFunc) *Connection {
	if onEvent == nil {
		onEvent = func(EventKind, string, string) {}
	}
	c := &Connection{
		addr:         addr,
		onEvent:      onEvent,
		queue:        make(chan *submission, queueDepth),
		done:         make(chan struct{}),
		state:        StateInitial,
		erpSupported: true,
		backoff:      backoffInitial,
	}
	go c.run()
	return c
}

// Health returns the current state and, while disconnected, the last
// observed connection error.
func (c *Connection) Health() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastErr
}

// Close shuts down the dispatch loop and the underlying socket. Queued
// submissions are failed with an io error.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Submit encodes and sends one command, blocking until a response,
// error, or the connection's dispatch loop shuts down. A full queue
// fails immediately with a busy error without ever reaching the wire.
func (c *Connection) Submit(cmd Command, args []string, deadline time.Duration) (*Response, *Error) {
	c.mu.Lock()
	closed := c.state == StateClosed
	c.mu.Unlock()
	if closed {
		return nil, newIOError(string(cmd), errors.New("connection closed"))
	}

	sub := &submission{cmd: cmd, args: args, deadline: deadline, result: make(chan submitResult, 1)}
	select {
	case c.queue <- sub:
	default:
		return nil, newBusyError(string(cmd))
	}

	select {
	case res := <-sub.result:
		return res.resp, res.err
	case <-c.done:
		return nil, newIOError(string(cmd), errors.New("connection closed"))
	}
}

// ChkVFO issues the raw-protocol \chk_vfo probe used to detect dual-VFO
// support. Real rigctld builds reply to this command inconsistently
// under ERP, so it is always sent in default (non-ERP) form and expects
// a single bare integer line, not a Key: Value record.
func (c *Connection) ChkVFO(deadline time.Duration) (bool, *Error) {
	sub := &submission{cmd: CmdChkVFO, deadline: deadline, result: make(chan submitResult, 1)}
	select {
	case c.queue <- sub:
	default:
		return false, newBusyError(string(CmdChkVFO))
	}
	select {
	case res := <-sub.result:
		if res.err != nil {
			return false, res.err
		}
		for _, ln := range res.resp.Lines {
			ln = strings.TrimSpace(ln)
			if ln == "1" {
				return true, nil
			}
			if ln == "0" {
				return false, nil
			}
		}
		return false, nil
	case <-c.done:
		return false, newIOError(string(CmdChkVFO), errors.New("connection closed"))
	}
}

func (c *Connection) run() {
	defer c.closeSocket()
	for {
		select {
		case <-c.done:
			c.drainQueue()
			c.mu.Lock()
			c.state = StateClosed
			c.mu.Unlock()
			return
		case sub := <-c.queue:
			c.handle(sub)
		}
	}
}

func (c *Connection) drainQueue() {
	for {
		select {
		case sub := <-c.queue:
			sub.result <- submitResult{err: newIOError(string(sub.cmd), errors.New("connection closed"))}
		default:
			return
		}
	}
}

func (c *Connection) handle(sub *submission) {
	if err := c.ensureConnected(); err != nil {
		sub.result <- submitResult{err: err}
		return
	}

	var resp *Response
	var err *Error
	if sub.cmd == CmdChkVFO {
		resp, err = c.doSubmit(false, sub.cmd, sub.args, sub.deadline)
	} else {
		resp, err = c.doSubmitWithFallback(sub.cmd, sub.args, sub.deadline)
	}

	if err != nil && err.Kind == KindIO {
		c.mu.Lock()
		c.state = StateDisconnected
		c.lastErr = err.Message
		c.bumpBackoffLocked()
		c.mu.Unlock()
		c.closeSocket()
		c.drainQueue()
	}

	sub.result <- submitResult{resp: resp, err: err}
}

// doSubmitWithFallback tries the Extended Response Protocol first (when
// still believed supported on this connection) and falls back to the
// default protocol, once, when the peer signals it doesn't understand
// the ERP prefix (RPRT -11) or replies without a terminal RPRT line at
// all. A successful fallback sticks: erpSupported is cleared for the
// remainder of this connection's lifetime.
func (c *Connection) doSubmitWithFallback(cmd Command, args []string, deadline time.Duration) (*Response, *Error) {
	c.mu.Lock()
	erp := c.erpSupported
	c.mu.Unlock()

	if !erp {
		return c.doSubmit(false, cmd, args, deadline)
	}

	resp, err := c.doSubmit(true, cmd, args, deadline)
	if err == nil {
		return resp, nil
	}
	if err.Kind == KindIO {
		return nil, err
	}
	fallbackWorthy := (err.Kind == KindRig && err.Code == -11) || err.Kind == KindProtocol
	if !fallbackWorthy {
		return nil, err
	}

	rawResp, rawErr := c.doSubmit(false, cmd, args, deadline)
	if rawErr != nil {
		if rawErr.Kind == KindIO {
			return nil, rawErr
		}
		return nil, err
	}

	c.mu.Lock()
	c.erpSupported = false
	c.mu.Unlock()
	return rawResp, nil
}

func (c *Connection) doSubmit(erp bool, cmd Command, args []string, deadline time.Duration) (*Response, *Error) {
	line := encode(erp, cmd, args...)

	c.mu.Lock()
	proto := c.proto
	tcpConn := c.tcpConn
	c.mu.Unlock()
	if proto == nil {
		return nil, newIOError(string(cmd), errors.New("not connected"))
	}

	c.onEvent(EventTX, string(cmd), line)

	deadlineAt := time.Now().Add(deadline)
	tcpConn.SetWriteDeadline(deadlineAt)
	if err := proto.PrintfLine("%s", line); err != nil {
		return nil, newIOError(string(cmd), err)
	}

	lines, rerr := c.readLines(proto, tcpConn, cmd, erp, deadlineAt)
	if rerr != nil {
		c.onEvent(EventRX, string(cmd), rerr.Error())
		return nil, rerr
	}

	var resp *Response
	var derr *Error
	if erp {
		resp, derr = decodeERP(cmd, lines)
	} else {
		resp, derr = decodeDefault(cmd, lines)
	}
	if derr != nil {
		c.onEvent(EventRX, string(cmd), derr.Error())
		return nil, derr
	}
	c.onEvent(EventRX, string(cmd), rprtSemantic(resp))
	return resp, nil
}

func rprtSemantic(r *Response) string {
	if len(r.Lines) == 0 {
		return "RPRT 0"
	}
	return strings.Join(r.Lines, "; ")
}

// readLines reads wire lines for one command until a terminal RPRT line
// is seen, the read deadline is exceeded, or a bare-value line budget
// (for the default protocol's get-style commands) is exhausted.
func (c *Connection) readLines(proto *textproto.Conn, tcpConn net.Conn, cmd Command, erp bool, deadlineAt time.Time) ([]string, *Error) {
	var lines []string
	maxLines, hasMax := expectedValueLines(cmd)

	for {
		if time.Now().After(deadlineAt) {
			if !erp && len(lines) > 0 {
				return lines, nil
			}
			if len(lines) > 0 {
				return nil, newProtocolError(string(cmd), "missing RPRT line", lines)
			}
			return nil, newTimeoutError(string(cmd))
		}

		tcpConn.SetReadDeadline(deadlineAt)
		ln, err := proto.ReadLine()
		if err != nil {
			if isTimeoutErr(err) {
				if !erp && len(lines) > 0 {
					return lines, nil
				}
				if len(lines) > 0 {
					return nil, newProtocolError(string(cmd), "missing RPRT line", lines)
				}
				return nil, newTimeoutError(string(cmd))
			}
			return nil, newIOError(string(cmd), err)
		}

		lines = append(lines, ln)
		if _, ok := parseRPRTLine(ln); ok {
			return lines, nil
		}
		if !erp && hasMax && len(lines) >= maxLines {
			return lines, nil
		}
		if cmd == CmdChkVFO && len(lines) >= 1 {
			return lines, nil
		}
	}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Connection) ensureConnected() *Error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if time.Now().Before(c.nextRetryAt) {
		msg := c.lastErr
		c.mu.Unlock()
		if msg == "" {
			msg = "reconnecting"
		}
		return &Error{Kind: KindIO, Message: msg}
	}
	c.state = StateConnecting
	c.mu.Unlock()

	tcpConn, err := net.DialTimeout("tcp", c.addr, DefaultDeadline)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.lastErr = err.Error()
		c.bumpBackoffLocked()
		c.mu.Unlock()
		return newIOError("connect", err)
	}

	c.mu.Lock()
	c.tcpConn = tcpConn
	c.proto = textproto.NewConn(tcpConn)
	c.state = StateConnected
	c.erpSupported = true
	c.lastErr = ""
	c.backoff = backoffInitial
	c.mu.Unlock()
	return nil
}

func (c *Connection) bumpBackoffLocked() {
	jitter := 1 + (rand.Float64()*2-1)*backoffJitterFr
	wait := time.Duration(float64(c.backoff) * jitter)
	c.nextRetryAt = time.Now().Add(wait)
	c.backoff *= 2
	if c.backoff > backoffCap {
		c.backoff = backoffCap
	}
}

func (c *Connection) closeSocket() {
	c.mu.Lock()
	proto := c.proto
	c.proto = nil
	c.tcpConn = nil
	c.mu.Unlock()
	if proto != nil {
		proto.Close()
	}
}
