// Package connection implements the client side of a single SAM v3 TCP (or
// TLS) connection: the state machine, the HELLO/command request-response
// cycle, and the cancellable read/write operations the data phase needs.
//
// A Connection has a single owner. There is no shared ownership and no
// process-global registry; the caller (the service layer, or a demo
// application acting on its own data stream) is responsible for the
// Connection's lifetime.
package connection

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-i2p/go-sam-client/lib/protocol"
	"github.com/go-i2p/go-sam-client/lib/util"
)

// State is a Connection's position in its control/data lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedNoHello
	StateHelloOK
	StateDataStreamMode
	StateClosing
	StateClosed
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnectedNoHello:
		return "CONNECTED_NO_HELLO"
	case StateHelloOK:
		return "HELLO_OK"
	case StateDataStreamMode:
		return "DATA_STREAM_MODE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateError:
		return "ERROR_STATE"
	default:
		return "UNKNOWN"
	}
}

// NoTimeout, passed to StreamRead, arms no timer: the read awaits
// indefinitely until data, EOF, cancellation or a socket error.
const NoTimeout time.Duration = -1

// Default timeouts per operation, for the control phase (connect, hello,
// command) and the data phase (stream read, stream write).
const (
	DefaultConnectTimeout     = 10 * time.Second
	DefaultHelloTimeout       = 5 * time.Second
	DefaultCommandTimeout     = 10 * time.Second
	DefaultStreamReadTimeout  = 5 * time.Minute
	DefaultStreamWriteTimeout = 30 * time.Second

	connReadBufferSize = 4096
)

// TLSConfig selects TLS transport for a Connection. A nil *TLSConfig on
// Config means plain TCP.
type TLSConfig struct {
	// InsecureSkipVerify disables peer certificate verification.
	InsecureSkipVerify bool
	// CAFile, if set, is a PEM file whose certificates form the only root
	// pool used to verify the bridge's certificate; the system pool is used
	// only when CAFile is empty.
	CAFile string
}

// Config selects the bridge address and transport for Connect.
type Config struct {
	Host string
	Port int
	TLS  *TLSConfig
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// opToken tracks the outcome of a single cancellable read: whether it timed
// out or was externally cancelled by CancelReadOperations/Close. It replaces
// the source design's single timer shared across read_line and stream_read
// with a first-class per-operation cancellation handle, per this library's
// own read on the "two timers" problem: one token type, armed per call,
// signalled either by its own timer or by an external cancel.
type opToken struct {
	mu        sync.Mutex
	cancelled bool
	timedOut  bool
	timer     *time.Timer
}

type opOutcome int

const (
	opNone opOutcome = iota
	opCancelled
	opTimedOut
)

// Connection is a single TCP or TLS connection to a SAM bridge, in one of
// the states in State. All exported methods are safe for concurrent use;
// send_command_and_wait_reply is the caller's responsibility to serialise
// (the protocol itself is strict request/response), but stream_write calls
// serialise themselves via an internal write token.
type Connection struct {
	mu     sync.RWMutex
	state  State
	conn   net.Conn
	reader *bufio.Reader
	remote string

	writeMu sync.Mutex

	cancelMu  sync.Mutex
	currentOp *opToken
}

// New returns a Connection in StateDisconnected, ready for Connect.
func New() *Connection {
	return &Connection{state: StateDisconnected}
}

// State returns the Connection's current state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// RemoteAddr returns the bridge address, once connected.
func (c *Connection) RemoteAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remote
}

// IsOpen reports whether the Connection has a live socket: any state other
// than DISCONNECTED, CLOSING or CLOSED.
func (c *Connection) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateDisconnected, StateClosing, StateClosed:
		return false
	default:
		return true
	}
}

// IsClosed reports whether Close has been called (or is in progress).
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateClosing || c.state == StateClosed
}

// Connect dials the bridge and moves the Connection to CONNECTED_NO_HELLO.
// Valid from DISCONNECTED or CLOSED (a closed Connection may be reused for
// a fresh dial).
func (c *Connection) Connect(cfg Config, timeout time.Duration) error {
	c.mu.Lock()
	if c.state != StateDisconnected && c.state != StateClosed {
		c.mu.Unlock()
		return util.ErrWrongState
	}
	c.state = StateConnecting
	c.mu.Unlock()

	addr := cfg.addr()
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if cfg.TLS != nil {
		tlsConf, terr := buildTLSConfig(cfg.TLS)
		if terr != nil {
			c.mu.Lock()
			c.state = StateClosed
			c.mu.Unlock()
			return util.NewConnectionError(addr, "connect", terr)
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConf)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateClosed
		return util.NewConnectionError(addr, "connect", err)
	}
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, connReadBufferSize)
	c.remote = addr
	c.state = StateConnectedNoHello
	return nil
}

func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConf := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CAFile == "" {
		return tlsConf, nil
	}
	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("connection: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("connection: no certificates parsed from %s", cfg.CAFile)
	}
	tlsConf.RootCAs = pool
	return tlsConf, nil
}

// PerformHello sends HELLO VERSION and waits for HELLO REPLY. Valid only
// from CONNECTED_NO_HELLO; advances to HELLO_OK on success.
func (c *Connection) PerformHello(timeout time.Duration) (*protocol.ReplyMessage, error) {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st != StateConnectedNoHello {
		return nil, util.ErrWrongState
	}

	cmd := protocol.Hello(protocol.SAMVersionMin, protocol.SAMVersionMax)
	reply, err := c.roundTrip(cmd, timeout)
	if err != nil {
		c.fail()
		return nil, err
	}
	if reply.Kind != protocol.KindHelloReply || !reply.IsOK() {
		c.fail()
		return nil, util.NewConnectionError(c.RemoteAddr(), "perform_hello", util.ResultCodeToError(reply.Result()))
	}

	c.mu.Lock()
	c.state = StateHelloOK
	c.mu.Unlock()
	return reply, nil
}

// SendCommandAndWaitReply writes cmd and waits for the single reply line
// that answers it. Valid only from HELLO_OK. The caller must not invoke
// this concurrently on the same Connection: SAM is strict request/response.
func (c *Connection) SendCommandAndWaitReply(cmd *protocol.Command, timeout time.Duration) (*protocol.ReplyMessage, error) {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st != StateHelloOK {
		return nil, util.ErrWrongState
	}

	reply, err := c.roundTrip(cmd, timeout)
	if err != nil {
		c.fail()
		return nil, err
	}
	return reply, nil
}

// roundTrip writes cmd and reads back one line, without touching state; the
// caller is responsible for state checks and failure transitions.
func (c *Connection) roundTrip(cmd *protocol.Command, timeout time.Duration) (*protocol.ReplyMessage, error) {
	if err := c.writeCommand(cmd); err != nil {
		return nil, err
	}
	line, err := c.ReadLine(timeout)
	if err != nil {
		return nil, err
	}
	reply, perr := protocol.Parse(line)
	if perr != nil {
		return nil, fmt.Errorf("connection: parse reply %q: %w", line, perr)
	}
	return reply, nil
}

func (c *Connection) writeCommand(cmd *protocol.Command) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return util.ErrWrongState
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(cmd.Bytes()); err != nil {
		return util.NewConnectionError(c.RemoteAddr(), "send_command", err)
	}
	return nil
}

// ReadLine reads one \n-terminated line from the connection's inbound
// buffer, using the shared cancellation token so that CancelReadOperations
// or Close unblocks it. Strips the trailing \n and \r.
func (c *Connection) ReadLine(timeout time.Duration) (string, error) {
	c.mu.RLock()
	conn := c.conn
	reader := c.reader
	c.mu.RUnlock()
	if conn == nil || reader == nil {
		return "", util.ErrWrongState
	}

	token := c.beginOp(conn, timeout)
	line, err := reader.ReadString('\n')
	outcome := c.endOp(token)

	if err != nil {
		switch outcome {
		case opCancelled:
			return "", util.ErrCancelled
		case opTimedOut:
			return "", util.ErrTimeout
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", util.ErrTimeout
		}
		return "", util.NewConnectionError(c.RemoteAddr(), "read_line", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// StreamRead performs one partial read into buf. Valid only in
// DATA_STREAM_MODE. timeout <= 0 or NoTimeout awaits indefinitely.
func (c *Connection) StreamRead(buf []byte, timeout time.Duration) (int, error) {
	c.mu.RLock()
	st := c.state
	conn := c.conn
	c.mu.RUnlock()
	if st != StateDataStreamMode {
		return 0, util.ErrWrongState
	}
	if conn == nil {
		return 0, util.ErrWrongState
	}

	armed := timeout
	if timeout <= 0 {
		armed = 0
	}

	token := c.beginOp(conn, armed)
	n, err := conn.Read(buf)
	outcome := c.endOp(token)

	if err != nil {
		switch outcome {
		case opCancelled:
			return n, util.ErrCancelled
		case opTimedOut:
			return n, util.ErrTimeout
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, util.ErrTimeout
		}
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, util.NewConnectionError(c.RemoteAddr(), "stream_read", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// beginOp installs a fresh cancellation token as the connection's in-flight
// operation and arms the read deadline for it. Only one read operation may
// be in flight at a time; that is the caller's responsibility (§5).
func (c *Connection) beginOp(conn net.Conn, timeout time.Duration) *opToken {
	token := &opToken{}
	c.cancelMu.Lock()
	c.currentOp = token
	c.cancelMu.Unlock()

	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		token.timer = time.AfterFunc(timeout, func() {
			token.mu.Lock()
			if !token.cancelled {
				token.timedOut = true
			}
			token.mu.Unlock()
		})
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}
	return token
}

func (c *Connection) endOp(token *opToken) opOutcome {
	if token.timer != nil {
		token.timer.Stop()
	}
	c.cancelMu.Lock()
	if c.currentOp == token {
		c.currentOp = nil
	}
	c.cancelMu.Unlock()

	token.mu.Lock()
	defer token.mu.Unlock()
	if token.cancelled {
		return opCancelled
	}
	if token.timedOut {
		return opTimedOut
	}
	return opNone
}

// CancelReadOperations unblocks any read_line or timeout-armed stream_read
// currently in flight, without closing the socket.
func (c *Connection) CancelReadOperations() {
	c.cancelMu.Lock()
	token := c.currentOp
	c.cancelMu.Unlock()
	if token == nil {
		return
	}

	token.mu.Lock()
	token.cancelled = true
	if token.timer != nil {
		token.timer.Stop()
	}
	token.mu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		_ = conn.SetReadDeadline(time.Now())
	}
}

// StreamWrite writes buf in full. Valid only in DATA_STREAM_MODE. Uses a
// dedicated per-call deadline, not the shared read-cancellation token, so
// that a slow reader elsewhere on the connection can never race a writer's
// timeout. Concurrent callers serialise on writeMu: one caller's bytes are
// never interleaved with another's, and callers proceed in lock-acquisition
// order.
func (c *Connection) StreamWrite(buf []byte, timeout time.Duration) error {
	c.mu.RLock()
	st := c.state
	conn := c.conn
	c.mu.RUnlock()
	if st != StateDataStreamMode {
		return util.ErrWrongState
	}
	if conn == nil {
		return util.ErrWrongState
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		defer conn.SetWriteDeadline(time.Time{})
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}

	_, err := conn.Write(buf)
	if err == nil {
		return nil
	}

	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		c.forceClosed()
		return util.ErrCancelled
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		c.forceClosed()
		_ = conn.Close()
		return util.ErrTimeout
	}
	c.forceClosed()
	return util.NewConnectionError(c.RemoteAddr(), "stream_write", err)
}

// forceClosed marks the connection CLOSED without re-entering Close's own
// shutdown sequence (the socket is already broken by the caller's error).
func (c *Connection) forceClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosing || c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.reader = nil
}

// fail transitions a control-phase error into ERROR_STATE, tears down the
// socket, and leaves the Connection CLOSED. No-op if already closing/closed.
func (c *Connection) fail() {
	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	conn := c.conn
	c.mu.Unlock()

	c.CancelReadOperations()
	if conn != nil {
		_ = conn.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.reader = nil
	c.mu.Unlock()
}

// EnterDataStreamMode transitions a Connection that just received a
// STREAM STATUS RESULT=OK reply from HELLO_OK into DATA_STREAM_MODE.
func (c *Connection) EnterDataStreamMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateHelloOK {
		return util.ErrWrongState
	}
	c.state = StateDataStreamMode
	return nil
}

// Close is synchronous and idempotent. It is a no-op from CLOSING or
// CLOSED; from any other state it cancels pending reads, shuts down and
// closes the socket, and drains the inbound buffer.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	conn := c.conn
	c.mu.Unlock()

	c.CancelReadOperations()

	var err error
	if conn != nil {
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.CloseRead()
			_ = tcpConn.CloseWrite()
		}
		err = conn.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.reader = nil
	c.mu.Unlock()

	return err
}
