// Package service composes Connections into the three operations an
// application actually needs: establishing a control session that carries
// a persistent identity, and opening one fresh data Connection per inbound
// or outbound stream. SAM multiplexes session identity across independent
// TCP links, so serving many concurrent streams means holding many
// Connections; only the control Connection is long-lived.
package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-i2p/go-sam-client/lib/connection"
	"github.com/go-i2p/go-sam-client/lib/identity"
	"github.com/go-i2p/go-sam-client/lib/protocol"
	"github.com/go-i2p/go-sam-client/lib/util"

	"github.com/sirupsen/logrus"
)

// Default reply timeouts per operation, distinct from connection's own
// connect/hello defaults since these bound the whole round trip including
// bridge-side session bookkeeping.
const (
	DefaultSessionCreateTimeout = 3 * time.Minute
	DefaultStreamAcceptTimeout  = 120 * time.Second
	DefaultStreamConnectTimeout = 90 * time.Second

	// deferredFromDestinationTimeout is the wait for a bridge that answers
	// STREAM STATUS OK before it knows the peer, then pushes
	// FROM_DESTINATION on its own line once a peer actually connects. The
	// reference client waits what is effectively forever for this.
	deferredFromDestinationTimeout = 7 * 24 * time.Hour

	minB32AddressLength = 50

	unreliableThreshold = 2 * time.Second
)

// SessionOptions carries the SAM session's tunnel options, appended to
// SESSION CREATE as k=v pairs. The zero value is not valid; use
// DefaultSessionOptions.
type SessionOptions struct {
	StreamingProfile string
	InboundLength    string
	OutboundLength   string
	Extra            map[string]string
}

// DefaultSessionOptions returns the reference defaults:
// i2p.streaming.profile=INTERACTIVE, inbound.length=1, outbound.length=1.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		StreamingProfile: "INTERACTIVE",
		InboundLength:    "1",
		OutboundLength:   "1",
	}
}

func (o SessionOptions) toMap() map[string]string {
	m := make(map[string]string, len(o.Extra)+3)
	for k, v := range o.Extra {
		m[k] = v
	}
	if o.StreamingProfile != "" {
		m["i2p.streaming.profile"] = o.StreamingProfile
	}
	if o.InboundLength != "" {
		m["inbound.length"] = o.InboundLength
	}
	if o.OutboundLength != "" {
		m["outbound.length"] = o.OutboundLength
	}
	return m
}

// StreamOptions carries extra k=v options for STREAM CONNECT.
type StreamOptions struct {
	Extra map[string]string
}

// EstablishSessionResult is the outcome of EstablishControlSession.
type EstablishSessionResult struct {
	Success                bool
	CreatedSessionID       string
	LocalB32Address        string
	RawSAMDestinationReply string
	ErrorMessage           string
	SessionCreationTime    time.Duration
	MaybeUnreliable        bool
}

// SetupStreamResult is the outcome of AcceptStreamViaNewConnection or
// ConnectToPeerViaNewConnection. DataConnection is transferred to the
// caller, who owns its subsequent lifecycle (including Close).
type SetupStreamResult struct {
	Success              bool
	RemotePeerB32Address string
	DataConnection       *connection.Connection
	ErrorMessage         string
}

// SamService owns bridge connectivity: a transport/address pair and zero
// or one control Connection. It does not own data Connections past the
// call that creates them.
type SamService struct {
	transportCfg connection.Config
	log          *logrus.Entry

	mu                   sync.Mutex
	control              *connection.Connection
	establishedSessionID string
}

// New returns a SamService that dials cfg for every Connection it opens.
func New(cfg connection.Config, log *logrus.Entry) *SamService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SamService{transportCfg: cfg, log: log}
}

// IsOpen reports whether a control Connection exists and is open.
func (s *SamService) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control != nil && s.control.IsOpen()
}

// EstablishControlSession opens (or re-opens) the control Connection and
// creates a SAM session under nickname, with destination either an
// existing Base64 private key blob or protocol.DestinationTransient.
func (s *SamService) EstablishControlSession(nickname, destinationKey string, sigType int, opts SessionOptions) EstablishSessionResult {
	if err := protocol.ValidateSessionID(nickname); err != nil {
		return EstablishSessionResult{Success: false, ErrorMessage: fmt.Sprintf("validate: %v", err)}
	}
	if err := protocol.RequireNonEmpty(destinationKey, "destinationKey"); err != nil {
		return EstablishSessionResult{Success: false, ErrorMessage: fmt.Sprintf("validate: %v", err)}
	}
	if sigType != protocol.SigTypeUnspecified {
		if err := protocol.ValidateSignatureType(sigType); err != nil {
			return EstablishSessionResult{Success: false, ErrorMessage: fmt.Sprintf("validate: %v", err)}
		}
	}

	s.mu.Lock()
	if s.control != nil && s.control.IsOpen() {
		s.control.Close()
	}
	s.control = nil
	s.establishedSessionID = ""
	s.mu.Unlock()

	conn := connection.New()
	result := EstablishSessionResult{}

	fail := func(op string, err error) EstablishSessionResult {
		conn.Close()
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("%s: %v", op, err)
		s.log.WithError(err).WithField("op", op).Warn("establish_control_session failed")
		return result
	}

	if err := conn.Connect(s.transportCfg, connection.DefaultConnectTimeout); err != nil {
		return fail("connect", err)
	}
	if _, err := conn.PerformHello(connection.DefaultHelloTimeout); err != nil {
		return fail("perform_hello", err)
	}

	cmd := protocol.SessionCreate(nickname, destinationKey, sigType, opts.toMap())

	start := time.Now()
	reply, err := conn.SendCommandAndWaitReply(cmd, DefaultSessionCreateTimeout)
	elapsed := time.Since(start)
	if err != nil {
		return fail("session_create", err)
	}

	if reply.Kind != protocol.KindSessionStatus || !reply.IsOK() {
		return fail("session_create", util.NewServiceError(nickname, "establish_control_session", reply.Raw, util.ResultCodeToError(reply.Result())))
	}
	destField := reply.Fields["DESTINATION"]
	if destField == "" {
		return fail("session_create", util.NewServiceError(nickname, "establish_control_session", reply.Raw, util.ErrMalformedDestination))
	}

	isTransient := destinationKey == protocol.DestinationTransient
	b32 := identity.BFromSamDestination(destField, isTransient)
	if strings.Contains(b32, "(Error:") || strings.Contains(b32, "(Warning:") {
		s.log.WithField("b32", b32).Warn("session destination converted with a warning")
	}

	s.mu.Lock()
	s.control = conn
	s.establishedSessionID = nickname
	s.mu.Unlock()

	result.Success = true
	result.CreatedSessionID = nickname
	result.LocalB32Address = b32
	result.RawSAMDestinationReply = destField
	result.SessionCreationTime = elapsed
	result.MaybeUnreliable = elapsed < unreliableThreshold
	return result
}

// AcceptStreamViaNewConnection opens a fresh Connection, performs HELLO,
// and waits for an inbound stream on sessionID. The returned Connection
// (on success) is in DATA_STREAM_MODE.
func (s *SamService) AcceptStreamViaNewConnection(sessionID string) SetupStreamResult {
	result := SetupStreamResult{}
	if err := protocol.ValidateSessionID(sessionID); err != nil {
		result.ErrorMessage = fmt.Sprintf("validate: %v", err)
		return result
	}

	conn := connection.New()

	fail := func(op string, err error) SetupStreamResult {
		conn.Close()
		result.Success = false
		result.DataConnection = nil
		result.ErrorMessage = fmt.Sprintf("%s: %v", op, err)
		s.log.WithError(err).WithField("op", op).Warn("accept_stream_via_new_connection failed")
		return result
	}

	if err := conn.Connect(s.transportCfg, connection.DefaultConnectTimeout); err != nil {
		return fail("connect", err)
	}
	if _, err := conn.PerformHello(connection.DefaultHelloTimeout); err != nil {
		return fail("perform_hello", err)
	}

	reply, err := conn.SendCommandAndWaitReply(protocol.StreamAccept(sessionID, false), DefaultStreamAcceptTimeout)
	if err != nil {
		return fail("stream_accept", err)
	}
	if reply.Kind != protocol.KindStreamStatus || !reply.IsOK() {
		return fail("stream_accept", util.NewServiceError(sessionID, "accept_stream_via_new_connection", reply.Raw, util.ResultCodeToError(reply.Result())))
	}

	fromDest := reply.Fields["FROM_DESTINATION"]
	if fromDest == "" {
		line, err := conn.ReadLine(deferredFromDestinationTimeout)
		if err != nil {
			return fail("stream_accept_deferred_destination", err)
		}
		fromDest = strings.TrimSpace(line)
	}

	b32 := identity.BFromSamDestination(fromDest, false)
	if len(b32) < minB32AddressLength || strings.Contains(b32, "(Error:") || strings.Contains(b32, "(Warning:") {
		return fail("stream_accept", util.NewServiceError(sessionID, "accept_stream_via_new_connection", reply.Raw, util.ErrMalformedDestination))
	}

	if err := conn.EnterDataStreamMode(); err != nil {
		return fail("stream_accept", err)
	}

	result.Success = true
	result.RemotePeerB32Address = b32
	result.DataConnection = conn
	return result
}

// ConnectToPeerViaNewConnection opens a fresh Connection, performs HELLO,
// and originates an outbound stream to targetB32 on sessionID. The
// returned Connection (on success) is in DATA_STREAM_MODE.
func (s *SamService) ConnectToPeerViaNewConnection(sessionID, targetB32 string, opts StreamOptions) SetupStreamResult {
	result := SetupStreamResult{}
	if err := protocol.ValidateSessionID(sessionID); err != nil {
		result.ErrorMessage = fmt.Sprintf("validate: %v", err)
		return result
	}
	if err := protocol.RequireNonEmpty(targetB32, "targetB32"); err != nil {
		result.ErrorMessage = fmt.Sprintf("validate: %v", err)
		return result
	}

	conn := connection.New()

	fail := func(op string, err error) SetupStreamResult {
		conn.Close()
		result.Success = false
		result.DataConnection = nil
		result.ErrorMessage = fmt.Sprintf("%s: %v", op, err)
		s.log.WithError(err).WithField("op", op).Warn("connect_to_peer_via_new_connection failed")
		return result
	}

	if err := conn.Connect(s.transportCfg, connection.DefaultConnectTimeout); err != nil {
		return fail("connect", err)
	}
	if _, err := conn.PerformHello(connection.DefaultHelloTimeout); err != nil {
		return fail("perform_hello", err)
	}

	cmd := protocol.StreamConnect(sessionID, targetB32, false)
	for k, v := range opts.Extra {
		cmd.WithOption(k, v)
	}

	reply, err := conn.SendCommandAndWaitReply(cmd, DefaultStreamConnectTimeout)
	if err != nil {
		return fail("stream_connect", err)
	}
	if reply.Kind != protocol.KindStreamStatus || !reply.IsOK() {
		return fail("stream_connect", util.NewServiceError(sessionID, "connect_to_peer_via_new_connection", reply.Raw, util.ResultCodeToError(reply.Result())))
	}

	if err := conn.EnterDataStreamMode(); err != nil {
		return fail("stream_connect", err)
	}

	result.Success = true
	result.DataConnection = conn
	result.RemotePeerB32Address = targetB32
	return result
}

// Shutdown closes the control Connection, if any, and drops the reference.
func (s *SamService) Shutdown() error {
	s.mu.Lock()
	conn := s.control
	s.control = nil
	s.establishedSessionID = ""
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
