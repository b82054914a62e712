package service

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-i2p/go-sam-client/lib/connection"
	"github.com/go-i2p/go-sam-client/lib/destination"
)

// fakeBridge is a minimal single-connection stand-in for a SAM bridge: it
// answers HELLO, then runs a caller-supplied script against the rest of the
// session.
func fakeBridge(t *testing.T, script func(r *bufio.Reader, w net.Conn)) (cfg connection.Config, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		line, err := r.ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "HELLO VERSION") {
			return
		}
		conn.Write([]byte("HELLO REPLY RESULT=OK VERSION=3.1\n"))

		script(r, conn)
	}()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return connection.Config{Host: "127.0.0.1", Port: port}, func() { ln.Close() }
}

func TestEstablishControlSession_Success(t *testing.T) {
	mgr := destination.NewManager()
	id, priv, err := mgr.Generate(destination.SigTypeEd25519)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := mgr.EncodePublic(id)
	if err != nil {
		t.Fatal(err)
	}
	wantB32 := id.B32Address()

	cfg, stop := fakeBridge(t, func(r *bufio.Reader, w net.Conn) {
		line, err := r.ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "SESSION CREATE") {
			return
		}
		fmt.Fprintf(w, "SESSION STATUS RESULT=OK DESTINATION=%s\n", pub)
	})
	defer stop()

	svc := New(cfg, nil)
	result := svc.EstablishControlSession("test", "priv-does-not-matter", 7, DefaultSessionOptions())

	if !result.Success {
		t.Fatalf("EstablishControlSession() failed: %s", result.ErrorMessage)
	}
	if result.LocalB32Address != wantB32 {
		t.Errorf("LocalB32Address = %q, want %q", result.LocalB32Address, wantB32)
	}
	if !svc.IsOpen() {
		t.Error("IsOpen() = false after successful establish")
	}

	_ = priv
	svc.Shutdown()
	if svc.IsOpen() {
		t.Error("IsOpen() = true after Shutdown")
	}
}

func TestEstablishControlSession_MaybeUnreliable(t *testing.T) {
	mgr := destination.NewManager()
	id, _, err := mgr.Generate(destination.SigTypeEd25519)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := mgr.EncodePublic(id)
	if err != nil {
		t.Fatal(err)
	}

	cfg, stop := fakeBridge(t, func(r *bufio.Reader, w net.Conn) {
		r.ReadString('\n')
		fmt.Fprintf(w, "SESSION STATUS RESULT=OK DESTINATION=%s\n", pub)
	})
	defer stop()

	svc := New(cfg, nil)
	result := svc.EstablishControlSession("test", "TRANSIENT", 7, DefaultSessionOptions())
	if !result.Success {
		t.Fatalf("EstablishControlSession() failed: %s", result.ErrorMessage)
	}
	if !result.MaybeUnreliable {
		t.Error("MaybeUnreliable = false, want true for a near-instant OK reply")
	}
	svc.Shutdown()
}

func TestEstablishControlSession_RejectedResult(t *testing.T) {
	cfg, stop := fakeBridge(t, func(r *bufio.Reader, w net.Conn) {
		r.ReadString('\n')
		w.Write([]byte("SESSION STATUS RESULT=DUPLICATED_ID\n"))
	})
	defer stop()

	svc := New(cfg, nil)
	result := svc.EstablishControlSession("test", "TRANSIENT", 7, DefaultSessionOptions())
	if result.Success {
		t.Fatal("EstablishControlSession() succeeded, want failure")
	}
	if svc.IsOpen() {
		t.Error("IsOpen() = true after failed establish")
	}
}

func TestAcceptStreamViaNewConnection_InlineFromDestination(t *testing.T) {
	mgr := destination.NewManager()
	id, _, err := mgr.Generate(destination.SigTypeEd25519)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := mgr.EncodePublic(id)
	if err != nil {
		t.Fatal(err)
	}
	wantB32 := id.B32Address()

	cfg, stop := fakeBridge(t, func(r *bufio.Reader, w net.Conn) {
		line, err := r.ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "STREAM ACCEPT") {
			return
		}
		fmt.Fprintf(w, "STREAM STATUS RESULT=OK FROM_DESTINATION=%s\n", pub)
		time.Sleep(50 * time.Millisecond)
	})
	defer stop()

	svc := New(cfg, nil)
	result := svc.AcceptStreamViaNewConnection("test")
	if !result.Success {
		t.Fatalf("AcceptStreamViaNewConnection() failed: %s", result.ErrorMessage)
	}
	if result.RemotePeerB32Address != wantB32 {
		t.Errorf("RemotePeerB32Address = %q, want %q", result.RemotePeerB32Address, wantB32)
	}
	if result.DataConnection == nil {
		t.Fatal("DataConnection is nil")
	}
	if result.DataConnection.State() != connection.StateDataStreamMode {
		t.Errorf("DataConnection.State() = %v, want DATA_STREAM_MODE", result.DataConnection.State())
	}
	result.DataConnection.Close()
}

func TestAcceptStreamViaNewConnection_DeferredFromDestination(t *testing.T) {
	mgr := destination.NewManager()
	id, _, err := mgr.Generate(destination.SigTypeEd25519)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := mgr.EncodePublic(id)
	if err != nil {
		t.Fatal(err)
	}
	wantB32 := id.B32Address()

	cfg, stop := fakeBridge(t, func(r *bufio.Reader, w net.Conn) {
		line, err := r.ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "STREAM ACCEPT") {
			return
		}
		w.Write([]byte("STREAM STATUS RESULT=OK\n"))
		time.Sleep(100 * time.Millisecond)
		fmt.Fprintf(w, "%s\n", pub)
	})
	defer stop()

	svc := New(cfg, nil)
	result := svc.AcceptStreamViaNewConnection("test")
	if !result.Success {
		t.Fatalf("AcceptStreamViaNewConnection() failed: %s", result.ErrorMessage)
	}
	if result.RemotePeerB32Address != wantB32 {
		t.Errorf("RemotePeerB32Address = %q, want %q", result.RemotePeerB32Address, wantB32)
	}
	result.DataConnection.Close()
}

func TestConnectToPeerViaNewConnection_Success(t *testing.T) {
	cfg, stop := fakeBridge(t, func(r *bufio.Reader, w net.Conn) {
		line, err := r.ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "STREAM CONNECT") {
			return
		}
		if !strings.Contains(line, "DESTINATION=target.b32.i2p") {
			t.Errorf("STREAM CONNECT missing target destination: %q", line)
		}
		w.Write([]byte("STREAM STATUS RESULT=OK\n"))
	})
	defer stop()

	svc := New(cfg, nil)
	result := svc.ConnectToPeerViaNewConnection("test", "target.b32.i2p", StreamOptions{})
	if !result.Success {
		t.Fatalf("ConnectToPeerViaNewConnection() failed: %s", result.ErrorMessage)
	}
	if result.DataConnection.State() != connection.StateDataStreamMode {
		t.Errorf("DataConnection.State() = %v, want DATA_STREAM_MODE", result.DataConnection.State())
	}
	if result.RemotePeerB32Address != "target.b32.i2p" {
		t.Errorf("RemotePeerB32Address = %q, want %q", result.RemotePeerB32Address, "target.b32.i2p")
	}
	result.DataConnection.Close()
}

func TestConnectToPeerViaNewConnection_CantReachPeer(t *testing.T) {
	cfg, stop := fakeBridge(t, func(r *bufio.Reader, w net.Conn) {
		r.ReadString('\n')
		w.Write([]byte("STREAM STATUS RESULT=CANT_REACH_PEER\n"))
	})
	defer stop()

	svc := New(cfg, nil)
	result := svc.ConnectToPeerViaNewConnection("test", "target.b32.i2p", StreamOptions{})
	if result.Success {
		t.Fatal("ConnectToPeerViaNewConnection() succeeded, want failure")
	}
	if result.DataConnection != nil {
		t.Error("DataConnection should be nil on failure")
	}
}

func TestShutdown_NoOpWithoutSession(t *testing.T) {
	svc := New(connection.Config{Host: "127.0.0.1", Port: 1}, nil)
	if err := svc.Shutdown(); err != nil {
		t.Errorf("Shutdown() with no control connection error = %v, want nil", err)
	}
}
