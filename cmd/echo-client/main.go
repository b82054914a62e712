// Command echo-client connects to a peer's I2P destination through a SAM
// v3 bridge and provides an interactive line-oriented echo session:
// each line typed at the prompt is sent to the peer and the reply is
// printed.
//
// Usage:
//
//	echo-client [flags] <target.b32.i2p>
//
// Flags:
//
//	-host string          SAM bridge host (default "127.0.0.1")
//	-port string           SAM bridge port (default "7656")
//	-keyfile string        Path to a Base64 private key file, or "TRANSIENT"
//	-nickname string       Session ID prefix (default "I2PECHOCLIENT")
//	-sigtype string        Signature type for a caller-supplied key, 0-8 (default Ed25519)
//	-tls                   Use TLS to reach the bridge
//	-tls-insecure          Skip TLS certificate verification
//	-tls-ca string         PEM file of the CA that signed the bridge's certificate
//
// A line of the form "big <n>" sends n KiB of 'A' bytes, for exercising
// larger transfers. Typing "exit" or "quit" ends the session.
//
// Exit code 0 on clean shutdown, 1 on setup error.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-i2p/go-sam-client/lib/connection"
	"github.com/go-i2p/go-sam-client/lib/identity"
	"github.com/go-i2p/go-sam-client/lib/protocol"
	"github.com/go-i2p/go-sam-client/lib/service"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, target := parseFlags()

	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(cfg, target, log); err != nil {
		log.WithError(err).Error("echo-client exited with error")
		os.Exit(1)
	}
}

type clientConfig struct {
	host        string
	port        string
	keyFile     string
	nickname    string
	sigType     string
	tls         bool
	tlsInsecure bool
	tlsCAFile   string
	debug       bool
}

func parseFlags() (clientConfig, string) {
	var cfg clientConfig
	flag.StringVar(&cfg.host, "host", "127.0.0.1", "SAM bridge host")
	flag.StringVar(&cfg.port, "port", strconv.Itoa(protocol.DefaultSAMPort), "SAM bridge port")
	flag.StringVar(&cfg.keyFile, "keyfile", "TRANSIENT", `path to a Base64 private key file, or "TRANSIENT"`)
	flag.StringVar(&cfg.nickname, "nickname", "I2PECHOCLIENT", "session ID prefix")
	flag.StringVar(&cfg.sigType, "sigtype", "", "signature type for a caller-supplied key, 0-8 (default Ed25519)")
	flag.BoolVar(&cfg.tls, "tls", false, "use TLS to reach the bridge")
	flag.BoolVar(&cfg.tlsInsecure, "tls-insecure", false, "skip TLS certificate verification")
	flag.StringVar(&cfg.tlsCAFile, "tls-ca", "", "PEM file of the CA that signed the bridge's certificate")
	flag.BoolVar(&cfg.debug, "debug", false, "enable debug logging")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: echo-client [flags] <target.b32.i2p>")
		os.Exit(1)
	}
	return cfg, flag.Arg(0)
}

func loadPrivateKey(path string) (string, error) {
	if path == "" || strings.EqualFold(path, protocol.DestinationTransient) {
		return protocol.DestinationTransient, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func run(cfg clientConfig, target string, log *logrus.Logger) error {
	port, err := protocol.ValidatePortString(cfg.port)
	if err != nil {
		return err
	}
	if err := protocol.ValidateSessionID(cfg.nickname); err != nil {
		return fmt.Errorf("nickname: %w", err)
	}
	if err := protocol.RequireNonEmpty(target, "target"); err != nil {
		return err
	}

	privKey, err := loadPrivateKey(cfg.keyFile)
	if err != nil {
		return err
	}
	sigType := protocol.DefaultSignatureType
	if privKey != protocol.DestinationTransient {
		sigType, err = protocol.ValidateSignatureTypeString(cfg.sigType)
		if err != nil {
			return fmt.Errorf("sigtype: %w", err)
		}
	}

	suffix, err := identity.GenerateRandomNickname()
	if err != nil {
		return err
	}
	sessionID := cfg.nickname + "_" + suffix

	transportCfg := connection.Config{Host: cfg.host, Port: port}
	if cfg.tls {
		transportCfg.TLS = &connection.TLSConfig{InsecureSkipVerify: cfg.tlsInsecure, CAFile: cfg.tlsCAFile}
	}

	svc := service.New(transportCfg, log.WithField("component", "sam-service"))
	defer svc.Shutdown()

	session := svc.EstablishControlSession(sessionID, privKey, sigType, service.DefaultSessionOptions())
	if !session.Success {
		return fmt.Errorf("establish control session: %s", session.ErrorMessage)
	}
	log.WithFields(logrus.Fields{
		"session": session.CreatedSessionID,
		"address": session.LocalB32Address,
	}).Info("control session established")

	connected := svc.ConnectToPeerViaNewConnection(session.CreatedSessionID, target, service.StreamOptions{})
	if !connected.Success {
		return fmt.Errorf("connect to peer: %s", connected.ErrorMessage)
	}
	defer connected.DataConnection.Close()
	log.WithField("target", target).Info("stream established")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return interactiveLoop(ctx, connected.DataConnection, log)
}

func interactiveLoop(ctx context.Context, conn *connection.Connection, log *logrus.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	buf := make([]byte, 16384)

	for conn.IsOpen() && ctx.Err() == nil {
		fmt.Print("echo_client> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "exit" || line == "quit" {
			break
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "big ") {
			kib, err := strconv.Atoi(strings.TrimPrefix(line, "big "))
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid size: %v\n", err)
				continue
			}
			line = strings.Repeat("A", kib*1024)
		}

		if err := conn.StreamWrite([]byte(line), connection.DefaultStreamWriteTimeout); err != nil {
			log.WithError(err).Warn("send failed")
			break
		}

		n, err := conn.StreamRead(buf, 5*time.Minute)
		if err != nil {
			log.WithError(err).Info("peer closed the stream")
			break
		}
		fmt.Printf("< %s\n", buf[:n])
	}
	return nil
}
