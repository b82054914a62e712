// Command echo-server accepts inbound I2P streams on a SAM v3 bridge and
// echoes back whatever bytes each peer sends.
//
// Usage:
//
//	echo-server [flags]
//
// Flags:
//
//	-host string          SAM bridge host (default "127.0.0.1")
//	-port string           SAM bridge port (default "7656")
//	-keyfile string        Path to a Base64 private key file, or "TRANSIENT"
//	-nickname string       Session ID prefix (default "I2PECHO")
//	-sigtype string        Signature type for a caller-supplied key, 0-8 (default Ed25519)
//	-max-streams int       Maximum concurrent accepted streams (default 5)
//	-tls                   Use TLS to reach the bridge
//	-tls-insecure          Skip TLS certificate verification
//	-tls-ca string         PEM file of the CA that signed the bridge's certificate
//
// Exit code 0 on clean shutdown, 1 on setup error.
package main

import (
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
	cfg := parseFlags()

	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("echo-server exited with error")
		os.Exit(1)
	}
}

type serverConfig struct {
	host        string
	port        string
	keyFile     string
	nickname    string
	sigType     string
	maxStreams  int
	tls         bool
	tlsInsecure bool
	tlsCAFile   string
	debug       bool
}

func parseFlags() serverConfig {
	var cfg serverConfig
	flag.StringVar(&cfg.host, "host", "127.0.0.1", "SAM bridge host")
	flag.StringVar(&cfg.port, "port", strconv.Itoa(protocol.DefaultSAMPort), "SAM bridge port")
	flag.StringVar(&cfg.keyFile, "keyfile", "TRANSIENT", `path to a Base64 private key file, or "TRANSIENT"`)
	flag.StringVar(&cfg.nickname, "nickname", "I2PECHO", "session ID prefix")
	flag.StringVar(&cfg.sigType, "sigtype", "", "signature type for a caller-supplied key, 0-8 (default Ed25519)")
	flag.IntVar(&cfg.maxStreams, "max-streams", 5, "maximum concurrent accepted streams")
	flag.BoolVar(&cfg.tls, "tls", false, "use TLS to reach the bridge")
	flag.BoolVar(&cfg.tlsInsecure, "tls-insecure", false, "skip TLS certificate verification")
	flag.StringVar(&cfg.tlsCAFile, "tls-ca", "", "PEM file of the CA that signed the bridge's certificate")
	flag.BoolVar(&cfg.debug, "debug", false, "enable debug logging")
	flag.Parse()
	return cfg
}

func loadPrivateKey(path string) (string, error) {
	if path == "" || strings.EqualFold(path, protocol.DestinationTransient) {
		return protocol.DestinationTransient, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := strings.TrimRight(string(data), "\r\n")
	return key, nil
}

func run(cfg serverConfig, log *logrus.Logger) error {
	port, err := protocol.ValidatePortString(cfg.port)
	if err != nil {
		return err
	}
	if err := protocol.ValidateSessionID(cfg.nickname); err != nil {
		return fmt.Errorf("nickname: %w", err)
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

	result := svc.EstablishControlSession(sessionID, privKey, sigType, service.DefaultSessionOptions())
	if !result.Success {
		return fmt.Errorf("establish control session: %s", result.ErrorMessage)
	}
	log.WithFields(logrus.Fields{
		"session": result.CreatedSessionID,
		"address": result.LocalB32Address,
	}).Info("control session established")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slots := make(chan struct{}, cfg.maxStreams)
	for i := 0; i < cfg.maxStreams; i++ {
		slots <- struct{}{}
	}

	log.WithField("max_streams", cfg.maxStreams).Info("accepting inbound streams")

acceptLoop:
	for {
		select {
		case <-ctx.Done():
			break acceptLoop
		case <-slots:
		}

		go func() {
			defer func() { slots <- struct{}{} }()

			accepted := svc.AcceptStreamViaNewConnection(sessionID)
			if ctx.Err() != nil {
				if accepted.DataConnection != nil {
					accepted.DataConnection.Close()
				}
				return
			}
			if !accepted.Success {
				log.WithField("error", accepted.ErrorMessage).Warn("accept_stream_via_new_connection failed")
				return
			}
			log.WithField("peer", accepted.RemotePeerB32Address).Info("accepted inbound stream")
			echoLoop(ctx, accepted.DataConnection, accepted.RemotePeerB32Address, log)
		}()
	}

	log.Info("shutting down")
	svc.Shutdown()
	return nil
}

func echoLoop(ctx context.Context, conn *connection.Connection, peer string, log *logrus.Logger) {
	defer conn.Close()
	buf := make([]byte, 8192)

	for conn.IsOpen() && ctx.Err() == nil {
		n, err := conn.StreamRead(buf, 10*time.Minute)
		if err != nil {
			log.WithFields(logrus.Fields{"peer": peer, "error": err}).Info("stream closed")
			return
		}
		if err := conn.StreamWrite(buf[:n], connection.DefaultStreamWriteTimeout); err != nil {
			log.WithFields(logrus.Fields{"peer": peer, "error": err}).Info("echo write failed")
			return
		}
	}
}
