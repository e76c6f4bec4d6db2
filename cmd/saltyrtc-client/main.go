// Package main provides a demo CLI client that drives the signaling core
// against a relay server, either as an initiator or a responder, running
// the ping task once the peer handshake completes.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saltyrtc/saltyrtc-go/internal/config"
	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
	"github.com/saltyrtc/saltyrtc-go/internal/identity"
	"github.com/saltyrtc/saltyrtc-go/internal/logging"
	"github.com/saltyrtc/saltyrtc-go/internal/signaling"
	"github.com/saltyrtc/saltyrtc-go/internal/task"
	"github.com/saltyrtc/saltyrtc-go/internal/transport"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "saltyrtc-client",
		Short:   "SaltyRTC demo signaling client",
		Long:    "saltyrtc-client connects to a relay server as an initiator or responder and exchanges ping/pong task messages once the peer handshake completes.",
		Version: version,
	}

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(connectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate or show this client's permanent keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, created, err := identity.LoadOrCreateKeypair(dataDir)
			if err != nil {
				return fmt.Errorf("failed to load or create keypair: %w", err)
			}
			if created {
				fmt.Printf("Generated a new permanent keypair in %s\n", dataDir)
			} else {
				fmt.Printf("Loaded existing permanent keypair from %s\n", dataDir)
			}
			fmt.Printf("Public key: %s\n", kp.PublicKeyString())
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "./data", "Directory holding the permanent keypair")
	return cmd
}

func connectCmd() *cobra.Command {
	var configPath string
	var pingEvery time.Duration

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the relay server and run the ping task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := logging.NewLoggerWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)
			slog.SetDefault(logger)

			kp, _, err := identity.LoadOrCreateKeypair(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("failed to load or create permanent keypair: %w", err)
			}
			permanentKey := crypto.KeyPair{Public: kp.PublicKey, Private: kp.PrivateKey}

			var expectedServerKey *[crypto.KeySize]byte
			if cfg.ExpectedServerKey != "" {
				key, err := identity.ParseKey(cfg.ExpectedServerKey)
				if err != nil {
					return fmt.Errorf("invalid expected_server_key: %w", err)
				}
				expectedServerKey = &key
			}

			pong := make(chan struct{}, 1)
			pingTask := task.NewPingTask(func() {
				select {
				case pong <- struct{}{}:
				default:
				}
			})

			events := signaling.EventHandlers{
				OnStateChanged: func(s signaling.State) {
					logger.Info("state changed", "state", s.String())
				},
				OnConnectionLost: func() {
					logger.Warn("connection lost")
				},
				OnClose: func(code signaling.CloseCode, reason string) {
					logger.Info("connection closed", "code", code, "reason", reason)
				},
			}

			var s *signaling.Signaling
			switch cfg.Role {
			case "initiator":
				s = signaling.NewInitiator(permanentKey, signaling.InitiatorConfig{}, []signaling.Task{pingTask}, expectedServerKey, logger, events)
			case "responder":
				roleCfg, err := responderConfigFrom(cfg)
				if err != nil {
					return err
				}
				s, err = signaling.NewResponder(permanentKey, roleCfg, []signaling.Task{pingTask}, expectedServerKey, logger, events)
				if err != nil {
					return fmt.Errorf("invalid responder configuration: %w", err)
				}
			default:
				return fmt.Errorf("role must be \"initiator\" or \"responder\", got %q", cfg.Role)
			}

			tlsConfig, err := dialTLSConfig(cfg)
			if err != nil {
				return err
			}

			dialer := transport.NewWebSocketDialer()
			dialOpts := transport.DefaultDialOptions()
			dialOpts.TLSConfig = tlsConfig
			dialOpts.StrictVerify = !cfg.TLS.InsecureSkipVerify

			ctx, cancel := context.WithCancel(context.Background())
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("received signal, disconnecting")
				cancel()
			}()

			conn, err := dialer.Dial(ctx, cfg.ServerAddress, s.Path(), dialOpts)
			if err != nil {
				return fmt.Errorf("failed to dial relay server: %w", err)
			}

			runErrCh := make(chan error, 1)
			go func() { runErrCh <- s.Run(ctx, conn) }()

			if pingEvery > 0 {
				go runPingLoop(ctx, pingTask, pingEvery, logger, pong)
			}

			return <-runErrCh
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./client.yaml", "Path to the client config file")
	cmd.Flags().DurationVar(&pingEvery, "ping-every", 10*time.Second, "Send a ping at this interval once the task is active; 0 disables")
	return cmd
}

func responderConfigFrom(cfg *config.ClientConfig) (signaling.ResponderConfig, error) {
	var roleCfg signaling.ResponderConfig

	if cfg.InitiatorTrustedKey != "" {
		key, err := identity.ParseKey(cfg.InitiatorTrustedKey)
		if err != nil {
			return roleCfg, fmt.Errorf("invalid initiator_trusted_key: %w", err)
		}
		roleCfg.InitiatorTrustedKey = &key
		return roleCfg, nil
	}

	if cfg.InitiatorPublicKey == "" || cfg.AuthToken == "" {
		return roleCfg, fmt.Errorf("responder role requires either initiator_trusted_key, or both initiator_public_key and auth_token")
	}

	pubKey, err := identity.ParseKey(cfg.InitiatorPublicKey)
	if err != nil {
		return roleCfg, fmt.Errorf("invalid initiator_public_key: %w", err)
	}
	roleCfg.InitiatorPublicKey = &pubKey

	tokenKey, err := identity.ParseKey(cfg.AuthToken)
	if err != nil {
		return roleCfg, fmt.Errorf("invalid auth_token: %w", err)
	}
	authToken := crypto.AuthToken(tokenKey)
	roleCfg.AuthToken = &authToken

	return roleCfg, nil
}

func dialTLSConfig(cfg *config.ClientConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
	}

	if cfg.TLS.HasCA() {
		caPEM, err := cfg.TLS.GetCAPEM()
		if err != nil {
			return nil, fmt.Errorf("failed to read tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse tls ca: no certificates found")
		}
		tlsCfg.RootCAs = pool
	}

	if !cfg.TLS.HasCA() && !cfg.TLS.InsecureSkipVerify {
		return nil, nil
	}
	return tlsCfg, nil
}

func runPingLoop(ctx context.Context, t *task.PingTask, every time.Duration, logger *slog.Logger, pong <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Ping(); err != nil {
				logger.Debug("ping send failed (task not yet active)", "error", err)
			}
		case <-pong:
			logger.Info("received pong", "total_received", t.Received())
		}
	}
}

