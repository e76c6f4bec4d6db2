// Package main provides the CLI entry point for the SaltyRTC relay server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saltyrtc/saltyrtc-go/internal/config"
	"github.com/saltyrtc/saltyrtc-go/internal/control"
	"github.com/saltyrtc/saltyrtc-go/internal/crypto"
	"github.com/saltyrtc/saltyrtc-go/internal/identity"
	"github.com/saltyrtc/saltyrtc-go/internal/logging"
	"github.com/saltyrtc/saltyrtc-go/internal/metrics"
	"github.com/saltyrtc/saltyrtc-go/internal/relayserver"
	"github.com/saltyrtc/saltyrtc-go/internal/transport"
	"github.com/saltyrtc/saltyrtc-go/internal/wizard"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "saltyrtc-server",
		Short:   "SaltyRTC relay server",
		Long:    "saltyrtc-server relays end-to-end encrypted SaltyRTC signaling frames between an initiator and its responders without ever seeing their peer session key.",
		Version: version,
	}

	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pathsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long:  "Run an interactive wizard to generate a permanent keypair and write a relay server config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wizard.New().Run()
			return err
		},
	}
}

func keygenCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate or show the server's permanent keypair",
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

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := logging.NewLoggerWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)
			slog.SetDefault(logger)

			kp, created, err := identity.LoadOrCreateKeypair(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("failed to load or create permanent keypair: %w", err)
			}
			if created {
				logger.Info("generated new permanent keypair", "public_key", kp.PublicKeyShortString())
			}

			var longTermKey *crypto.KeyPair
			if cfg.LongTermKeyFile != "" {
				longTermKey, err = loadLongTermKey(cfg.LongTermKeyFile)
				if err != nil {
					return fmt.Errorf("failed to load long-term signing key: %w", err)
				}
			}

			listenOpts := transport.ListenOptions{}
			if cfg.TLS.HasCert() {
				certPEM, err := cfg.TLS.GetCertPEM()
				if err != nil {
					return fmt.Errorf("failed to read tls cert: %w", err)
				}
				keyPEM, err := cfg.TLS.GetKeyPEM()
				if err != nil {
					return fmt.Errorf("failed to read tls key: %w", err)
				}
				tlsCfg, err := transport.TLSConfigFromBytes(certPEM, keyPEM)
				if err != nil {
					return fmt.Errorf("failed to build tls config: %w", err)
				}
				listenOpts.TLSConfig = tlsCfg
			}

			listener, err := transport.ListenWebSocket(cfg.ListenAddress, listenOpts)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress, err)
			}

			relayMetrics := metrics.NewMetrics()
			server := relayserver.NewServer(listener, relayserver.Config{
				LongTermKey: longTermKey,
				Logger:      logger,
				Metrics:     relayMetrics,
			})

			var controlServer *control.Server
			if cfg.ControlSocket != "" {
				controlServer = control.NewServer(control.ServerConfig{
					SocketPath: cfg.ControlSocket,
				}, server)
				if err := controlServer.Start(); err != nil {
					return fmt.Errorf("failed to start control server: %w", err)
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Serve(ctx) }()

			logger.Info("relay server listening", "address", cfg.ListenAddress)

			select {
			case sig := <-sigCh:
				logger.Info("received signal, shutting down", "signal", sig.String())
				cancel()
				server.Close()
			case err := <-errCh:
				cancel()
				if err != nil {
					return err
				}
			}

			if controlServer != nil {
				_ = controlServer.Stop()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to the relay server config file")
	return cmd
}

func statusCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the relay server's path count via its control socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(socketPath)
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			status, err := client.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to query status: %w", err)
			}
			fmt.Printf("Paths: %d\n", status.PathCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&socketPath, "socket", "s", "./data/control.sock", "Path to the control socket")
	return cmd
}

func pathsCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "List signaling paths currently served",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := control.NewClient(socketPath)
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			paths, err := client.Paths(ctx)
			if err != nil {
				return fmt.Errorf("failed to query paths: %w", err)
			}
			if len(paths.Paths) == 0 {
				fmt.Println("No paths currently served.")
				return nil
			}
			fmt.Printf("%-68s %-12s %s\n", "PATH", "INITIATOR", "RESPONDERS")
			for _, p := range paths.Paths {
				fmt.Printf("%-68s %-12v %d\n", p.Path, p.HasInitiator, p.ResponderCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&socketPath, "socket", "s", "./data/control.sock", "Path to the control socket")
	return cmd
}

func loadLongTermKey(path string) (*crypto.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	priv, err := identity.ParseKey(string(data))
	if err != nil {
		return nil, fmt.Errorf("long-term key file must contain a hex-encoded private key: %w", err)
	}
	kp := identity.KeypairFromPrivate(priv)
	return &crypto.KeyPair{Public: kp.PublicKey, Private: kp.PrivateKey}, nil
}

