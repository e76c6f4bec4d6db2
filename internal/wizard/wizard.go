// Package wizard provides an interactive setup wizard for the SaltyRTC
// relay server: generating its permanent keypair and writing its config
// file in one guided pass.
package wizard

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/saltyrtc/saltyrtc-go/internal/config"
	"github.com/saltyrtc/saltyrtc-go/internal/identity"
	"gopkg.in/yaml.v3"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.ServerConfig
	ConfigPath string
	DataDir    string
	KeyCreated bool
}

// Wizard manages the interactive setup process.
type Wizard struct {
	existingCfg *config.ServerConfig
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{}
}

// Run executes the interactive setup wizard and returns the result of
// generating a server configuration and permanent keypair.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	configPath, dataDir, err := w.askBasicSetup()
	if err != nil {
		return nil, err
	}

	if existing, loadErr := config.LoadServerConfig(configPath); loadErr == nil {
		w.existingCfg = existing
		dataDir = existing.DataDir
		fmt.Println("\nFound an existing configuration; using its values as defaults.")
	}

	listenAddress, controlSocket, pingInterval, logLevel, err := w.askServerSettings(dataDir)
	if err != nil {
		return nil, err
	}

	cfg := config.DefaultServerConfig()
	cfg.ListenAddress = listenAddress
	cfg.DataDir = dataDir
	cfg.ControlSocket = controlSocket
	cfg.PingInterval = pingInterval
	cfg.LogLevel = logLevel

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("generated configuration is invalid: %w", err)
	}

	keypair, created, err := identity.LoadOrCreateKeypair(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize permanent keypair: %w", err)
	}

	if err := w.writeConfig(cfg, configPath); err != nil {
		return nil, err
	}

	w.printSummary(keypair, configPath, cfg, created)

	return &Result{
		Config:     cfg,
		ConfigPath: configPath,
		DataDir:    dataDir,
		KeyCreated: created,
	}, nil
}

func (w *Wizard) printBanner() {
	fmt.Println("SaltyRTC Relay Server Setup")
	fmt.Println("===========================")
	fmt.Println()
}

func (w *Wizard) askBasicSetup() (configPath, dataDir string, err error) {
	configPath = "./config.yaml"
	dataDir = "./data"

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Config file path").
				Value(&configPath).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("config path is required")
					}
					if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
						return fmt.Errorf("config file should have a .yaml or .yml extension")
					}
					return nil
				}),
			huh.NewInput().
				Title("Data directory (holds the permanent keypair)").
				Value(&dataDir).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("data directory is required")
					}
					return nil
				}),
		),
	).Run()
	return configPath, dataDir, err
}

func (w *Wizard) askServerSettings(dataDir string) (listenAddress, controlSocket string, pingInterval time.Duration, logLevel string, err error) {
	listenAddress = ":8765"
	controlSocket = dataDir + "/control.sock"
	logLevel = "info"
	pingIntervalStr := "20s"

	if w.existingCfg != nil {
		listenAddress = w.existingCfg.ListenAddress
		controlSocket = w.existingCfg.ControlSocket
		logLevel = w.existingCfg.LogLevel
		pingIntervalStr = w.existingCfg.PingInterval.String()
	}

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Description("Address the WebSocket listener binds to").
				Value(&listenAddress).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("listen address is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Control socket path").
				Description("Unix socket for the read-only admin interface, or empty to disable").
				Value(&controlSocket),
			huh.NewInput().
				Title("Client ping interval").
				Value(&pingIntervalStr).
				Validate(func(s string) error {
					_, e := time.ParseDuration(s)
					return e
				}),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&logLevel),
		),
	).Run()
	if err != nil {
		return
	}

	pingInterval, err = time.ParseDuration(pingIntervalStr)
	return
}

func (w *Wizard) writeConfig(cfg *config.ServerConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (w *Wizard) printSummary(kp *identity.Keypair, configPath string, cfg *config.ServerConfig, created bool) {
	fmt.Println()
	fmt.Println("Setup complete.")
	fmt.Println("===============")
	fmt.Printf("Config file:    %s\n", configPath)
	fmt.Printf("Data directory: %s\n", cfg.DataDir)
	fmt.Printf("Listen address: %s\n", cfg.ListenAddress)
	if created {
		fmt.Println("Permanent keypair: generated")
	} else {
		fmt.Println("Permanent keypair: loaded existing")
	}
	fmt.Printf("Public key:     %s\n", kp.PublicKeyString())
	fmt.Println()
	fmt.Println("Start the server with:")
	fmt.Printf("  saltyrtc-server serve -c %s\n", configPath)
}
