// Command proxyname advertises this device as a BLE peripheral with a
// single write-only characteristic and waits for a remote central to write
// a proxy device name to it. The name is printed to stdout.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/chaz8081/proxyname/internal/ble"
	"github.com/chaz8081/proxyname/internal/config"
)

var cli struct {
	Config     string `help:"Path to config file (default: ~/.config/proxyname/config.yaml)." type:"path"`
	Name       string `help:"Override the advertised local device name."`
	Adapter    string `help:"Override the BLE controller ID (Linux only)."`
	Verbose    bool   `short:"v" help:"Enable debug logging."`
	InitConfig bool   `help:"Write a default config file and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("proxyname"),
		kong.Description("Advertise a BLE peripheral and wait for a central to write a proxy device name."),
	)

	if cli.InitConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Println("Config file already exists, leaving it untouched")
		} else {
			log.Printf("Wrote default config to %s", path)
		}
		return
	}

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cli.Name != "" {
		cfg.DeviceName = cli.Name
	}
	if cli.Adapter != "" {
		cfg.Adapter = cli.Adapter
	}
	if cli.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	// Validate guarantees both UUIDs parse.
	serviceUUID := uuid.MustParse(cfg.ServiceUUID)
	charUUID := uuid.MustParse(cfg.ProxyNameCharUUID)

	adapter, err := ble.NewDefaultAdapter(cfg.Adapter)
	if err != nil {
		log.Fatalf("adapter: %v", err)
	}

	// Two operator cancellation sources folded into one context: SIGINT or
	// SIGTERM, and a line of console input.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		cancel()
	}()

	log.Printf("Waiting for a proxy device name to be written. Press enter to quit.")
	name, err := ble.AwaitProxyName(ctx, adapter, ble.Options{
		DeviceName:        cfg.DeviceName,
		ServiceUUID:       serviceUUID,
		ProxyNameCharUUID: charUUID,
	})
	if err != nil {
		if errors.Is(err, ble.ErrCancelled) {
			log.Fatalf("Cancelled before a proxy device name was written")
		}
		log.Fatalf("Failed to collect a proxy device name: %v", err)
	}

	fmt.Println(name)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}
