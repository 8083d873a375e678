package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"servostep/config"
	"servostep/host/link"
	"servostep/observability/log"
)

var (
	configPath = flag.String("config", "", "YAML configuration file (default: one servo on pin 0)")
	device     = flag.String("device", "", "Serial device path, overrides the config file")
	baud       = flag.Int("baud", 0, "Baud rate, overrides the config file (ignored for USB CDC)")
	sim        = flag.Bool("sim", false, "Run against an in-process simulated firmware")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error, silent")
)

func main() {
	flag.Parse()

	if err := realMain(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func realMain() error {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	level := cfg.Level()
	if *logLevel != "" {
		parsed, err := log.ParseLevel(*logLevel)
		if err != nil {
			return err
		}
		level = parsed
	}

	logger := log.New(level)
	defer logger.Sync()

	l := link.New(logger)
	if *sim {
		lb, err := link.NewLoopback(logger)
		if err != nil {
			return fmt.Errorf("failed to start simulated firmware: %w", err)
		}
		if err := l.ConnectPort(lb); err != nil {
			return err
		}
		fmt.Println("Connected to simulated firmware")
	} else {
		fmt.Printf("Connecting to firmware on %s...\n", cfg.Serial.Device)
		if err := l.Connect(cfg.SerialPort()); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		fmt.Println("Connected successfully!")
	}
	defer l.Close()

	if err := l.RetrieveDictionary(); err != nil {
		return fmt.Errorf("failed to retrieve dictionary: %w", err)
	}

	sess, err := newSession(l, cfg, logger, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	return run(ctx, sess, os.Stdin, true)
}
