// Command actuatorctl drives the actuator peer from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"actuatorlink/config"
	"actuatorlink/host/bridge"
	"actuatorlink/host/link"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	transport  string
	device     string
	address    uint16
	framing    string
	poll       time.Duration
	logLevel   string
	logFormat  string
	logFile    string
}

func run(args []string) error {
	var opts options
	flags := pflag.NewFlagSet("actuatorctl", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.transport, "transport", "", "bus to use: i2c, serial or sim")
	flags.StringVarP(&opts.device, "device", "d", "", "i2c-dev or serial device path")
	flags.Uint16Var(&opts.address, "address", 0, "7-bit peer address (i2c only)")
	flags.StringVar(&opts.framing, "framing", "", "reply framing: first_brace or balanced")
	flags.DurationVar(&opts.poll, "poll", 0, "start status polling at this interval")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "text or json")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file, rotated by size")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(&opts, flags)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(cfg.Bridge(),
		bridge.WithLogger(logger),
		bridge.WithFramer(cfg.Framer()),
		bridge.WithOpener(link.Opener(cfg, logger)),
	)

	fmt.Println("actuatorctl - actuator link console")
	fmt.Printf("Connecting over %s...\n", cfg.Transport)
	if err := b.Init(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer b.Close()

	sh := newShell(b, os.Stdout)
	if cfg.Polling.Enabled {
		if err := sh.startPolling(cfg.Polling.Interval); err != nil {
			return err
		}
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	return sh.run(ctx, os.Stdin)
}

func loadConfig(opts *options, flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("transport") {
		cfg.Transport = opts.transport
	}
	if flags.Changed("device") {
		if cfg.Transport == config.TransportSerial {
			cfg.Serial.Device = opts.device
		} else {
			cfg.I2C.Device = opts.device
		}
	}
	if flags.Changed("address") {
		cfg.I2C.Address = opts.address
	}
	if flags.Changed("framing") {
		cfg.Framing = opts.framing
	}
	if flags.Changed("poll") {
		cfg.Polling.Enabled = opts.poll > 0
		if opts.poll > 0 {
			cfg.Polling.Interval = opts.poll
		}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog handler named by cfg.Log. Without a log file,
// output goes to stderr so it does not interleave with the console.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
		out = rotator
		closeFn = func() { rotator.Close() }
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closeFn, nil
}
