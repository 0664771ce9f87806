// setport 单次路由切换：setport [--config file] <input> <output>
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/config"
	"github.com/taoyao-code/hdmi-matrix/internal/controller"
	"github.com/taoyao-code/hdmi-matrix/internal/logging"
	"github.com/taoyao-code/hdmi-matrix/internal/transport"
)

func main() {
	configPath := flag.StringP("config", "c", "", "config file (default: $HDMX_CONFIG or configs/example.yaml)")
	verbose := flag.BoolP("verbose", "v", false, "log frames at debug level")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [--config file] [-v] <input> <output>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*configPath, *verbose, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Done")
}

func run(configPath string, verbose bool, args []string) error {
	if len(args) != 2 {
		flag.Usage()
		return fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	input, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("input %q: %w", args[0], err)
	}
	output, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("output %q: %w", args[1], err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := config.LoggingConfig{Level: "warn", Format: "console"}
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.NewWithWriter(logCfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	port, err := transport.Open(cfg.Serial,
		transport.WithLogger(logger),
		transport.WithSimulatorPorts(cfg.Matrix.MaxPorts))
	if err != nil {
		return err
	}
	defer port.Close()

	ctrl, err := controller.New(port, cfg.Matrix.MaxPorts, cfg.Matrix.ResponseTimeout, controller.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := ctrl.ChangePort(context.Background(), output, input); err != nil {
		logger.Debug("change port failed", zap.Error(err))
		return fmt.Errorf("change port (output %d <- input %d): %w", output, input, err)
	}
	return nil
}
