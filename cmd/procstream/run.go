package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codecrafters-io/procstream/config"
	"github.com/codecrafters-io/procstream/logger"
	"github.com/codecrafters-io/procstream/relay"
	"github.com/spf13/cobra"
)

type runFlags struct {
	configPath string
	env        []string
	detached   bool
	usePTY     bool
	debug      bool
	bufferSize int
	dispatcher string
	workingDir string
	timeout    time.Duration
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command, relaying its standard streams",
		Long: `Run a command under a supervisor, relaying stdin, stdout and stderr one
acknowledged chunk at a time. procstream exits with the command's exit code.

Settings are read from the config file (YAML or TOML), then PROCSTREAM_*
environment variables, then flags.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "config file (.yml, .yaml or .toml)")
	cmd.Flags().StringArrayVarP(&flags.env, "env", "e", nil, "extra environment variable as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&flags.detached, "detached", false, "leave the process running once its output ends")
	cmd.Flags().BoolVar(&flags.usePTY, "pty", false, "connect the process to pseudo-terminals")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "log supervisor activity to stderr")
	cmd.Flags().IntVar(&flags.bufferSize, "buffer-size", 0, "read buffer size per output stream")
	cmd.Flags().StringVar(&flags.dispatcher, "dispatcher", "", "blocking pool to run I/O on")
	cmd.Flags().StringVar(&flags.workingDir, "workdir", "", "working directory of the process")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "destroy the process after this long (0 waits forever)")

	return cmd
}

func runCommand(cmd *cobra.Command, flags *runFlags, args []string) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	log := logger.New(cmd.ErrOrStderr(), cfg.Debug, "[procstream] ")

	opts, err := cfg.ExecutableOptions(args, nil, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	result, err := relay.Run(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if errors.Is(err, context.DeadlineExceeded) {
		log.Infof("%s timed out after %s", args[0], flags.timeout)
	}
	if err != nil {
		return err
	}

	if result.Detached {
		log.Successf("%s is still running as pid %d", args[0], result.Pid)
		return nil
	}

	if result.ExitCode != 0 {
		return exitCodeError{code: result.ExitCode}
	}

	return nil
}

// loadConfig layers the config file, the environment and explicitly set flags.
func loadConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed

	if changed("detached") {
		cfg.Detached = flags.detached
	}
	if changed("pty") {
		cfg.UsePTY = flags.usePTY
	}
	if changed("debug") {
		cfg.Debug = flags.debug
	}
	if changed("buffer-size") {
		cfg.BufferSize = flags.bufferSize
	}
	if changed("dispatcher") {
		cfg.Dispatcher = flags.dispatcher
	}
	if changed("workdir") {
		cfg.WorkingDir = flags.workingDir
	}

	for _, pair := range flags.env {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--env expects KEY=VALUE, got %q", pair)
		}

		if cfg.Env == nil {
			cfg.Env = make(map[string]string)
		}
		cfg.Env[key] = value
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
