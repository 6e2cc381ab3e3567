package supervisor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"servecheck/internal/common/procutil"
)

// GPUEnvVar tells the serving process how many GPUs it may use.
const GPUEnvVar = "TS_NUMBER_OF_GPU"

// LaunchSpec carries the serving process launch parameters.
type LaunchSpec struct {
	StoreDir     string
	Models       []string
	ServerConfig string
	LogConfig    string
	LogFile      string
	GPUs         int
}

// Args renders the serving binary's --start arguments.
func (s LaunchSpec) Args() []string {
	args := []string{"--start", "--ncs", "--model-store=" + s.StoreDir}
	if len(s.Models) > 0 {
		args = append(args, "--models="+strings.Join(s.Models, ","))
	}
	if s.ServerConfig != "" {
		args = append(args, "--ts-config="+s.ServerConfig)
	}
	if s.LogConfig != "" {
		args = append(args, "--log-config", s.LogConfig)
	}
	return args
}

// Env is the environment added for the serving process.
func (s LaunchSpec) Env() map[string]string {
	return map[string]string{GPUEnvVar: strconv.Itoa(s.GPUs)}
}

// Launcher starts and stops the serving process. Start returns once the launch
// command has finished; readiness is checked separately.
type Launcher interface {
	Start(ctx context.Context, spec LaunchSpec) error
	Stop(ctx context.Context) error
}

// CommandLauncher drives a daemonizing serving binary (torchserve --start/--stop).
type CommandLauncher struct {
	Bin string
	Log zerolog.Logger
	// logFile receives stop output too once Start has run.
	logFile string
}

func NewCommandLauncher(bin string, log zerolog.Logger) *CommandLauncher {
	return &CommandLauncher{Bin: bin, Log: log}
}

func (l *CommandLauncher) Start(ctx context.Context, spec LaunchSpec) error {
	c := procutil.Cmd{Path: l.Bin, Args: spec.Args(), Env: spec.Env()}
	if spec.LogFile != "" {
		f, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		c.Stdout, c.Stderr = f, f
		l.logFile = spec.LogFile
		l.Log.Info().Str("log_file", spec.LogFile).Msg("console logs redirected")
	}
	l.Log.Debug().Str("cmd", c.String()).Msg("executing start command")
	return procutil.Run(ctx, c)
}

func (l *CommandLauncher) Stop(ctx context.Context) error {
	c := procutil.Cmd{Path: l.Bin, Args: []string{"--stop"}}
	if l.logFile != "" {
		if f, err := os.OpenFile(l.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			defer f.Close()
			c.Stdout, c.Stderr = f, f
		}
	}
	if c.Stdout == nil {
		lw := &procutil.LineLogger{Log: l.Log, Prefix: "server"}
		c.Stdout, c.Stderr = lw, lw
	}
	l.Log.Debug().Str("cmd", c.String()).Msg("executing stop command")
	return procutil.Run(ctx, c)
}
