package spacecatscli

import (
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

var CommonOpts struct {
	Console  bool
	Dry      bool
	Env      string
	LogLevel string
	Port     int
}

var ConsoleFlag = cli.BoolFlag{
	Name:        "console",
	Usage:       "whether to run in console mode (human readable logs, no lambda)",
	Value:       false,
	EnvVars:     []string{"CONSOLE"},
	Destination: &CommonOpts.Console,
}
var DryFlag = cli.BoolFlag{
	Name:        "dry",
	Usage:       "log compaction decisions instead of submitting ledger transactions",
	Value:       false,
	EnvVars:     []string{"DRY"},
	Destination: &CommonOpts.Dry,
}
var EnvFlag = cli.StringFlag{
	Name:        "env",
	Usage:       "environment",
	Value:       "local",
	EnvVars:     []string{"ENV"},
	Destination: &CommonOpts.Env,
}
var LogLevelFlag = cli.StringFlag{
	Name:        "log-level",
	Usage:       "minimum log level (trace, debug, info, warn, error)",
	Value:       "info",
	EnvVars:     []string{"LOG_LEVEL"},
	Destination: &CommonOpts.LogLevel,
}
var PortFlag = func(p int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "port",
		Usage:       "Port to listen to",
		Value:       p,
		EnvVars:     []string{"PORT"},
		Destination: &CommonOpts.Port,
	}
}

var CommonFlags = []cli.Flag{
	&ConsoleFlag,
	&DryFlag,
	&EnvFlag,
	&LogLevelFlag,
}

// EnvVar derives the environment variable bound to a flag, e.g.
// "arweave-url" becomes "ARWEAVE_URL".
func EnvVar(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func StringFlag(name, usage string, dest *string, value ...string) *cli.StringFlag {
	f := &cli.StringFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
	if len(value) > 0 {
		f.Value = value[0]
	}
	return f
}

func BoolFlag(name, usage string, dest *bool, value ...bool) *cli.BoolFlag {
	f := &cli.BoolFlag{
		Name:        name,
		Usage:       usage,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
	if len(value) > 0 {
		f.Value = value[0]
	}
	return f
}

func IntFlag(name, usage string, dest *int, value int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
}

func Uint64Flag(name, usage string, dest *uint64, value uint64) *cli.Uint64Flag {
	return &cli.Uint64Flag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
}

func DurationFlag(name, usage string, dest *time.Duration, value time.Duration) *cli.DurationFlag {
	return &cli.DurationFlag{
		Name:        name,
		Usage:       usage,
		Value:       value,
		EnvVars:     []string{EnvVar(name)},
		Destination: dest,
	}
}
