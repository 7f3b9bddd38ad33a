// Package spacecatscli provides the common CLI boilerplate shared by the
// spacecats binaries.
//
// This package includes service identity, common CLI flags bound to
// environment variables, structured logging setup, CloudWatch metrics and
// build information tracking.
package spacecatscli

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func App(service Service, action cli.ActionFunc, flags ...cli.Flag) *cli.App {
	return &cli.App{
		Name:                 service.Name,
		Usage:                fmt.Sprintf("%v service", service.Name),
		Version:              service.Version,
		EnableBashCompletion: true,
		Before:               InitCommonOpts,
		Action:               action,
		Flags:                flags,
	}
}

// InitCommonOpts applies the common options once flags have been parsed.
func InitCommonOpts(c *cli.Context) error {
	if CommonOpts.LogLevel == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(CommonOpts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", CommonOpts.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func CommitHash() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
		return info.Main.Version
	}
	return "unknown"
}
