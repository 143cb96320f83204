// Command reqbridge runs a JavaScript file on a goja_nodejs event loop, with
// the reqwest function available as both a global, and via
// require('reqwest').
//
// Usage:
//
//	reqbridge [flags] script.js
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newCommand().Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      `reqbridge`,
		Usage:     `run a script with asynchronous HTTP requests`,
		ArgsUsage: `script.js`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    `config`,
				Aliases: []string{`c`},
				Usage:   `path to a TOML config file`,
			},
			&cli.DurationFlag{
				Name:  `timeout`,
				Usage: `default per-request timeout`,
			},
			&cli.StringFlag{
				Name:  `user-agent`,
				Usage: `User-Agent header for requests that don't set one`,
			},
			&cli.IntFlag{
				Name:  `max-concurrency`,
				Usage: `maximum in-flight requests, 0 for unlimited`,
			},
			&cli.StringFlag{
				Name:  `log-level`,
				Usage: `one of trace, debug, info, notice, warning, err, crit, alert, emerg, disabled`,
			},
			&cli.DurationFlag{
				Name:  `poll-interval`,
				Usage: `interval at which completed requests are delivered`,
			},
			&cli.DurationFlag{
				Name:  `shutdown-timeout`,
				Usage: `how long to wait for in-flight requests on exit`,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return cli.Exit(`expected exactly one script argument`, 2)
			}
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return run(ctx, cfg, cmd.Args().First())
		},
	}
}

// resolveConfig applies defaults, then the config file, then any flags.
func resolveConfig(cmd *cli.Command) (*config, error) {
	cfg := defaultConfig()
	if path := cmd.String(`config`); path != `` {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if cmd.IsSet(`timeout`) {
		cfg.Timeout = cmd.Duration(`timeout`)
	}
	if cmd.IsSet(`user-agent`) {
		cfg.UserAgent = cmd.String(`user-agent`)
	}
	if cmd.IsSet(`max-concurrency`) {
		cfg.MaxConcurrency = int(cmd.Int(`max-concurrency`))
	}
	if cmd.IsSet(`log-level`) {
		cfg.LogLevel = cmd.String(`log-level`)
	}
	if cmd.IsSet(`poll-interval`) {
		cfg.PollInterval = cmd.Duration(`poll-interval`)
	}
	if cmd.IsSet(`shutdown-timeout`) {
		cfg.ShutdownTimeout = cmd.Duration(`shutdown-timeout`)
	}
	return cfg, nil
}
