package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	gojareqbridge "github.com/joeycumines/go-reqbridge/goja-reqbridge"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func run(ctx context.Context, cfg *config, script string) error {
	src, err := os.ReadFile(script)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	return runScript(ctx, cfg, logger, script, string(src))
}

func newLogger(w io.Writer, level string) (*logiface.Logger[logiface.Event], error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(lvl),
	).Logger(), nil
}

// runScript runs src until the loop is idle, i.e. until the script and every
// request it made have completed. Cancelling ctx terminates the loop, and
// abandons any in-flight requests.
func runScript(ctx context.Context, cfg *config, logger *logiface.Logger[logiface.Event], name, src string) error {
	registry := require.NewRegistry()
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)

	stop := context.AfterFunc(ctx, loop.Terminate)
	defer stop()

	var (
		module *gojareqbridge.Module
		err    error
	)
	loop.Run(func(runtime *goja.Runtime) {
		module, err = gojareqbridge.New(
			runtime,
			gojareqbridge.WithLoop(loop),
			gojareqbridge.WithLogger(logger),
			gojareqbridge.WithPollInterval(cfg.PollInterval),
			gojareqbridge.WithDispatcherOptions(cfg.dispatcherOptions()...),
		)
		if err != nil {
			return
		}
		module.Enable()
		registry.RegisterNativeModule(`reqwest`, module.Require())
		_, err = runtime.RunScript(name, src)
	})

	if module == nil {
		return err
	}

	if ctx.Err() != nil {
		logger.Notice().
			Int(`pending`, module.Dispatcher().Pending()).
			Log(`interrupted, abandoning in-flight requests`)
		if closeErr := module.Close(); err == nil {
			err = closeErr
		}
		if err == nil {
			err = ctx.Err()
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if shutdownErr := module.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warning().
			Err(shutdownErr).
			Log(`shutdown did not complete gracefully`)
		if err == nil {
			err = fmt.Errorf("shutdown: %w", shutdownErr)
		}
	}

	return err
}
