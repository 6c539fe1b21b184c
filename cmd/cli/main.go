package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/vk/forgebuild/internal/app"
	"github.com/vk/forgebuild/internal/cli"
	"github.com/vk/forgebuild/internal/hcl"
)

// main is the entrypoint for the forgebuild tool.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// A local .env may supply defaults such as FORGEBUILD_LOG_LEVEL; absence
	// is not an error.
	_ = godotenv.Load()

	if err := run(os.Stdout, envDefaults(os.Args[1:])); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	ctx := context.Background()
	loader := hcl.NewLoader()
	buildApp, err := app.New(ctx, outW, appConfig, loader)
	if err != nil {
		return err
	}

	return buildApp.Run(ctx, appConfig)
}

// envDefaults prepends flag values taken from the environment, so explicit
// command-line flags still win.
func envDefaults(args []string) []string {
	var defaults []string
	if v := os.Getenv("FORGEBUILD_LOG_LEVEL"); v != "" {
		defaults = append(defaults, "-log-level", v)
	}
	if v := os.Getenv("FORGEBUILD_LOG_FORMAT"); v != "" {
		defaults = append(defaults, "-log-format", v)
	}
	return append(defaults, args...)
}
