package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/emberml/ember/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "ember",
		Usage: "Serialized session layer over a native inference engine",
		Flags: loggingFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			embedCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger() logger.Logger {
	level := logLevel
	if debug {
		level = "debug"
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, logger.ParseLevel(level))
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logger.ParseLevel(level),
		}))
	default:
		return logger.Pretty(os.Stderr, logger.ParseLevel(level))
	}
}
