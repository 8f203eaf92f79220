package main

import "github.com/urfave/cli/v3"

var (
	modelPath  string
	maxContext int64
	threads    int64
	gpuLayers  int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to the model file",
			Destination: &modelPath,
		},
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"ctx", "c"},
			Usage:       "max context length",
			Value:       4096,
			Destination: &maxContext,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Usage:       "engine threads (0 = auto)",
			Destination: &threads,
		},
		&cli.Int64Flag{
			Name:        "gpu-layers",
			Aliases:     []string{"ngl"},
			Usage:       "layers to offload to the GPU",
			Destination: &gpuLayers,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
