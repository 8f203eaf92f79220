package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/emberml/ember/internal/logger"
	"github.com/emberml/ember/internal/session"
)

func runCmd() *cli.Command {
	var (
		prompt        string
		system        string
		maxTokens     int64
		temp          float64
		topK          int64
		topP          float64
		repeatPenalty float64
		penaltyLastN  int64
		seed          int64
		stop          []string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate text from a prompt, streaming to stdout",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "system",
				Aliases:     []string{"sys"},
				Usage:       "optional system prompt",
				Destination: &system,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Aliases:     []string{"n"},
				Usage:       "max tokens to generate (0 = until a stop condition)",
				Destination: &maxTokens,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature (0 = greedy)",
				Value:       0.8,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "top-k cutoff (0 = disabled)",
				Value:       40,
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "nucleus sampling threshold",
				Value:       0.95,
				Destination: &topP,
			},
			&cli.Float64Flag{
				Name:        "repeat-penalty",
				Usage:       "repetition penalty (1 = disabled)",
				Value:       1.1,
				Destination: &repeatPenalty,
			},
			&cli.Int64Flag{
				Name:        "penalty-last-n",
				Usage:       "tokens the repetition penalty looks back over",
				Value:       64,
				Destination: &penaltyLastN,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling seed (unset = random per call)",
				Destination: &seed,
			},
			&cli.StringSliceFlag{
				Name:        "stop",
				Usage:       "stop sequence, repeatable",
				Destination: &stop,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			applySamplingConfig(cmd, cfg, &temp, &topK, &topP, &repeatPenalty, &penaltyLastN)

			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}

			log := buildLogger()
			ctx = logger.WithContext(ctx, log)
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			// Ctrl-C cancels at the next decode boundary; the partial
			// output already printed stands.
			ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			params := session.Params{
				Temperature:   temp,
				TopK:          int(topK),
				TopP:          topP,
				RepeatPenalty: repeatPenalty,
				PenaltyLastN:  int(penaltyLastN),
				MaxTokens:     int(maxTokens),
				Stop:          stop,
			}
			if cmd.IsSet("seed") {
				params.Seed = &seed
			} else if cfg.Seed != nil {
				params.Seed = cfg.Seed
			}

			p := session.Prompt{Text: prompt}
			if system != "" {
				p = session.Prompt{Messages: []session.Message{
					{Role: "system", Content: system},
					{Role: "user", Content: prompt},
				}}
			}

			st, err := sess.Generate(ctx, p, params)
			if err != nil {
				return err
			}
			for frag := range st.Tokens() {
				fmt.Print(frag)
			}
			fmt.Println()

			if err := st.Err(); err != nil {
				return err
			}
			if st.State() == session.StateCancelled {
				log.Info("generation cancelled")
			}
			return nil
		},
	}
}
