package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/emberml/ember/internal/logger"
)

func embedCmd() *cli.Command {
	var (
		text    string
		rawJSON bool
	)

	return &cli.Command{
		Name:  "embed",
		Usage: "Extract an embedding vector for a text",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "text",
				Usage:       "input text (reads stdin when omitted)",
				Destination: &text,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the vector as a JSON array",
				Destination: &rawJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)

			if text == "" {
				sc := bufio.NewScanner(os.Stdin)
				sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
				for sc.Scan() {
					if text != "" {
						text += "\n"
					}
					text += sc.Text()
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			sess, err := openSession(logger.WithContext(ctx, buildLogger()))
			if err != nil {
				return err
			}
			defer sess.Close()

			vec, err := sess.Embed(ctx, text)
			if err != nil {
				return err
			}

			if rawJSON {
				enc := json.NewEncoder(os.Stdout)
				return enc.Encode(vec)
			}
			for i, v := range vec {
				if i > 0 {
					fmt.Print(" ")
				}
				fmt.Printf("%g", v)
			}
			fmt.Println()
			return nil
		},
	}
}
