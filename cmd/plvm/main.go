// Command plvm is the ambient CLI surface around the register bytecode
// compiler and interpreter: it has no lexer/parser of its own (spec §1
// places that out of the hard core's scope), so it drives the engine
// with either a hand-built demo program or the toy one-line expression
// parser in toyparser.go. Grounded on the teacher's cmd/hey/main.go:
// github.com/urfave/cli/v3 for subcommands, github.com/chzyer/readline
// for interactive line editing, github.com/mattn/go-isatty for prompt
// colorization.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "plvm",
		Usage: "a register-based bytecode compiler and interpreter for Perl semantics",
		Commands: []*cli.Command{
			demoCommand,
			replCommand,
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "plvm.yaml",
				Usage: "path to an optional plvm.yaml config file",
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "plvm: %v\n", err)
		os.Exit(1)
	}
}

var demoCommand = &cli.Command{
	Name:      "demo",
	Usage:     "run one of the built-in end-to-end scenarios and print its result list",
	ArgsUsage: "<name>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		name := cmd.Args().First()
		if name == "" {
			return fmt.Errorf("usage: plvm demo <name>; available: %v", demoNames())
		}
		return runDemo(name)
	},
}
