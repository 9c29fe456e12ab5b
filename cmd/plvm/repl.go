package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/go-perl/plvm/cache"
	"github.com/go-perl/plvm/compiler"
	"github.com/go-perl/plvm/runtime"
	"github.com/go-perl/plvm/vm"
)

var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "interactive line-at-a-time evaluator over the toy expression grammar",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "debug", Usage: "enable opcode-level trace output"},
		&cli.StringFlag{Name: "config", Value: "plvm.yaml", Usage: "path to an optional plvm.yaml config file"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String("config"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runRepl(cfg, cmd.Bool("debug"))
	},
}

func runRepl(cfg config, debugFlag bool) error {
	e := vm.New()
	if debugFlag || cfg.Debug == "trace" || cfg.Debug == "verbose" {
		e.Debug.SetLevel(vm.DebugLevelDetailed)
	}

	var store *cache.Store
	if cfg.Cache != "" {
		s, err := cache.Open(cfg.Cache)
		if err != nil {
			return fmt.Errorf("open code-unit cache: %w", err)
		}
		defer s.Close()
		store = s
	}

	prompt := "plvm> "
	if isatty.IsTerminal(os.Stdout.Fd()) {
		prompt = "\033[36mplvm>\033[0m "
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	pragmas := compiler.DefaultPragmas()
	pragmas.StrictVars = false // bareword $globals persist across lines, see toyparser.go

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := evalLine(e, store, pragmas, line); err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}

func evalLine(e *vm.Engine, store *cache.Store, pragmas compiler.PragmaSnapshot, line string) error {
	var unit *compiler.CodeUnit
	var key string
	if store != nil {
		key = cache.Key(line, pragmas)
		if cached, ok, err := store.Lookup(key); err == nil && ok {
			unit = cached
		}
	}

	if unit == nil {
		prog, err := parseLine(line)
		if err != nil {
			return err
		}
		unit, err = compiler.Compile(prog, pragmas)
		if err != nil {
			return err
		}
		if store != nil {
			if err := store.Store(key, unit); err != nil {
				return fmt.Errorf("cache store: %w", err)
			}
		}
	}

	out, err := e.Execute(unit, nil, runtime.WantList)
	if err != nil {
		return err
	}
	for _, v := range out {
		fmt.Println(v.ToStr())
	}
	return nil
}
