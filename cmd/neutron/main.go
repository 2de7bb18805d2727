// Command neutron runs scripts, drives an interactive shell, and
// saves/restores execution checkpoints for the language implemented by
// the neutron module.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"neutron/builtins"
	"neutron/checkpoint"
	"neutron/engine"
	"neutron/parser"
	"neutron/trace"
	"neutron/types"
	"neutron/vm"
)

func main() {
	app := &cli.Command{
		Name:  "neutron",
		Usage: "compiler, VM, and process scheduler for the neutron scripting language",
		Commands: []*cli.Command{
			runCommand,
			replCommand,
			checkpointCommand,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() > 0 {
				return runFile(cmd.Args().First())
			}
			return repl()
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "neutron: %v\n", err)
		os.Exit(1)
	}
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "compile and run a script to completion",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "workers", Usage: "scheduler worker-pool size, 0 = GOMAXPROCS"},
		&cli.IntFlag{Name: "budget", Usage: "per-slice reduction budget, 0 = default"},
		&cli.StringFlag{Name: "config", Usage: "YAML config file (workers, budget, trace)"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("run requires a script file")
		}
		workers, budget := int(cmd.Int("workers")), int(cmd.Int("budget"))
		if path := cmd.String("config"); path != "" {
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			if workers == 0 {
				workers = cfg.Workers
			}
			if budget == 0 {
				budget = cfg.Budget
			}
			if cfg.Trace {
				trace.Init(true, cfg.TraceFilters, os.Stderr)
			}
		}
		return runFileWith(cmd.Args().First(), workers, budget)
	},
}

// config is the YAML file accepted by -config: scheduler sizing plus
// trace enablement, the knobs an operator tunes without rebuilding.
type config struct {
	Workers      int      `yaml:"workers"`
	Budget       int      `yaml:"budget"`
	Trace        bool     `yaml:"trace"`
	TraceFilters []string `yaml:"trace_filters"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

func runFile(path string) error {
	return runFileWith(path, 0, 0)
}

func runFileWith(path string, workers, budget int) error {
	e := engine.New(engine.Config{Workers: workers, Budget: budget, Output: os.Stdout})
	result, err := e.RunFile(path)
	if err != nil {
		return err
	}
	if result != nil && result != types.NilValue {
		fmt.Println(result.String())
	}
	return nil
}

var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "start an interactive read-eval-print loop",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return repl()
	},
}

// repl drives a line-editing shell backed by readline.Instance: each
// complete statement is compiled and run against a fresh scheduler so
// spawned processes from one line don't leak into the next prompt's
// process table, matching how the conformance scenarios start clean
// every time (spec.md §9).
func repl() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "neutron> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), "neutron REPL — Ctrl-D to exit")
	e := engine.New(engine.Config{Output: rl.Stdout()})

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		evalLine(e, line)
	}
}

func evalLine(e *engine.Engine, line string) {
	result, err := e.Eval(line)
	if err != nil {
		fmt.Println(err)
		return
	}
	if result != nil && result != types.NilValue {
		fmt.Println(result.String())
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.neutron_history"
}

var checkpointCommand = &cli.Command{
	Name:  "checkpoint",
	Usage: "save or load a process's execution state",
	Commands: []*cli.Command{
		{
			Name:      "save",
			Usage:     "run a script and write a checkpoint on SIGINT instead of letting it run to completion",
			ArgsUsage: "<file> <checkpoint-out>",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				if cmd.Args().Len() < 2 {
					return fmt.Errorf("checkpoint save requires <file> <checkpoint-out>")
				}
				return checkpointSave(cmd.Args().Get(0), cmd.Args().Get(1))
			},
		},
		{
			Name:      "load",
			Usage:     "resume a script from a saved checkpoint",
			ArgsUsage: "<checkpoint-in>",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				if cmd.Args().Len() < 1 {
					return fmt.Errorf("checkpoint load requires <checkpoint-in>")
				}
				return checkpointLoad(cmd.Args().Get(0))
			},
		},
	},
}

// checkpointSave compiles and runs file directly against a bare VM
// (process-table globals like spawn/send/receive are unavailable outside
// a scheduler, spec.md §6) and writes its full execution state to out the
// moment SIGINT arrives, rather than at normal completion.
func checkpointSave(file, out string) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	p := parser.NewParser(string(src))
	stmts := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return engine.ParseErrors(errs)
	}
	fn, cerrs := vm.CompileFile(stmts, file)
	if len(cerrs) > 0 {
		return engine.ParseErrors(cerrs)
	}

	reg := builtins.NewRegistry()
	mods := reg.Install()
	machine := vm.New()
	machine.Importer = func(name string) (*types.Module, error) {
		if mod, ok := mods[name]; ok {
			return mod, nil
		}
		return nil, types.NewRuntimeError(types.ErrImport, 0, "unknown module %q", name)
	}

	closure := types.NewClosure(fn)
	if err := machine.PrepareEntry(closure); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	const sliceBudget = 10000
	for {
		select {
		case <-sigCh:
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := checkpoint.Save(f, file, machine); err != nil {
				return err
			}
			fmt.Printf("checkpoint written to %s\n", out)
			return nil
		default:
		}

		result := machine.Step(sliceBudget)
		switch result.Status {
		case types.StatusDone:
			if result.ReturnValue != nil && result.ReturnValue != types.NilValue {
				fmt.Println(result.ReturnValue.String())
			}
			return nil
		case types.StatusKilled:
			return result.Err
		case types.StatusRunning:
			continue
		default:
			return fmt.Errorf("checkpoint save: script blocked on a scheduler primitive outside a scheduler")
		}
	}
}

// checkpointLoad restores a VM from a checkpoint written by
// "checkpoint save" and drives it to completion, picking up exactly
// where execution was interrupted (spec.md §6).
func checkpointLoad(in string) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	snap, err := checkpoint.Load(f)
	if err != nil {
		return err
	}

	reg := builtins.NewRegistry()
	mods := reg.Install()
	machine := vm.New()
	machine.Importer = func(name string) (*types.Module, error) {
		if mod, ok := mods[name]; ok {
			return mod, nil
		}
		return nil, types.NewRuntimeError(types.ErrImport, 0, "unknown module %q", name)
	}
	machine.Restore(snap.Globals, snap.Stack, snap.Frames)

	const sliceBudget = 10000
	for {
		result := machine.Step(sliceBudget)
		switch result.Status {
		case types.StatusDone:
			if result.ReturnValue != nil && result.ReturnValue != types.NilValue {
				fmt.Println(result.ReturnValue.String())
			}
			return nil
		case types.StatusKilled:
			return result.Err
		case types.StatusRunning:
			continue
		default:
			return fmt.Errorf("checkpoint load: script blocked on a scheduler primitive outside a scheduler")
		}
	}
}
