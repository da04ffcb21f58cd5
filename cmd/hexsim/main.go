// Command hexsim replays or interactively drives a buffer pool replacement
// policy, printing each victim it picks.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chzyer/readline"
	"github.com/sibexico/hexbuffer/storage"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (pool_size, replacer, replacer_k are used)")
		capacity   = flag.Int("capacity", 8, "number of frames")
		k          = flag.Int("k", storage.DefaultReplacerK, "history depth for lru-k")
		policy     = flag.String("policy", storage.ReplacerLRUK, "replacement policy (lru-k, lru)")
		tracePath  = flag.String("trace", "", "replay commands from file and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *configPath != "" {
		cfg, err := storage.LoadConfigFromFile(*configPath)
		if err != nil {
			logger.Error("load config", slog.Any("error", err))
			os.Exit(1)
		}
		*capacity = int(cfg.PoolSize)
		*k = cfg.ReplacerK
		*policy = cfg.Replacer
	}

	sim, err := NewSimulator(*policy, *capacity, *k)
	if err != nil {
		logger.Error("create simulator", slog.Any("error", err))
		os.Exit(1)
	}

	if *tracePath != "" {
		f, err := os.Open(*tracePath)
		if err != nil {
			logger.Error("open trace", slog.Any("error", err))
			os.Exit(1)
		}
		defer f.Close()

		if err := replay(sim, f, os.Stdout); err != nil {
			logger.Error("replay", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := interactive(sim); err != nil {
		logger.Error("readline", slog.Any("error", err))
		os.Exit(1)
	}
}

// replay executes every line of r, stopping at the first failing command
func replay(sim *Simulator, r io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		err := sim.Exec(sc.Text(), out)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}

func interactive(sim *Simulator) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hexsim> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()

	fmt.Fprintln(rl.Stdout(), "type help for commands")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			// EOF
			return nil
		}

		err = sim.Exec(line, rl.Stdout())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}
}
