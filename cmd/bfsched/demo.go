package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bfsched/kernel/internal/config"
	"github.com/bfsched/kernel/pkg/sched"
)

func demoCmd() *cobra.Command {
	var workload int
	var ticks int
	var schedlog bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a short in-process demo with synthetic tasks",
		Long: `Boots a scheduler with a handful of synthetic CPU-bound tasks at
varying niceness, drives it for a fixed number of dispatch cycles, and prints the
dispatch order (and, with --schedlog, every schedlog line) to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(workload, ticks, schedlog)
		},
	}
	cmd.Flags().IntVar(&workload, "workload", 5, "number of synthetic tasks to fork")
	cmd.Flags().IntVar(&ticks, "ticks", 200, "number of dispatch cycles to run")
	cmd.Flags().BoolVar(&schedlog, "schedlog", false, "print every schedlog line")
	return cmd
}

func runDemo(workload, ticks int, showSchedlog bool) error {
	logger := bootLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	s := sched.New(tunablesFromConfig(cfg), logger)
	if showSchedlog {
		s.Schedlog(ticks)
		s.SetSchedlogSink(func(line string) { fmt.Println(line) })
	}

	init, err := s.Boot("init", 0, nil)
	if err != nil {
		return fmt.Errorf("boot init: %w", err)
	}

	dispatched := make(chan int, workload*1000)
	for i := 0; i < workload; i++ {
		nice := cfg.Scheduler.NiceFirst + rand.Intn(cfg.Scheduler.NiceLast-cfg.Scheduler.NiceFirst+1)
		name := fmt.Sprintf("task-%d", i)
		pid, err := s.NiceFork(init, name, nice, func(t *sched.Task) {
			for !t.Killed() {
				dispatched <- t.PID()
				s.Yield(t)
			}
		})
		if err != nil {
			return fmt.Errorf("fork %s: %w", name, err)
		}
		fmt.Printf("forked pid=%d name=%s niceness=%d\n", pid, name, nice)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runClock(ctx, s)

	for i := 0; i < ticks; i++ {
		s.RunOnce()
	}

	order := make([]int, 0, len(dispatched))
	for len(dispatched) > 0 {
		order = append(order, <-dispatched)
	}
	fmt.Printf("dispatch order: %v\n", order)

	fmt.Printf("ran %d dispatch cycles, uptime=%d ticks\n", ticks, s.Uptime())
	return nil
}
