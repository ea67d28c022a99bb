// Command bfsched boots a BFS-style scheduler core and either runs a short
// teaching workload on the console (demo) or serves it behind the admin
// HTTP/WebSocket API (serve) for an external driver to operate.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bfsched/kernel/internal/config"
	"github.com/bfsched/kernel/pkg/api"
	"github.com/bfsched/kernel/pkg/audit"
	"github.com/bfsched/kernel/pkg/metrics"
	"github.com/bfsched/kernel/pkg/sched"
	"github.com/bfsched/kernel/pkg/types"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "bfsched",
		Short:   "A BFS-style earliest-virtual-deadline scheduler core",
		Version: version,
		Example: `  # Hash an operator password for the config file or env var
  bfsched passwd 'A-strong-passw0rd!'

  # Serve the scheduler behind the admin API
  bfsched serve --config bfsched.yaml

  # Run a short console demo with synthetic tasks
  bfsched demo --workload 5 --ticks 200

  # Query a running instance
  bfsched ps --api http://127.0.0.1:8080`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(psCmd())
	rootCmd.AddCommand(killCmd())
	rootCmd.AddCommand(schedlogCmd())
	rootCmd.AddCommand(passwdCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// bootLogger tags every log record emitted by this process with a random
// boot ID, so log lines from two instances running concurrently (or two
// successive runs writing to the same aggregator) can be told apart.
func bootLogger(base *slog.Logger) *slog.Logger {
	return base.With("boot_id", uuid.NewString())
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func tunablesFromConfig(cfg *config.Config) types.Tunables {
	s := cfg.Scheduler
	return types.Tunables{
		DefaultQuantum: s.DefaultQuantum,
		NiceFirst:      s.NiceFirst,
		NiceLast:       s.NiceLast,
		MaxLevel:       s.MaxLevel,
		NProc:          s.NProc,
		Chance:         s.Chance,
		Seed:           s.Seed,
	}
}

func serveCmd() *cobra.Command {
	var configFile string
	var cpus int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot the scheduler and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, cpus)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file path")
	cmd.Flags().IntVar(&cpus, "cpus", 1, "number of concurrent dispatch loops modeling CPUs")
	return cmd
}

func runServe(configFile string, cpus int) error {
	logger := bootLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s := sched.New(tunablesFromConfig(cfg), logger)
	if _, err := s.Boot("init", 0, nil); err != nil {
		return fmt.Errorf("boot init task: %w", err)
	}

	auditSink, err := audit.NewSink(cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("create audit sink: %w", err)
	}
	defer auditSink.Close()
	s.SetReapSink(func(tcb types.TCB) {
		go func() {
			entry := audit.Entry{
				PID:       tcb.PID,
				Name:      tcb.Name,
				Niceness:  tcb.Niceness,
				ParentPID: tcb.ParentPID,
				ExitTick:  tcb.ExitTick,
			}
			if err := auditSink.Record(context.Background(), entry); err != nil {
				logger.Warn("audit record failed", "pid", tcb.PID, "error", err)
			}
		}()
	})

	monitor := metrics.NewMonitor(s, s.NProc(), 2*time.Second, metrics.DefaultThresholds())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	monitor.Start(ctx)
	defer monitor.Stop()

	server, err := api.NewServer(cfg, s, monitor, auditSink, logger)
	if err != nil {
		return fmt.Errorf("create admin API server: %w", err)
	}

	runClock(ctx, s)
	runCPUs(ctx, s, cpus)

	logger.Info("bfsched serving", "address", cfg.API.Listen, "cpus", cpus)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin API server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// runClock advances the scheduler's tick counter once per simulated tick,
// standing in for the timer-interrupt source a real kernel would have.
func runClock(ctx context.Context, s *sched.Scheduler) {
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// runCPUs starts n concurrent dispatch loops, modeling n CPUs sharing the
// same skiplist and table_lock per spec.md's single-queue design.
func runCPUs(ctx context.Context, s *sched.Scheduler, n int) {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		go s.RunCPU(ctx, func() { time.Sleep(time.Millisecond) })
	}
}
