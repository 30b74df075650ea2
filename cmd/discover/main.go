package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"godisc/adapters/families"
	"godisc/adapters/postgres"
	"godisc/adapters/prover"
	"godisc/adapters/source"
	"godisc/app"
	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal/calibrate"
	"godisc/internal/config"
	"godisc/internal/ledger"
	"godisc/internal/optimizer"
	"godisc/internal/rng"
	"godisc/internal/shaper"
	"godisc/internal/testkit"
	"godisc/internal/verify"
	"godisc/ports"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[Discover] no .env file found, using environment")
	}

	rootCmd := &cobra.Command{
		Use:   "godisc",
		Short: "Search, calibrate and certify statistic families",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newFamiliesCmd(),
		newTrajectoryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		family       string
		theta        []float64
		alpha        float64
		sampleSize   int
		dependence   bool
		blockLen     int
		rounds       int
		seed         int64
		strategyName string
		sourceName   string
		delta        float64
		phi          float64
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one discovery attempt end to end",
		Long: `Run the search loop for a statistic family, calibrate the winner,
submit its proof obligation and record the outcome in the ledger.

Example: godisc run --family scaled_mean --theta 1.0 --alpha 0.05 --sample-size 100 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if alpha == 0 {
				alpha = cfg.Bootstrap.Alpha
			}
			if sampleSize == 0 {
				sampleSize = cfg.Bootstrap.SampleSize
			}
			if rounds == 0 {
				rounds = cfg.Search.Rounds
			}
			if seed == 0 {
				seed = cfg.Search.BaseSeed
			}

			sampleSource, err := buildSource(sourceName, delta, phi)
			if err != nil {
				return err
			}
			strategy, err := buildStrategy(strategyName, cfg)
			if err != nil {
				return err
			}
			backend := buildBackend(cfg, dryRun)

			svc, closeFn, err := buildService(cfg, sampleSource, backend)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.Discover(cmd.Context(), app.DiscoveryRequest{
				Family:       core.FamilyID(family),
				InitialTheta: theta,
				Alpha:        alpha,
				Sim: candidate.SimConfig{
					SampleSize: sampleSize,
					Dependence: dependence,
					BlockLen:   blockLen,
					BaseSeed:   seed,
				},
				Rounds:    rounds,
				Patience:  cfg.Search.Patience,
				Tolerance: cfg.Search.Tolerance,
				Epsilon:   cfg.Bootstrap.Epsilon,
				Seed:      seed,
				Strategy:  strategy,
			})
			if result != nil {
				printJSON(map[string]interface{}{
					"run_id":     result.RunID,
					"state":      result.Entry.State,
					"theta":      result.Run.ThetaFinal,
					"critical":   result.Entry.Calibration.CriticalValue,
					"rounds":     result.Run.Rounds,
					"obligation": result.Obligation,
					"runtime_ms": result.RuntimeMs,
				})
			}
			return err
		},
	}

	cmd.Flags().StringVar(&family, "family", "scaled_mean", "Statistic family identifier")
	cmd.Flags().Float64SliceVar(&theta, "theta", []float64{1.0}, "Initial parameter vector")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Significance level (default from ALPHA env)")
	cmd.Flags().IntVar(&sampleSize, "sample-size", 0, "Sample size n (default from SAMPLE_SIZE env)")
	cmd.Flags().BoolVar(&dependence, "dependence", false, "Use the block bootstrap for dependent data")
	cmd.Flags().IntVar(&blockLen, "block-len", 0, "Block length (0 uses ceil(n^(1/3)))")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "Search round budget (default from SEARCH_ROUNDS env)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Base seed for all random streams (default from BASE_SEED env)")
	cmd.Flags().StringVar(&strategyName, "strategy", "evolution", "Search strategy: evolution or policy_gradient")
	cmd.Flags().StringVar(&sourceName, "source", "gaussian", "Sample source: gaussian or ar1")
	cmd.Flags().Float64Var(&delta, "delta", 0.5, "Alternative-regime mean shift")
	cmd.Flags().Float64Var(&phi, "phi", 0.5, "AR(1) autocorrelation (only with --source ar1)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip the external prover and accept the obligation locally")

	return cmd
}

func newFamiliesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List the registered statistic families",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := families.NewDefaultRegistry()
			for _, id := range registry.Families() {
				eval, err := registry.Lookup(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Printf("%-20s arity=%d\n", id, eval.Arity())
			}
			return nil
		},
	}
}

func newTrajectoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajectory [run-id]",
		Short: "Print the recorded training rounds for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled {
				return fmt.Errorf("trajectory replay requires DATABASE_URL")
			}
			db, err := sqlx.Connect("postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("database connect: %w", err)
			}
			defer db.Close()

			repo := postgres.NewTrajectoryRepository(db)
			rounds, err := repo.Rounds(cmd.Context(), core.RunID(args[0]))
			if err != nil {
				return err
			}
			printJSON(rounds)
			return nil
		},
	}
	return cmd
}

func buildSource(name string, delta, phi float64) (ports.SampleSourcePort, error) {
	switch name {
	case "gaussian":
		return source.NewGaussianSource(0, delta, 1), nil
	case "ar1":
		return source.NewAR1Source(phi, delta, 1)
	default:
		return nil, fmt.Errorf("unknown source %q (want gaussian or ar1)", name)
	}
}

func buildStrategy(name string, cfg *config.Config) (optimizer.Strategy, error) {
	switch name {
	case "evolution":
		return optimizer.NewEvolutionStrategy(cfg.Search.PopulationSize, cfg.Search.StepSize), nil
	case "policy_gradient":
		return optimizer.NewPolicyGradientStrategy(cfg.Search.PopulationSize/2, cfg.Search.StepSize, cfg.Search.StepSize), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want evolution or policy_gradient)", name)
	}
}

func buildBackend(cfg *config.Config, dryRun bool) ports.ProofBackendPort {
	if dryRun || cfg.Verify.BackendURL == "" {
		log.Println("[Discover] no prover configured, obligations accepted locally")
		return testkit.AcceptingBackend()
	}
	return prover.NewHTTPBackend(cfg.Verify.BackendURL, cfg.Verify.Timeout)
}

// buildService wires the full pipeline. With DATABASE_URL set the ledger
// and trajectory log persist to PostgreSQL; otherwise they stay in memory.
func buildService(cfg *config.Config, sampleSource ports.SampleSourcePort, backend ports.ProofBackendPort) (*app.DiscoveryService, func(), error) {
	registry := families.NewDefaultRegistry()
	streams := rng.NewStreamAdapter()

	var (
		ledgerPort ports.LedgerPort
		trajectory ports.TrajectoryLogPort
		closeFn    = func() {}
	)
	if cfg.Database.Enabled {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connect: %w", err)
		}
		if err := postgres.Migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		ledgerPort = postgres.NewLedgerRepository(db)
		trajectory = postgres.NewTrajectoryRepository(db)
		closeFn = func() { db.Close() }
	} else {
		ledgerPort = ledger.NewMemoryLedger()
		trajectory = testkit.NewMemoryTrajectoryLog()
	}

	calibrator := calibrate.NewCalibrator(sampleSource, registry, streams, calibrate.Options{
		Resamples: cfg.Bootstrap.Resamples,
		Epsilon:   cfg.Bootstrap.Epsilon,
		Workers:   cfg.Bootstrap.Workers,
	})
	rewardShaper := shaper.NewShaper(cfg.Search.Eta, cfg.Search.EWMADecay)
	gate := verify.NewGate(backend, cfg.Verify.Timeout, cfg.Verify.RetryCeiling)

	svc := app.NewDiscoveryService(calibrator, rewardShaper, sampleSource, registry, streams, trajectory, gate, ledgerPort)
	return svc, closeFn, nil
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("[Discover] encode output: %v", err)
		return
	}
	fmt.Println(string(out))
}
