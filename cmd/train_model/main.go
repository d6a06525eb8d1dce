package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"productivity/config"
	"productivity/db"
	"productivity/logging"
	"productivity/ml"
	"productivity/training"
)

var (
	configPath string
	source     string
	encoding   string
	department string
	modelPath  string
	dbPath     string
	testRatio  float64
	seed       int64
	history    int
	noRecord   bool
)

var rootCmd = &cobra.Command{
	Use:   "train_model",
	Short: "Train the productivity model and save the artifact",
	Long: `Loads the garments worker productivity CSV, keeps the sewing department,
fits winsorizer -> median imputer -> standard scaler -> gradient boosting on
incentive, reports hold-out R2/MAE/RMSE and writes the model artifact.`,
	SilenceUsage: true,
	RunE:         runTraining,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "path to config.yaml")
	f.StringVar(&source, "source", "", "CSV file path or http(s) URL (overrides training.source)")
	f.StringVar(&encoding, "encoding", "", "CSV character encoding (overrides training.encoding)")
	f.StringVar(&department, "department", "", "department to train on (overrides training.department)")
	f.StringVar(&modelPath, "model_path", "", "model output path (overrides model.path)")
	f.StringVar(&dbPath, "db", "", "training log database (overrides database.path)")
	f.Float64Var(&testRatio, "test_ratio", 0, "hold-out ratio (overrides training.test_ratio)")
	f.Int64Var(&seed, "seed", 0, "random seed (overrides training.seed)")
	f.IntVar(&history, "history", 0, "print the last N training runs and exit")
	f.BoolVar(&noRecord, "no-record", false, "do not write the run to the training log")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTraining(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.FromConfig(cfg)
	defer logger.Sync()

	var store *db.Store
	if !noRecord || history > 0 {
		store, err = db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if history > 0 {
		runs, err := store.RecentTrainingRuns(ctx, history)
		if err != nil {
			return err
		}
		printHistory(cmd, runs)
		return nil
	}

	booster := ml.DefaultBoosterConfig()
	booster.NEstimators = cfg.Training.Booster.NEstimators
	booster.LearningRate = cfg.Training.Booster.LearningRate
	booster.MaxDepth = cfg.Training.Booster.MaxDepth
	booster.Subsample = cfg.Training.Booster.Subsample
	booster.ColsampleByTree = cfg.Training.Booster.ColsampleByTree
	booster.Seed = cfg.Training.Seed

	var recorder training.RunRecorder
	if store != nil {
		recorder = store
	}
	result, err := training.NewTrainer(logger, recorder).Run(ctx, training.Config{
		Source:     cfg.Training.Source,
		Encoding:   cfg.Training.Encoding,
		Department: cfg.Training.Department,
		TestRatio:  cfg.Training.TestRatio,
		Seed:       cfg.Training.Seed,
		ModelPath:  cfg.Model.Path,
		Booster:    booster,
	})
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "R2=%.4f MAE=%.4f RMSE=%.4f (train=%d test=%d)\n",
		result.Metrics.R2, result.Metrics.MAE, result.Metrics.RMSE, result.TrainRows, result.TestRows)
	fmt.Fprintf(cmd.OutOrStdout(), "model saved to %s\n", result.ModelPath)
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Training.Source = source
	}
	if flags.Changed("encoding") {
		cfg.Training.Encoding = encoding
	}
	if flags.Changed("department") {
		cfg.Training.Department = department
	}
	if flags.Changed("model_path") {
		cfg.Model.Path = modelPath
	}
	if flags.Changed("db") {
		cfg.Database.Path = dbPath
	}
	if flags.Changed("test_ratio") {
		cfg.Training.TestRatio = testRatio
	}
	if flags.Changed("seed") {
		cfg.Training.Seed = seed
	}
}

func printHistory(cmd *cobra.Command, runs []db.TrainingRun) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRAINED AT\tDEPARTMENT\tTRAIN\tTEST\tR2\tMAE\tRMSE\tMODEL")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%.4f\t%.4f\t%.4f\t%s\n",
			run.ID, run.TrainedAt.Local().Format("2006-01-02 15:04:05"), run.Department,
			run.TrainRows, run.TestRows, run.R2, run.MAE, run.RMSE, run.ModelPath)
	}
	w.Flush()
}
