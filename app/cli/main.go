// Command madprep analyzes a recorded interview answer from the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/madprep/config"
	"github.com/yoockh/madprep/internal/bootstrap"
	"github.com/yoockh/madprep/internal/logger"
	"github.com/yoockh/madprep/internal/pipeline"
	"github.com/yoockh/madprep/internal/services"
	"github.com/yoockh/madprep/internal/telemetry"
)

type analyzeFlags struct {
	question string
	apiKey   string
	model    string
	stride   int
	asJSON   bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "madprep",
		Short:         "Interview answer analysis: transcript, facial emotions and feedback",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newAnalyzeCmd(), newQuestionsCmd())
	return root
}

func newQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "List the built-in interview questions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for i, q := range services.DefaultQuestions {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, q)
			}
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Run the full analysis on one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.question, "question", "q", services.DefaultQuestions[0], "question the recording answers")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "feedback service credential (defaults to GOOGLE_API_KEY)")
	cmd.Flags().StringVar(&f.model, "model", "", "feedback model (defaults to MODEL_NAME)")
	cmd.Flags().IntVar(&f.stride, "stride", 0, "classify every n-th frame (defaults to SAMPLE_STRIDE)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runAnalyze(ctx context.Context, stdout, stderr io.Writer, video string, f analyzeFlags) error {
	cfg, err := config.LoadOffline()
	if err != nil {
		return err
	}
	if _, err := os.Stat(video); err != nil {
		return fmt.Errorf("video: %w", err)
	}

	log := logger.New()
	log.SetOutput(stderr)
	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(ctx, cfg.LogDir, "cli")
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()
	}

	pl, err := bootstrap.NewPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pl.Close()

	opts := pipeline.Options{
		Credential: f.apiKey,
		Model:      f.model,
		Stride:     f.stride,
	}
	if opts.Credential == "" {
		opts.Credential = cfg.DefaultCredential()
	}
	if opts.Model == "" {
		opts.Model = cfg.ModelName
	}
	if opts.Stride == 0 {
		opts.Stride = cfg.SampleStride
	}

	s := pipeline.NewSession(uuid.NewString(), f.question, video, opts)
	runErr := pl.Orchestrator.Run(ctx, s, func(_ context.Context, s *pipeline.Session) {
		log.WithFields(logrus.Fields{"session_id": s.ID, "stage": s.Stage().String()}).Debug("stage")
		if !f.asJSON {
			fmt.Fprintf(stderr, "» %s\n", s.Stage().Title())
		}
	})

	res := newResult(s)
	if f.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		render(stdout, res)
	}

	var se *pipeline.StageError
	if errors.As(runErr, &se) {
		return fmt.Errorf("analysis failed at %s: %w", se.Stage.Title(), se)
	}
	return runErr
}
