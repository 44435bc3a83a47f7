package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/enneagram-backend/internal/clients/api"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/poll"
	"github.com/yungbote/enneagram-backend/internal/services"
)

var (
	analysisAPI      string
	analysisInterval time.Duration
	analysisAttempts int
	analysisTimeout  time.Duration
)

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Inspect assessment analyses",
}

var analysisWaitCmd = &cobra.Command{
	Use:   "wait <assessment-id>",
	Short: "Poll the API until an assessment's analysis is ready",
	Long: `Poll GET /api/assessments/<id>/analysis until it reports ready, fails
hard, or the attempts run out. Prints the final result as JSON.

Exit status is non-zero when the analysis is not ready.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalysisWait,
}

func init() {
	def := poll.PolicyFromEnv()
	analysisWaitCmd.Flags().StringVar(&analysisAPI, "api", envutil.String("ENNEAGRAM_API_URL", "http://localhost:8080"), "API base URL")
	analysisWaitCmd.Flags().DurationVar(&analysisInterval, "interval", def.Interval, "wait between polls")
	analysisWaitCmd.Flags().IntVar(&analysisAttempts, "attempts", def.MaxAttempts, "maximum polls")
	analysisWaitCmd.Flags().DurationVar(&analysisTimeout, "request-timeout", 30*time.Second, "per-request timeout")
	analysisCmd.AddCommand(analysisWaitCmd)
}

func runAnalysisWait(cmd *cobra.Command, args []string) error {
	client, err := api.New(log, analysisAPI, analysisTimeout)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	policy := poll.PolicyFromEnv()
	policy.Interval = analysisInterval
	policy.MaxAttempts = analysisAttempts

	res, err := services.AwaitAnalysis(ctx, client, args[0], policy)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Ready {
		return fmt.Errorf("analysis %s not ready (%s)", args[0], res.Status)
	}
	return nil
}
