// File: cmd/heal.go
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/observability"
)

// newHealCmd creates the heal command: one synchronous pipeline run against a
// repository, printing the final report to stdout.
func newHealCmd() *cobra.Command {
	var (
		repoURL    string
		teamName   string
		leaderName string
	)

	cmd := &cobra.Command{
		Use:   "heal",
		Short: "Run the heal loop once against a repository and print the report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			if _, _, err := schemas.ParseRepoURL(repoURL); err != nil {
				return err
			}

			deps, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			branch := schemas.DeriveBranchName(teamName, leaderName)
			run := deps.registry.Create(repoURL, teamName, leaderName, branch)
			logger.Info("Healing repository",
				zap.String("run_id", run.ID),
				zap.String("repo", repoURL),
				zap.String("branch", branch))

			deps.orchestrator.Execute(cmd.Context(), run)

			finished, ok := deps.registry.Get(run.ID)
			if !ok || finished.Report == nil {
				return fmt.Errorf("run %s produced no report", run.ID)
			}

			raw, err := json.MarshalIndent(finished.Report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}

	cmd.Flags().StringVar(&repoURL, "repo", "", "GitHub repository URL (https://github.com/{owner}/{repo})")
	cmd.Flags().StringVar(&teamName, "team", "", "Team name used to derive the branch")
	cmd.Flags().StringVar(&leaderName, "leader", "", "Leader name used to derive the branch")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("leader")

	return cmd
}
