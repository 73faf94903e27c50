// internal/monitor/monitor.go
package monitor

import (
	"context"
	"time"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/repomedic/internal/config"
)

// actionsAPI is the slice of the GitHub Actions service the monitor uses.
// *github.ActionsService satisfies it; tests substitute a fake.
type actionsAPI interface {
	ListWorkflows(ctx context.Context, owner, repo string, opts *github.ListOptions) (*github.Workflows, *github.Response, error)
	CreateWorkflowDispatchEventByID(ctx context.Context, owner, repo string, workflowID int64, event github.CreateWorkflowDispatchEventRequest) (*github.Response, error)
	ListRepositoryWorkflowRuns(ctx context.Context, owner, repo string, opts *github.ListWorkflowRunsOptions) (*github.WorkflowRuns, *github.Response, error)
}

// Observation is the outcome of watching CI for a branch.
type Observation struct {
	Triggered    bool   `json:"triggered"`
	Passed       bool   `json:"passed"`
	Conclusion   string `json:"conclusion"`
	Reason       string `json:"reason,omitempty"`
	WorkflowName string `json:"workflowName,omitempty"`
	RunURL       string `json:"runUrl,omitempty"`
}

// Monitor discovers the remote CI workflow for a branch, dispatches it when
// possible and polls until a terminal conclusion or timeout.
type Monitor struct {
	logger *zap.Logger
	api    actionsAPI
	cfg    config.PipelineConfig
}

// New creates a monitor backed by the real GitHub API.
func New(logger *zap.Logger, cfg config.PipelineConfig, token string) *Monitor {
	var httpClient = oauth2.NewClient(context.Background(), nil)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	client := github.NewClient(httpClient)
	return &Monitor{
		logger: logger.Named("monitor"),
		api:    client.Actions,
		cfg:    cfg,
	}
}

// newWithAPI wires a fake Actions API; used by tests.
func newWithAPI(logger *zap.Logger, cfg config.PipelineConfig, api actionsAPI) *Monitor {
	return &Monitor{logger: logger.Named("monitor"), api: api, cfg: cfg}
}

// Observe watches CI for the branch. Polling errors are logged and do not
// abort the observation; only the configured timeout ends it early.
func (m *Monitor) Observe(ctx context.Context, owner, repo, branch string) Observation {
	workflow, ok := m.selectWorkflow(ctx, owner, repo)
	if !ok {
		return Observation{Triggered: false, Conclusion: "no_ci", Reason: "No workflows configured"}
	}

	obs := Observation{WorkflowName: workflow.GetName()}

	// Dispatch is best effort: workflows without a workflow_dispatch trigger
	// reject it, but a push-triggered run may already be on its way.
	if _, err := m.api.CreateWorkflowDispatchEventByID(ctx, owner, repo, workflow.GetID(), github.CreateWorkflowDispatchEventRequest{Ref: branch}); err != nil {
		m.logger.Info("Workflow dispatch not accepted; waiting for auto-triggered run",
			zap.String("workflow", workflow.GetName()), zap.Error(err))
	} else {
		obs.Triggered = true
		m.logger.Info("Workflow dispatched", zap.String("workflow", workflow.GetName()), zap.String("branch", branch))
	}

	return m.poll(ctx, owner, repo, branch, obs)
}

// selectWorkflow returns the first active workflow, falling back to the first
// listed one.
func (m *Monitor) selectWorkflow(ctx context.Context, owner, repo string) (*github.Workflow, bool) {
	workflows, _, err := m.api.ListWorkflows(ctx, owner, repo, &github.ListOptions{PerPage: 50})
	if err != nil {
		m.logger.Warn("Failed to list workflows", zap.Error(err))
		return nil, false
	}
	if workflows.GetTotalCount() == 0 || len(workflows.Workflows) == 0 {
		return nil, false
	}

	for _, wf := range workflows.Workflows {
		if wf.GetState() == "active" {
			return wf, true
		}
	}
	return workflows.Workflows[0], true
}

// poll watches workflow runs on the branch, most recent first, until the
// first completed run or the timeout.
func (m *Monitor) poll(ctx context.Context, owner, repo, branch string, obs Observation) Observation {
	deadline := time.Now().Add(m.cfg.CITimeout)

	// Give the remote a moment to materialize the run before the first poll.
	select {
	case <-time.After(m.cfg.CISettleDelay):
	case <-ctx.Done():
		obs.Conclusion = "timeout"
		return obs
	}

	limiter := rate.NewLimiter(rate.Every(m.cfg.CIPollInterval), 1)
	// Drain the initial burst token; otherwise the first two polls fire
	// back-to-back instead of a full interval apart.
	limiter.Reserve()
	for {
		if time.Now().After(deadline) || ctx.Err() != nil {
			m.logger.Warn("CI observation timed out", zap.String("branch", branch))
			obs.Passed = false
			obs.Conclusion = "timeout"
			return obs
		}

		runs, _, err := m.api.ListRepositoryWorkflowRuns(ctx, owner, repo, &github.ListWorkflowRunsOptions{
			Branch:      branch,
			ListOptions: github.ListOptions{PerPage: 10},
		})
		if err != nil {
			m.logger.Warn("Polling workflow runs failed; retrying", zap.Error(err))
		} else {
			for _, run := range runs.WorkflowRuns {
				if run.GetStatus() != "completed" {
					continue
				}
				conclusion := run.GetConclusion()
				obs.Passed = conclusion == "success"
				obs.Conclusion = conclusion
				obs.RunURL = run.GetHTMLURL()
				m.logger.Info("CI run completed",
					zap.String("conclusion", conclusion), zap.String("url", obs.RunURL))
				return obs
			}
			m.logger.Debug("No completed run yet", zap.Int("runs_seen", len(runs.WorkflowRuns)))
		}

		if err := limiter.Wait(ctx); err != nil {
			obs.Passed = false
			obs.Conclusion = "timeout"
			return obs
		}
	}
}
