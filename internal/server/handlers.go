// internal/server/handlers.go
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/sandbox"
)

// submitRequest is the submit-run body.
type submitRequest struct {
	RepoURL    string `json:"repoUrl"`
	TeamName   string `json:"teamName"`
	LeaderName string `json:"leaderName"`
}

// validate returns one message per missing field.
func (r submitRequest) validate() []string {
	var messages []string
	if strings.TrimSpace(r.RepoURL) == "" {
		messages = append(messages, "repoUrl is required")
	}
	if strings.TrimSpace(r.TeamName) == "" {
		messages = append(messages, "teamName is required")
	}
	if strings.TrimSpace(r.LeaderName) == "" {
		messages = append(messages, "leaderName is required")
	}
	return messages
}

// handleSubmitRun accepts a run request, registers it and spawns the
// pipeline. Always responds quickly.
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request body",
			"messages": []string{err.Error()},
		})
		return
	}

	if messages := req.validate(); len(messages) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Validation failed",
			"messages": messages,
		})
		return
	}

	if _, _, err := schemas.ParseRepoURL(req.RepoURL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid repository URL: %v", err),
		})
		return
	}

	branch := schemas.DeriveBranchName(req.TeamName, req.LeaderName)
	run := s.registry.Create(req.RepoURL, req.TeamName, req.LeaderName, branch)
	s.launcher.Launch(run)

	s.logger.Info("Run submitted",
		zap.String("run_id", run.ID),
		zap.String("repo", req.RepoURL),
		zap.String("branch", branch))

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "running",
		"runId":   run.ID,
		"branch":  branch,
		"message": "Agent pipeline started. Poll /api/results/" + run.ID + " for progress.",
	})
}

// handleResults serves the poll endpoint: trailing events while the run is in
// flight, the final report once terminal.
func (s *Server) handleResults(c *gin.Context) {
	runID := c.Param("runId")
	run, ok := s.registry.Get(runID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	if !run.Status.Terminal() {
		c.JSON(http.StatusOK, gin.H{
			"status":    "processing",
			"runId":     run.ID,
			"startedAt": run.StartedAt,
			"logs":      s.bus.History(run.ID),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      run.Status,
		"runId":       run.ID,
		"startedAt":   run.StartedAt,
		"completedAt": run.CompletedAt,
		"result":      run.Report,
	})
}

// handleListRuns serves summaries of every known run.
func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.registry.List()})
}

// handleHealth reports liveness and process uptime.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleDockerStatus probes the container daemon backing the sandbox.
func (s *Server) handleDockerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, sandbox.ProbeDaemon(c.Request.Context()))
}
