// internal/committer/committer.go
package committer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
)

// CommitPrefix is the mandatory prefix of every commit this agent creates.
const CommitPrefix = "[AI-AGENT]"

// tokenUser is the username GitHub expects alongside a token credential.
const tokenUser = "x-access-token"

// Committer turns applied fixes into commits on the target branch and pushes
// them to the remote.
type Committer struct {
	logger      *zap.Logger
	authorName  string
	authorEmail string
	token       string
}

// New creates a committer with a fixed author identity.
func New(logger *zap.Logger, authorName, authorEmail, token string) *Committer {
	return &Committer{
		logger:      logger.Named("committer"),
		authorName:  authorName,
		authorEmail: authorEmail,
		token:       token,
	}
}

// PrepareBranch checks the target branch out, creating it when it does not
// exist locally.
func (c *Committer) PrepareBranch(workDir, branch string) error {
	repo, err := git.PlainOpen(workDir)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}

	refName := plumbing.NewBranchReferenceName(branch)
	_, err = repo.Reference(refName, true)
	create := errors.Is(err, plumbing.ErrReferenceNotFound)
	if err != nil && !create {
		return fmt.Errorf("failed to inspect branch %s: %w", branch, err)
	}

	// Keep preserves the applied-but-uncommitted fixes in the working tree.
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName, Create: create, Keep: true}); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
	}

	c.logger.Info("Branch ready", zap.String("branch", branch), zap.Bool("created", create))
	return nil
}

// CommitFixes groups Fixed fixes by file and creates one commit per file.
// Returns the number of commits created; zero fixes commit nothing.
func (c *Committer) CommitFixes(workDir string, fixes []schemas.AppliedFix) (int, error) {
	byFile := make(map[string][]schemas.AppliedFix)
	for _, fix := range fixes {
		if fix.Status != schemas.FixStatusFixed {
			continue
		}
		byFile[fix.File] = append(byFile[fix.File], fix)
	}
	if len(byFile) == 0 {
		return 0, nil
	}

	repo, err := git.PlainOpen(workDir)
	if err != nil {
		return 0, fmt.Errorf("failed to open repository: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return 0, fmt.Errorf("failed to open worktree: %w", err)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	commits := 0
	for _, file := range files {
		if _, err := worktree.Add(file); err != nil {
			return commits, fmt.Errorf("failed to stage %s: %w", file, err)
		}

		message := commitMessage(byFile[file])
		hash, err := worktree.Commit(message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  c.authorName,
				Email: c.authorEmail,
				When:  time.Now().UTC(),
			},
		})
		if err != nil {
			return commits, fmt.Errorf("failed to commit %s: %w", file, err)
		}
		commits++
		c.logger.Info("Committed fixes",
			zap.String("file", file),
			zap.String("commit", hash.String()[:8]),
			zap.Int("fix_count", len(byFile[file])))
	}
	return commits, nil
}

// commitMessage builds the mandatory-prefix message from the per-fix tuples.
func commitMessage(fixes []schemas.AppliedFix) string {
	parts := make([]string, 0, len(fixes))
	for _, fix := range fixes {
		parts = append(parts, fmt.Sprintf("%s in %s:%d - %s", fix.Kind, fix.File, fix.Line, fix.Description))
	}
	return CommitPrefix + " " + strings.Join(parts, "; ")
}

// Push force-pushes the branch to origin with upstream tracking. The
// configured token is injected as the credential when the origin URL does not
// already carry one.
func (c *Committer) Push(ctx context.Context, workDir, branch string) error {
	repo, err := git.PlainOpen(workDir)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	options := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/heads/%s", branch, branch)),
		},
		Force: true,
	}

	if c.token != "" && !originCarriesCredential(repo) {
		options.Auth = &githttp.BasicAuth{Username: tokenUser, Password: c.token}
	}

	c.logger.Info("Pushing branch", zap.String("branch", branch))
	if err := repo.PushContext(ctx, options); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			c.logger.Info("Remote already up to date", zap.String("branch", branch))
			return nil
		}
		return fmt.Errorf("failed to push branch %s: %w", branch, err)
	}
	return nil
}

// originCarriesCredential reports whether the origin URL already embeds a
// userinfo credential.
func originCarriesCredential(repo *git.Repository) bool {
	remote, err := repo.Remote("origin")
	if err != nil || len(remote.Config().URLs) == 0 {
		return false
	}
	url := remote.Config().URLs[0]
	at := strings.Index(url, "@")
	scheme := strings.Index(url, "://")
	return at != -1 && scheme != -1 && at > scheme
}
