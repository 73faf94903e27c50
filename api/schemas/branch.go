// File: api/schemas/branch.go
package schemas

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// BranchSuffix terminates every derived branch name.
const BranchSuffix = "_AI_FIX"

var (
	whitespaceRunRegex = regexp.MustCompile(`\s+`)
	nonBranchCharRegex = regexp.MustCompile(`[^A-Z0-9_]`)
)

// DeriveBranchName builds the deterministic target branch for a team/leader
// pair: both tokens uppercased, whitespace collapsed to single underscores,
// remaining non-alphanumerics stripped, joined by an underscore and suffixed
// with BranchSuffix. The derivation is total; empty inputs still yield a
// valid branch name.
func DeriveBranchName(teamName, leaderName string) string {
	return branchToken(teamName) + "_" + branchToken(leaderName) + BranchSuffix
}

func branchToken(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = whitespaceRunRegex.ReplaceAllString(s, "_")
	return nonBranchCharRegex.ReplaceAllString(s, "")
}

// repoPathRegex matches "/{owner}/{repo}" with an optional ".git" suffix.
var repoPathRegex = regexp.MustCompile(`^/([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseRepoURL validates a GitHub repository URL and extracts its owner and
// name. Only https://github.com/{owner}/{repo}[.git] is accepted.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL: %w", err)
	}
	if u.Scheme != "https" || u.Host != "github.com" {
		return "", "", fmt.Errorf("repository URL must be of the form https://github.com/{owner}/{repo}")
	}
	matches := repoPathRegex.FindStringSubmatch(u.Path)
	if matches == nil {
		return "", "", fmt.Errorf("repository URL must be of the form https://github.com/{owner}/{repo}")
	}
	return matches[1], matches[2], nil
}
