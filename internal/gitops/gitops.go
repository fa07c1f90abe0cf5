// Package gitops commits completed work to git branches. Operations shell
// out to the git binary; each returns a uniform result rather than a bare
// error so callers can surface partial outcomes (e.g. a commit that landed
// but could not be pushed).
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/elephantgerald/bartleby-sub001/internal/ai"
	"github.com/elephantgerald/bartleby-sub001/internal/debug"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// firstLineLimit caps the commit subject per convention.
const firstLineLimit = 72

// OperationResult is the uniform outcome shape for git operations.
type OperationResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message,omitempty"`
	BranchName       string   `json:"branch_name,omitempty"`
	CommitSha        string   `json:"commit_sha,omitempty"`
	HasConflicts     bool     `json:"has_conflicts,omitempty"`
	ConflictingFiles []string `json:"conflicting_files,omitempty"`
}

// Service is the git port. A work item's completed changes flow through
// CreateOrSwitchToBranch then CommitChanges, optionally followed by Push.
type Service interface {
	IsGitRepository(ctx context.Context, dir string) bool
	InitializeRepository(ctx context.Context, dir string) (*OperationResult, error)
	CreateOrSwitchToBranch(ctx context.Context, item *types.WorkItem, dir string) (*OperationResult, error)
	CommitChanges(ctx context.Context, item *types.WorkItem, result *ai.WorkResult, dir string) (*OperationResult, error)
	Push(ctx context.Context, dir, remote string) (*OperationResult, error)
	GetStatus(ctx context.Context, dir string) (*OperationResult, error)
}

// ExecService implements Service by shelling out to git.
type ExecService struct{}

var _ Service = (*ExecService)(nil)

// NewExecService creates the exec-backed git service.
func NewExecService() *ExecService {
	return &ExecService{}
}

// runGit executes a git command in dir and returns its combined output.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("git %s: %w: %s", args[0], err, output)
	}
	return output, nil
}

// IsGitRepository reports whether dir is inside a git work tree.
func (s *ExecService) IsGitRepository(ctx context.Context, dir string) bool {
	out, err := runGit(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// InitializeRepository runs git init in dir.
func (s *ExecService) InitializeRepository(ctx context.Context, dir string) (*OperationResult, error) {
	out, err := runGit(ctx, dir, "init")
	if err != nil {
		return &OperationResult{Message: out}, err
	}
	return &OperationResult{Success: true, Message: out}, nil
}

// CreateOrSwitchToBranch checks out the item's work branch, creating it if
// needed. The branch name is stable for an item, so repeated work on the
// same item lands on the same branch.
func (s *ExecService) CreateOrSwitchToBranch(ctx context.Context, item *types.WorkItem, dir string) (*OperationResult, error) {
	branch := BranchName(item)

	// -B resets an existing branch only when creating; prefer switching to
	// an existing branch to preserve its history.
	if _, err := runGit(ctx, dir, "rev-parse", "--verify", "refs/heads/"+branch); err == nil {
		if out, err := runGit(ctx, dir, "checkout", branch); err != nil {
			return &OperationResult{BranchName: branch, Message: out}, err
		}
		return &OperationResult{Success: true, BranchName: branch}, nil
	}

	if out, err := runGit(ctx, dir, "checkout", "-b", branch); err != nil {
		return &OperationResult{BranchName: branch, Message: out}, err
	}
	return &OperationResult{Success: true, BranchName: branch}, nil
}

// CommitChanges stages everything and commits with a conventional message
// built from the item and the work result. A clean tree yields Success with
// an explanatory message and no sha. Merge conflicts abort the commit and
// are reported through HasConflicts/ConflictingFiles.
func (s *ExecService) CommitChanges(ctx context.Context, item *types.WorkItem, result *ai.WorkResult, dir string) (*OperationResult, error) {
	branch := BranchName(item)

	status, err := runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return &OperationResult{BranchName: branch, Message: status}, err
	}
	if conflicts := conflictingFiles(status); len(conflicts) > 0 {
		return &OperationResult{
			BranchName:       branch,
			Message:          "working tree has unresolved merge conflicts",
			HasConflicts:     true,
			ConflictingFiles: conflicts,
		}, nil
	}
	if status == "" {
		return &OperationResult{Success: true, BranchName: branch, Message: "nothing to commit"}, nil
	}

	if out, err := runGit(ctx, dir, "add", "-A"); err != nil {
		return &OperationResult{BranchName: branch, Message: out}, err
	}

	if out, err := runGit(ctx, dir, "commit", "-m", CommitMessage(item, result)); err != nil {
		return &OperationResult{BranchName: branch, Message: out}, err
	}

	sha, err := runGit(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		debug.Logf("gitops: failed to read HEAD after commit: %v\n", err)
		sha = ""
	}

	return &OperationResult{Success: true, BranchName: branch, CommitSha: sha}, nil
}

// Push pushes the current branch to remote.
func (s *ExecService) Push(ctx context.Context, dir, remote string) (*OperationResult, error) {
	if remote == "" {
		remote = "origin"
	}
	out, err := runGit(ctx, dir, "push", "-u", remote, "HEAD")
	if err != nil {
		return &OperationResult{Message: out}, err
	}
	return &OperationResult{Success: true, Message: out}, nil
}

// GetStatus reports the porcelain status, flagging merge conflicts.
func (s *ExecService) GetStatus(ctx context.Context, dir string) (*OperationResult, error) {
	out, err := runGit(ctx, dir, "status", "--porcelain")
	if err != nil {
		return &OperationResult{Message: out}, err
	}
	conflicts := conflictingFiles(out)
	return &OperationResult{
		Success:          len(conflicts) == 0,
		Message:          out,
		HasConflicts:     len(conflicts) > 0,
		ConflictingFiles: conflicts,
	}, nil
}

// conflictingFiles extracts paths in conflict from porcelain status output.
// Conflict states are the unmerged XY codes: DD, AU, UD, UA, DU, AA, UU.
func conflictingFiles(porcelain string) []string {
	var files []string
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 4 {
			continue
		}
		switch line[:2] {
		case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files
}

// branchUnsafePattern matches runs of characters not allowed in the branch slug.
var branchUnsafePattern = regexp.MustCompile(`[^a-z0-9]+`)

// BranchName derives the work branch for an item:
// bartleby/<external-id-or-id-prefix>-<sanitised-title>.
func BranchName(item *types.WorkItem) string {
	ref := item.ExternalID
	if ref == "" {
		ref = item.ID
		if len(ref) > 8 {
			ref = ref[:8]
		}
	}

	slug := branchUnsafePattern.ReplaceAllString(strings.ToLower(item.Title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	if slug == "" {
		return "bartleby/" + ref
	}
	return "bartleby/" + ref + "-" + slug
}

// CommitMessage builds a conventional-commit message: a subject capped at 72
// characters and a body carrying the work summary and modified files.
func CommitMessage(item *types.WorkItem, result *ai.WorkResult) string {
	subject := "feat: " + item.Title
	if item.ExternalID != "" {
		subject = fmt.Sprintf("feat: %s (#%s)", item.Title, item.ExternalID)
	}
	if len(subject) > firstLineLimit {
		subject = subject[:firstLineLimit-3] + "..."
	}

	var b strings.Builder
	b.WriteString(subject)

	if result != nil && result.Summary != "" {
		b.WriteString("\n\n")
		b.WriteString(result.Summary)
	}
	if result != nil && len(result.ModifiedFiles) > 0 {
		b.WriteString("\n\nModified files:\n")
		for _, f := range result.ModifiedFiles {
			b.WriteString("  - ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	return b.String()
}
