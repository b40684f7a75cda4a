package activities

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yourorg/case-audit/internal/types"
)

// ErrInvalidScratch rejects a cleanup target outside the scratch root.
var ErrInvalidScratch = errors.New("invalid scratch subdir for cleanup")

// CleanupScratch removes a run's scratch subdirectory, including any
// duplicate sets a failed partition left behind. Missing directories are
// not an error.
func (a *Activities) CleanupScratch(ctx context.Context, p types.CleanupParams) error {
	sub := filepath.Clean(p.ScratchSubdir)
	if sub == "." || sub == "/" || filepath.IsAbs(sub) || sub == ".." || strings.HasPrefix(sub, ".."+string(filepath.Separator)) {
		// never the root itself or anything above it
		return temporal.NewNonRetryableApplicationError(p.ScratchSubdir, "InvalidScratch", ErrInvalidScratch)
	}
	base := filepath.Join(a.cfg.ScratchDir, sub)
	if err := os.RemoveAll(base); err != nil {
		return err
	}
	activity.GetLogger(ctx).Info("Removed scratch", "dir", base)
	return nil
}
