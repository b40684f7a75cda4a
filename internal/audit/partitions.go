package audit

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yourorg/case-audit/internal/iopkg"
	"github.com/yourorg/case-audit/internal/reference"
	"github.com/yourorg/case-audit/internal/types"
)

// Partitions lists the folders under root holding at least one file that
// matches pattern, in name order. Each folder's location comes from its
// suffix, or is the folder name when the suffix is unknown. A non-empty
// only keeps folders whose name or location it lists.
func Partitions(ctx context.Context, root string, pattern *regexp.Regexp, only []string) ([]types.Partition, error) {
	uris, err := iopkg.List(ctx, root)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(only))
	for _, l := range only {
		want[l] = true
	}
	var out []types.Partition
	seen := make(map[string]bool)
	for _, uri := range uris {
		if !pattern.MatchString(iopkg.Base(uri)) {
			continue
		}
		dir := parent(uri)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		folder := iopkg.Base(dir)
		loc := reference.FolderLocation(folder)
		if loc == reference.Unknown {
			loc = folder
		}
		if len(want) > 0 && !want[folder] && !want[loc] {
			continue
		}
		out = append(out, types.Partition{URI: dir, Folder: folder, Location: loc})
	}
	return out, nil
}

// parent is the folder URI holding uri. S3 folders keep their trailing
// slash so a listing does not pick up sibling prefixes.
func parent(uri string) string {
	if strings.HasPrefix(uri, "s3://") {
		return uri[:strings.LastIndex(uri, "/")+1]
	}
	return filepath.Dir(uri)
}
