package submissions

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"autograde/internal/common/storage"
	appErr "autograde/pkg/errors"

	"github.com/dustin/go-humanize"
)

// DirSize is the total size of the objects below one folder.
type DirSize struct {
	Path  string
	Depth int
	Bytes uint64
}

// Usage summarises the sizes below a prefix.
type Usage struct {
	Prefix string
	Total  uint64
	Dirs   []DirSize
}

// ListUsage aggregates object sizes by folder, down to maxDepth levels below prefix.
func ListUsage(ctx context.Context, store storage.ObjectStorage, bucket, prefix string, maxDepth int) (Usage, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	base := prefix
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	objs, err := storage.CollectObjects(store.ListObjects(ctx, bucket, base))
	if err != nil {
		return Usage{}, appErr.Wrapf(err, appErr.StorageError, "list objects failed")
	}
	usage := Usage{Prefix: prefix}
	sizes := make(map[string]uint64)
	for _, obj := range objs {
		size := uint64(0)
		if obj.SizeBytes > 0 {
			size = uint64(obj.SizeBytes)
		}
		usage.Total += size
		parts := strings.Split(strings.TrimPrefix(obj.Key, base), "/")
		// the last part is the object itself
		for depth := 1; depth < len(parts) && depth <= maxDepth; depth++ {
			sizes[strings.Join(parts[:depth], "/")] += size
		}
	}
	for p, size := range sizes {
		usage.Dirs = append(usage.Dirs, DirSize{Path: p, Depth: strings.Count(p, "/") + 1, Bytes: size})
	}
	sort.Slice(usage.Dirs, func(i, j int) bool { return usage.Dirs[i].Path < usage.Dirs[j].Path })
	return usage, nil
}

// Print writes one line per folder and the total. Unless all is set only
// top-level folders are printed.
func (u Usage) Print(w io.Writer, all bool) error {
	for _, d := range u.Dirs {
		if d.Bytes == 0 || (!all && d.Depth > 1) {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s \t%s\n", humanize.IBytes(d.Bytes), d.Path); err != nil {
			return err
		}
	}
	name := u.Prefix
	if name == "" {
		name = "/"
	}
	_, err := fmt.Fprintf(w, "Total size of %s: %s\n", name, humanize.IBytes(u.Total))
	return err
}
