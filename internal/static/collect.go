package static

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
)

// CollectOptions tunes Collect.
type CollectOptions struct {
	// DryRun reports what would be copied without touching the root.
	DryRun bool
	// Clear removes the root before copying.
	Clear bool
}

// CollectResult counts what Collect did.
type CollectResult struct {
	Copied     []string
	Unmodified []string
}

// Collect copies every visible asset into root. Files whose copy is at least
// as new as the source are left alone; each write replaces the target atomically.
func Collect(ctx context.Context, finder *Finder, root string, opts CollectOptions, logger *zap.Logger) (CollectResult, error) {
	var res CollectResult
	if root == "" {
		return res, fmt.Errorf("static root is not configured")
	}

	files, err := finder.List()
	if err != nil {
		return res, err
	}

	if opts.Clear && !opts.DryRun {
		if err := os.RemoveAll(root); err != nil {
			return res, fmt.Errorf("clear static root: %w", err)
		}
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dst := filepath.Join(root, filepath.FromSlash(file.Name))

		src, err := os.Stat(file.Path)
		if err != nil {
			return res, fmt.Errorf("stat %s: %w", file.Path, err)
		}
		if cur, err := os.Stat(dst); err == nil && !cur.ModTime().Before(src.ModTime()) && cur.Size() == src.Size() {
			res.Unmodified = append(res.Unmodified, file.Name)
			continue
		}

		if !opts.DryRun {
			if err := copyAtomic(file.Path, dst, src); err != nil {
				return res, err
			}
		}
		logger.Debug("static file collected", zap.String("name", file.Name), zap.String("source", file.Source))
		res.Copied = append(res.Copied, file.Name)
	}
	return res, nil
}

func copyAtomic(srcPath, dst string, info os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending %s: %w", dst, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, in); err != nil {
		return fmt.Errorf("copy %s: %w", srcPath, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("set times on %s: %w", dst, err)
	}
	return nil
}
