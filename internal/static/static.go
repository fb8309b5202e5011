// Package static finds static assets in the configured and app directories,
// serves them and collects them into the static root.
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/planetterp/planetterp/internal/apps"
	"github.com/planetterp/planetterp/internal/config"
)

// ErrNotFound is returned when no source directory holds an asset.
var ErrNotFound = errors.New("static file not found")

// File is one asset found in a source directory.
type File struct {
	// Name is slash separated and relative to the source directory.
	Name string
	// Path is the absolute path on disk.
	Path string
	// Source is the directory the file was found in.
	Source string
}

// Finder searches source directories in order; the first match wins.
type Finder struct {
	dirs   []string
	ignore []string
}

// NewFinder searches Static.Dirs, then the static folder of every installed app.
func NewFinder(s config.Settings, installed []apps.App) *Finder {
	dirs := make([]string, 0, len(s.Static.Dirs)+len(installed))
	for _, dir := range s.Static.Dirs {
		dirs = append(dirs, s.Path(dir))
	}
	for _, dir := range apps.Dirs(installed, "static") {
		dirs = append(dirs, s.Path(dir))
	}
	return &Finder{
		dirs:   dedupe(dirs),
		ignore: append([]string(nil), s.Static.IgnorePatterns...),
	}
}

// Dirs returns the source directories in search order.
func (f *Finder) Dirs() []string {
	return append([]string(nil), f.dirs...)
}

// Ignored reports whether name matches an ignore pattern, either as a whole
// or by any of its path segments.
func (f *Finder) Ignored(name string) bool {
	for _, pattern := range f.ignore {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
		if strings.Contains(pattern, "/") {
			continue
		}
		for _, segment := range strings.Split(name, "/") {
			if ok, err := doublestar.Match(pattern, segment); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Find resolves name to the first existing file.
func (f *Finder) Find(name string) (File, error) {
	clean, ok := cleanName(name)
	if !ok || f.Ignored(clean) {
		return File{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, dir := range f.dirs {
		p := filepath.Join(dir, filepath.FromSlash(clean))
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return File{Name: clean, Path: p, Source: dir}, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return File{}, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return File{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// List walks every source directory and returns the visible files sorted by
// name. Files shadowed by an earlier directory are left out.
func (f *Finder) List() ([]File, error) {
	seen := make(map[string]bool)
	var out []File
	for _, dir := range f.dirs {
		fsys := os.DirFS(dir)
		err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && name == "." {
					return fs.SkipDir
				}
				return err
			}
			if name == "." {
				return nil
			}
			if f.Ignored(name) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() || seen[name] {
				return nil
			}
			seen[name] = true
			out = append(out, File{Name: name, Path: filepath.Join(dir, filepath.FromSlash(name)), Source: dir})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// cleanName rejects absolute and escaping names.
func cleanName(name string) (string, bool) {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "", false
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func dedupe(dirs []string) []string {
	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, dir := range dirs {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		out = append(out, dir)
	}
	return out
}
