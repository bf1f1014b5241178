package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/slothlet/slothlet/pkg/engine"
)

// Scanner walks a root directory and produces the ordered discovery
// forest consumed by the merge engine.
type Scanner struct {
	logger zerolog.Logger
}

// New creates a scanner.
func New(logger zerolog.Logger) *Scanner {
	return &Scanner{
		logger: logger.With().Str("component", "scanner").Logger(),
	}
}

// Scan returns the forest of candidate units under root. An unreadable
// root is fatal to the mount; everything else is skipped with a
// warning. Entries are ordered by name (os.ReadDir order).
func (s *Scanner) Scan(ctx context.Context, root string) (*engine.Dir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, engine.NewScanError("cannot read mount root", err).WithPath(root)
	}
	dir := s.scanDir(ctx, root, filepath.Base(root), entries)
	s.logger.Debug().
		Str("root", root).
		Int("units", countUnits(dir)).
		Msg("scan complete")
	return dir, nil
}

func (s *Scanner) scanDir(ctx context.Context, path, name string, entries []os.DirEntry) *engine.Dir {
	dir := &engine.Dir{Path: path, Name: name}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return dir
		}
		entryName := entry.Name()
		if strings.HasPrefix(entryName, ".") || strings.HasPrefix(entryName, "_") {
			continue
		}
		entryPath := filepath.Join(path, entryName)

		if entry.IsDir() {
			children, err := os.ReadDir(entryPath)
			if err != nil {
				// Only the mount root is fatal; unreadable subtrees are
				// reported and skipped.
				s.logger.Warn().Str("path", entryPath).Err(err).Msg("skipping unreadable directory")
				continue
			}
			sub := s.scanDir(ctx, entryPath, entryName, children)
			if len(sub.Units) == 0 && len(sub.Subdirs) == 0 {
				continue
			}
			dir.Subdirs = append(dir.Subdirs, sub)
			continue
		}

		format, ok := engine.FormatForPath(entryPath)
		if !ok {
			s.logger.Warn().Str("path", entryPath).Msg("skipping unclassifiable entry")
			continue
		}
		dir.Units = append(dir.Units, engine.UnitFile{
			Path:   entryPath,
			Name:   strings.TrimSuffix(entryName, filepath.Ext(entryName)),
			Format: format,
		})
	}
	return dir
}

func countUnits(dir *engine.Dir) int {
	n := len(dir.Units)
	for _, sub := range dir.Subdirs {
		n += countUnits(sub)
	}
	return n
}
