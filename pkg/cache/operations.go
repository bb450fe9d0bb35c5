package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/grapheneos/appstore/internal/logger"
)

// Operation renders cache operations for the command line.
type Operation struct {
	pruner Pruner
}

// NewOperation creates a new cache operation instance.
func NewOperation(pruner Pruner) *Operation {
	return &Operation{pruner: pruner}
}

// Clean empties the cache.
func (op *Operation) Clean() (string, error) {
	logger.Debug("Cleaning cache", logger.Fields{"directory": op.pruner.Directory()})
	result, err := op.pruner.Clean()
	if err != nil {
		return "", fmt.Errorf("failed to clean cache: %w", err)
	}
	if result.RemovedFiles == 0 {
		return "No files were removed from the cache.", nil
	}
	return fmt.Sprintf("Removed %d files, freed %s of disk space.", result.RemovedFiles, FormatBytes(result.FreedBytes)), nil
}

// Prune runs one pruning pass.
func (op *Operation) Prune(ctx context.Context) (string, error) {
	result, err := op.pruner.Prune(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to prune cache: %w", err)
	}
	msg := fmt.Sprintf("Pruned %d obsolete and %d evicted versions, freed %s, %s remaining.",
		result.Obsolete, result.Evicted, FormatBytes(result.FreedBytes), FormatBytes(result.RemainingBytes))
	if result.LegacyRemoved {
		msg += "\nRemoved files of the previous cache layout."
	}
	return msg, nil
}

// Info describes the cache.
func (op *Operation) Info() (string, error) {
	info, err := op.pruner.Info()
	if err != nil {
		return "", fmt.Errorf("failed to get cache info: %w", err)
	}
	lastPruned := "never"
	if !info.LastPruned.IsZero() {
		lastPruned = info.LastPruned.Format(time.RFC1123)
	}
	return fmt.Sprintf(`Cache Information:
  Directory:    %s
  Total Size:   %s (%d files)
  Packages:     %d (%d versions)
  Last Pruned:  %s`,
		info.Directory,
		FormatBytes(info.TotalSize),
		info.Files,
		info.Packages,
		info.VersionDirs,
		lastPruned,
	), nil
}

// FormatBytes converts bytes to a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"K", "M", "G", "T", "P", "E"}
	if exp < len(units) {
		return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
	}
	return fmt.Sprintf("%d B", bytes)
}
