// Package paths partitions the download working directory by job id, so
// concurrent Workers never collide on temp files, and owns the cleanup
// guarantee every Worker exit path relies on. Generalizes the teacher's
// app.Paths.EnsureDirectories idiom to a per-job subdirectory instead of a
// single shared Downloads folder.
package paths

import (
	"os"
	"path/filepath"
)

// JobDir returns the working directory a single job's artifacts live in,
// under dataDir/work/<jobID>.
func JobDir(dataDir, jobID string) string {
	return filepath.Join(dataDir, "work", jobID)
}

// EnsureJobDir creates a job's working directory, returning its path.
func EnsureJobDir(dataDir, jobID string) (string, error) {
	dir := JobDir(dataDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// CleanupJobDir removes a job's working directory and everything in it.
// Safe to call on a directory that was never created.
func CleanupJobDir(dataDir, jobID string) error {
	return os.RemoveAll(JobDir(dataDir, jobID))
}
