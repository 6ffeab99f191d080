package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cryobank/contract"
)

const backupSuffix = ".bak"

// createBackup copies the current primary file into the backup directory
// under a timestamped name. Caller holds the write lock.
func (s *Store) createBackup() (string, error) {
	src, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: read document for backup: %v", contract.ErrBackup, err)
	}
	if err := os.MkdirAll(s.cfg.BackupDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create backup dir: %v", contract.ErrBackup, err)
	}

	base := filepath.Base(s.cfg.Path)
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(s.cfg.BackupDir, fmt.Sprintf("%s.%s%s", base, stamp, backupSuffix))
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(s.cfg.BackupDir, fmt.Sprintf("%s.%s.%d%s", base, stamp, i, backupSuffix))
	}

	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", fmt.Errorf("%w: write backup: %v", contract.ErrBackup, err)
	}
	s.pruneBackups()
	return path, nil
}

func (s *Store) pruneBackups() {
	if s.cfg.BackupKeep <= 0 {
		return
	}
	backups := s.listBackups()
	for _, old := range backups[min(len(backups), s.cfg.BackupKeep):] {
		_ = os.Remove(old)
	}
}

// ListBackups returns backup paths, newest first.
func (s *Store) ListBackups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBackups()
}

func (s *Store) listBackups() []string {
	entries, err := os.ReadDir(s.cfg.BackupDir)
	if err != nil {
		return nil
	}
	type stamped struct {
		path string
		mod  time.Time
	}
	var backups []stamped
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), backupSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, stamped{filepath.Join(s.cfg.BackupDir, entry.Name()), info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].mod.Equal(backups[j].mod) {
			return backups[i].mod.After(backups[j].mod)
		}
		return backups[i].path > backups[j].path
	})
	paths := make([]string, len(backups))
	for i, b := range backups {
		paths[i] = b.path
	}
	return paths
}
