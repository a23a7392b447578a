package main

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// StagingManager owns everything under root. Remote keys map 1:1 onto paths below it.
type StagingManager struct {
	root  string
	sugar *zap.SugaredLogger
}

func NewStagingManager(root string, sugar *zap.SugaredLogger) *StagingManager {
	return &StagingManager{root: filepath.Clean(root), sugar: sugar}
}

func (s *StagingManager) Root() string {
	return s.root
}

func (s *StagingManager) LocalPathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// KeyFor is the inverse of LocalPathFor
func (s *StagingManager) KeyFor(localPath string) (string, error) {
	rel, err := filepath.Rel(s.root, localPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Owns reports whether key maps to a path strictly below the staging root
func (s *StagingManager) Owns(key string) bool {
	if validatePrefix(key) != nil {
		return false
	}
	return s.contains(s.LocalPathFor(key))
}

func (s *StagingManager) Exists(key string) bool {
	info, err := os.Stat(s.LocalPathFor(key))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// EnsureDirectories creates the prefix roots and any directory markers. Failures are
// logged and skipped so one bad path does not stop the batch.
func (s *StagingManager) EnsureDirectories(prefixes []string, markers []string) {
	for _, dir := range append(append([]string{}, prefixes...), markers...) {
		path := s.LocalPathFor(dir)
		if err := os.MkdirAll(path, os.FileMode(0755)); err != nil {
			s.sugar.Errorf("error creating staging directory %s: %v", path, err)
		}
	}
}

// RemoveStaleBundles deletes bundle archives left in a prefix directory by an earlier run
func (s *StagingManager) RemoveStaleBundles(prefix string) {
	for _, bundlePath := range s.FindBundles(prefix) {
		if err := os.Remove(bundlePath); err != nil {
			s.sugar.Errorf("error deleting old bundle %s: %v", bundlePath, err)
			continue
		}
		s.sugar.Infof("deleted old bundle %s", bundlePath)
	}
}

func (s *StagingManager) FindBundles(prefix string) []string {
	dir := s.LocalPathFor(prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.sugar.Errorf("error reading staging directory %s: %v", dir, err)
		}
		return nil
	}
	var bundles []string
	for _, entry := range entries {
		if entry.IsDir() || !isBundleName(entry.Name()) {
			continue
		}
		bundles = append(bundles, filepath.Join(dir, entry.Name()))
	}
	return bundles
}

// Cleanup removes a completed prefix directory and then its parent if nothing else is left
// in it. The staging root itself is never removed.
func (s *StagingManager) Cleanup(prefixDir string) {
	prefixDir = filepath.Clean(prefixDir)
	if !s.contains(prefixDir) {
		s.sugar.Errorf("refusing to clean up %s: not below staging root %s", prefixDir, s.root)
		return
	}
	if err := os.RemoveAll(prefixDir); err != nil {
		s.sugar.Errorf("error deleting staged files under %s: %v", prefixDir, err)
		return
	}
	s.sugar.Infof("deleted staged files under %s", prefixDir)

	parent := filepath.Dir(prefixDir)
	if !s.contains(parent) {
		return
	}
	entries, err := os.ReadDir(parent)
	if err != nil {
		s.sugar.Errorf("error reading %s after cleanup: %v", parent, err)
		return
	}
	if len(entries) == 0 {
		if err := os.Remove(parent); err != nil {
			s.sugar.Errorf("error removing empty directory %s: %v", parent, err)
		}
	}
}

// reports whether path is strictly below the staging root
func (s *StagingManager) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func bundleNameFor(dir string) string {
	return BUNDLE_MARKER + filepath.Base(dir) + BUNDLE_EXTENSION
}

func isBundleName(name string) bool {
	matched, err := filepath.Match(BUNDLE_GLOB, name)
	return err == nil && matched
}
