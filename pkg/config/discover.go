package config

import (
	"os"
	"path/filepath"
)

const envHome = "VISUAL_DIFF_HOME"

// FindFile returns the config file that applies to dir, or "" if there is none.
//
// Resolution order:
//  1. visual-diff.yaml (or .yml) in dir or the nearest parent that has one
//  2. visual-diff.yaml (or .yml) in $VISUAL_DIFF_HOME
func FindFile(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	for {
		if path := fileIn(dir); path != "" {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if home := os.Getenv(envHome); home != "" {
		return fileIn(home)
	}
	return ""
}

// Discover loads the config file FindFile picks for dir, or returns the
// defaults when there is none.
func Discover(dir string) (*Config, string, error) {
	path := FindFile(dir)
	if path == "" {
		cfg := Default()
		return &cfg, "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func fileIn(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
