package server

import (
	"fmt"
	"os"
	"path/filepath"
)

const DBFileName = "sensorcast.db"

type DataPaths struct {
	RootDir string
	DBPath  string
}

func InitDataDir(root string) (DataPaths, error) {
	paths := DataPaths{
		RootDir: root,
		DBPath:  filepath.Join(root, DBFileName),
	}

	if err := os.MkdirAll(paths.RootDir, 0o755); err != nil {
		return paths, fmt.Errorf("create data directory %s: %w", paths.RootDir, err)
	}

	db, err := os.OpenFile(paths.DBPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return paths, fmt.Errorf("create/open sqlite file %s: %w", paths.DBPath, err)
	}
	if err := db.Close(); err != nil {
		return paths, fmt.Errorf("close sqlite file %s: %w", paths.DBPath, err)
	}

	return paths, nil
}
