// Package engine implements the embedded local-storage engine.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Persistence handles the disk I/O for the MemStore.
// Each origin is kept in its own JSON file inside DataDir.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir}, nil
}

func (p *Persistence) path(origin string) string {
	return filepath.Join(p.DataDir, fmt.Sprintf("%s.json", origin))
}

// Save writes a single origin's data to a JSON file atomically.
func (p *Persistence) Save(origin string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := p.path(origin)
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}

	// On Linux/Unix the rename replaces the file instantly, so a crash leaves
	// either the old file or the new one.
	return os.Rename(tempPath, filePath)
}

// Load returns the data stored for origin. A missing file yields an empty map.
// An unreadable or corrupt file is reported as an error together with an
// empty map so callers may continue with a blank storage.
func (p *Persistence) Load(origin string) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := make(map[string]string)

	content, err := os.ReadFile(p.path(origin))
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("read origin %s: %w", origin, err)
	}

	if err := json.Unmarshal(content, &data); err != nil {
		return make(map[string]string), fmt.Errorf("unmarshal origin %s: %w", origin, err)
	}
	return data, nil
}

// Origins lists every origin that has a data file.
func (p *Persistence) Origins() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	var list []string
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		list = append(list, file.Name()[:len(file.Name())-5]) // Strip .json
	}
	return list, nil
}
