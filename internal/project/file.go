package project

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"vibration-backend/internal/models"
)

// FileProvider serves project metadata from a JSON file on disk. The file
// holds one project; the configuration editor that writes it lives outside
// this service. The file is read once and cached, since the resolver asks
// for metadata on every frame.
type FileProvider struct {
	path string

	mu     sync.Mutex
	cached *models.Project
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// GetProjectData returns the project if its name matches.
func (p *FileProvider) GetProjectData(name string) (*models.Project, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached == nil {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read project file: %w", err)
		}
		var proj models.Project
		if err := json.Unmarshal(data, &proj); err != nil {
			return nil, fmt.Errorf("failed to parse project file: %w", err)
		}
		p.cached = &proj
	}

	if p.cached.Name != name {
		return nil, fmt.Errorf("project %q not found in %s", name, p.path)
	}
	return p.cached, nil
}

// Reload drops the cache so the next read picks up file changes.
func (p *FileProvider) Reload() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
