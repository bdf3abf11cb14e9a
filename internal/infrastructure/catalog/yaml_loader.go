package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mes-platform/production-service/internal/domain"
)

// document is the on-disk layout of a catalog file
type document struct {
	Machines []*domain.Machine `yaml:"machines"`
}

// Parse decodes a catalog document and checks it for duplicates
func Parse(data []byte) ([]*domain.Machine, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := validate(doc.Machines); err != nil {
		return nil, err
	}
	return doc.Machines, nil
}

// LoadFile reads and parses the catalog at path
func LoadFile(path string) ([]*domain.Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

func validate(machines []*domain.Machine) error {
	seen := make(map[string]bool, len(machines))
	for _, m := range machines {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return fmt.Errorf("catalog machine without a name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate catalog machine %q", name)
		}
		seen[name] = true

		for _, c := range m.Components {
			for _, mat := range c.Materials {
				processes := make(map[string]bool, len(mat.Processes))
				for _, p := range mat.Processes {
					if processes[p] {
						return fmt.Errorf("%s/%s/%s: duplicate process %q", m.Name, c.Name, mat.Name, p)
					}
					processes[p] = true
				}
			}
		}
	}
	return nil
}

// FileRepository serves a catalog held in memory, loaded from a YAML file
type FileRepository struct {
	machines []*domain.Machine
}

// NewFileRepository loads path into a read-only catalog
func NewFileRepository(path string) (*FileRepository, error) {
	machines, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &FileRepository{machines: machines}, nil
}

// ListMachines returns every department in file order
func (r *FileRepository) ListMachines(_ context.Context) ([]*domain.Machine, error) {
	return r.machines, nil
}

// FindMachine returns a department by name, nil when absent
func (r *FileRepository) FindMachine(_ context.Context, name string) (*domain.Machine, error) {
	for _, m := range r.machines {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, nil
}
