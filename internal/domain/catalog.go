package domain

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CustomOption is the literal operator choice for an item that is not in the catalog
const CustomOption = "other"

// MaxCustomProcesses bounds the synthesised process count of a custom item
const MaxCustomProcesses = 20

// Material lists the allowed sizes and the ordered process names of a material
type Material struct {
	Name      string   `bson:"name" json:"name" yaml:"name"`
	Sizes     []string `bson:"sizes" json:"sizes" yaml:"sizes"`
	Processes []string `bson:"processes" json:"processes" yaml:"processes"`
}

// HasSize reports whether size is allowed
func (m *Material) HasSize(size string) bool {
	for _, s := range m.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// ProcessPosition returns the catalog position of a process name
func (m *Material) ProcessPosition(process string) (int, bool) {
	for i, p := range m.Processes {
		if p == process {
			return i, true
		}
	}
	return -1, false
}

// Component groups materials
type Component struct {
	Name      string     `bson:"name" json:"name" yaml:"name"`
	Materials []Material `bson:"materials" json:"materials" yaml:"materials"`
}

// Machine is a catalog department
type Machine struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty" yaml:"-"`
	Name       string             `bson:"name" json:"name" yaml:"name"`
	Components []Component        `bson:"components" json:"components" yaml:"components"`
}

// FindComponent looks up a component by name
func (m *Machine) FindComponent(name string) (*Component, bool) {
	for i := range m.Components {
		if m.Components[i].Name == name {
			return &m.Components[i], true
		}
	}
	return nil, false
}

// FindMaterial looks up a material by name
func (c *Component) FindMaterial(name string) (*Material, bool) {
	for i := range c.Materials {
		if c.Materials[i].Name == name {
			return &c.Materials[i], true
		}
	}
	return nil, false
}

// IsCustomValue reports whether an operator choice is the custom escape hatch
func IsCustomValue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), CustomOption)
}

// SynthesizeCustomStages builds Process 1..n with ids process1..processN
func SynthesizeCustomStages(n int) ([]ProcessStage, error) {
	if n < 1 || n > MaxCustomProcesses {
		return nil, NewValidationError("processCount", fmt.Sprintf("must be between 1 and %d", MaxCustomProcesses))
	}
	stages := make([]ProcessStage, n)
	for i := 1; i <= n; i++ {
		stages[i-1] = NewProcessStage(fmt.Sprintf("process%d", i), fmt.Sprintf("Process %d", i))
	}
	return stages, nil
}

// CatalogRepository is the read-only process catalog
type CatalogRepository interface {
	// ListMachines returns every department with its components
	ListMachines(ctx context.Context) ([]*Machine, error)

	// FindMachine returns a department by name, nil when absent
	FindMachine(ctx context.Context, name string) (*Machine, error)
}

// CatalogWriter is implemented by catalog stores that can be seeded
type CatalogWriter interface {
	UpsertMachines(ctx context.Context, machines []*Machine) (int, error)
}
