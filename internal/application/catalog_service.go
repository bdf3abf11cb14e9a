package application

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/logging"
)

// CatalogService serves the read-only process catalog and resolves the
// process path of new jobs
type CatalogService struct {
	repo   domain.CatalogRepository
	logger *logging.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo domain.CatalogRepository, logger *logging.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger.WithComponent("catalog"),
	}
}

// ListDepartments returns every department name in catalog order
func (s *CatalogService) ListDepartments(ctx context.Context) ([]string, error) {
	machines, err := s.repo.ListMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	names := make([]string, 0, len(machines))
	for _, m := range machines {
		names = append(names, m.Name)
	}
	return names, nil
}

// ListComponents returns the component names of a department
func (s *CatalogService) ListComponents(ctx context.Context, department string) ([]string, error) {
	machine, err := s.machine(ctx, department)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(machine.Components))
	for _, c := range machine.Components {
		names = append(names, c.Name)
	}
	return names, nil
}

// ListMaterials returns the materials of a component
func (s *CatalogService) ListMaterials(ctx context.Context, department, component string) ([]MaterialDTO, error) {
	machine, err := s.machine(ctx, department)
	if err != nil {
		return nil, err
	}
	comp, ok := machine.FindComponent(component)
	if !ok {
		return nil, fmt.Errorf("component %q: %w", component, domain.ErrCatalogNotFound)
	}
	out := make([]MaterialDTO, 0, len(comp.Materials))
	for _, m := range comp.Materials {
		out = append(out, MaterialDTO{Name: m.Name, Sizes: m.Sizes, Processes: m.Processes})
	}
	return out, nil
}

// FindMaterial looks up a material. A miss at any level returns false.
func (s *CatalogService) FindMaterial(ctx context.Context, department, component, material string) (*domain.Material, bool, error) {
	machine, err := s.repo.FindMachine(ctx, department)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find department: %w", err)
	}
	if machine == nil {
		return nil, false, nil
	}
	comp, ok := machine.FindComponent(component)
	if !ok {
		return nil, false, nil
	}
	mat, ok := comp.FindMaterial(material)
	return mat, ok, nil
}

func (s *CatalogService) machine(ctx context.Context, department string) (*domain.Machine, error) {
	machine, err := s.repo.FindMachine(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("failed to find department: %w", err)
	}
	if machine == nil {
		return nil, fmt.Errorf("department %q: %w", department, domain.ErrCatalogNotFound)
	}
	return machine, nil
}

// ResolveStages builds the process path of an item. Items whose department,
// component or material is "other" or missing from the catalog are custom.
func (s *CatalogService) ResolveStages(ctx context.Context, department string, item JobItem) ([]domain.ProcessStage, bool, error) {
	var material *domain.Material
	if !domain.IsCustomValue(department) && !domain.IsCustomValue(item.Component) && !domain.IsCustomValue(item.Material) {
		mat, ok, err := s.FindMaterial(ctx, department, item.Component, item.Material)
		if err != nil {
			return nil, false, err
		}
		if ok {
			material = mat
		}
	}

	if material == nil {
		stages, err := customStages(item)
		return stages, true, err
	}

	if len(material.Sizes) > 0 && !material.HasSize(item.Size) {
		return nil, false, domain.NewValidationError("size", fmt.Sprintf("%q is not offered for material %s", item.Size, material.Name))
	}
	if len(item.Processes) == 0 {
		return nil, false, domain.NewValidationError("processes", "at least one process stage is required")
	}

	type positioned struct {
		pos   int
		stage domain.ProcessStage
	}
	selected := make([]positioned, 0, len(item.Processes))
	for _, p := range item.Processes {
		pos, ok := material.ProcessPosition(p.StageID)
		if !ok {
			return nil, false, domain.NewValidationError("processes", fmt.Sprintf("unknown process %q for material %s", p.StageID, material.Name))
		}
		selected = append(selected, positioned{pos: pos, stage: domain.NewProcessStage(p.StageID, strings.TrimSpace(p.Name))})
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].pos < selected[j].pos })

	stages := make([]domain.ProcessStage, len(selected))
	for i, p := range selected {
		stages[i] = p.stage
	}
	return stages, false, nil
}

func customStages(item JobItem) ([]domain.ProcessStage, error) {
	if len(item.Processes) > 0 && item.ProcessCount > 0 {
		return nil, domain.NewValidationError("processCount", "give either process names or a process count, not both")
	}
	if len(item.Processes) > 0 {
		stages := make([]domain.ProcessStage, len(item.Processes))
		for i, p := range item.Processes {
			stages[i] = domain.NewProcessStage(p.StageID, strings.TrimSpace(p.Name))
		}
		return stages, nil
	}
	if item.ProcessCount > 0 {
		return domain.SynthesizeCustomStages(item.ProcessCount)
	}
	return nil, domain.NewValidationError("processes", "a custom item needs process names or a process count")
}
