package application

import (
	"strings"

	"github.com/mes-platform/production-service/internal/domain"
)

// CreateJobsCommand creates one job per item for a work order
type CreateJobsCommand struct {
	WorkOrder     string
	MachineName   string
	RequirementNo string
	Department    string
	Items         []JobItem
}

// JobItem describes one (component, material, size) combination.
// Catalog items select processes by name; custom items either name their
// processes or give a ProcessCount to synthesise generic stages.
// A Component or Material of "other" takes its stored name from
// CustomComponent or CustomMaterial.
type JobItem struct {
	Component       string
	Material        string
	CustomComponent string
	CustomMaterial  string
	Size            string
	Processes       []ProcessSelection
	ProcessCount    int
}

// names returns the component and material the job is stored under
func (i JobItem) names() (component, material string, err error) {
	component, err = customName("customComponent", i.Component, i.CustomComponent)
	if err != nil {
		return "", "", err
	}
	material, err = customName("customMaterial", i.Material, i.CustomMaterial)
	if err != nil {
		return "", "", err
	}
	return component, material, nil
}

func customName(field, choice, typed string) (string, error) {
	if !domain.IsCustomValue(choice) {
		return choice, nil
	}
	name := strings.TrimSpace(typed)
	if name == "" || domain.IsCustomValue(name) {
		return "", domain.NewValidationError(field, "enter a name for the custom option")
	}
	return name, nil
}

// ProcessSelection is one selected process with an optional display name
type ProcessSelection struct {
	StageID string
	Name    string
}

// ToggleStageCommand starts or stops the current stage
type ToggleStageCommand struct {
	JobID      string
	StageIndex int
}

// AdvanceJobCommand moves a stopped job forward
type AdvanceJobCommand struct {
	JobID string
}

// RenameStageCommand changes a stage display name
type RenameStageCommand struct {
	JobID   string
	StageID string
	Name    string
}

// AppendHaltRecordCommand appends a record from outside the tracker
type AppendHaltRecordCommand struct {
	JobID       string
	WorkOrder   string
	Machine     string
	Type        string
	Component   string
	FromProcess string
	ToProcess   string
	Duration    int64
}
