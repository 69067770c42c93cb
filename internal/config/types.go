package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sluicehq/sluice/internal/transform"
)

// PipelineStatus is the publication lifecycle of a definition.
type PipelineStatus string

const (
	StatusDraft     PipelineStatus = "DRAFT"
	StatusReview    PipelineStatus = "REVIEW"
	StatusPublished PipelineStatus = "PUBLISHED"
	StatusArchived  PipelineStatus = "ARCHIVED"
)

// StepType discriminates the tagged step union.
type StepType string

const (
	StepExtract   StepType = "EXTRACT"
	StepTransform StepType = "TRANSFORM"
	StepLoad      StepType = "LOAD"
	StepGate      StepType = "GATE"
	StepBranch    StepType = "BRANCH"
	StepMerge     StepType = "MERGE"
)

// ErrorPolicy selects run behaviour on step failure.
type ErrorPolicy string

const (
	FailFast ErrorPolicy = "FAIL_FAST"
	Continue ErrorPolicy = "CONTINUE"
)

// Pipeline is the storage/transport form of a definition. Published
// pipelines are immutable; edits go through a new draft version.
type Pipeline struct {
	Code        string         `yaml:"code" json:"code" validate:"required,adapter_code"`
	Name        string         `yaml:"name" json:"name" validate:"required,min=1,max=200"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`
	Status      PipelineStatus `yaml:"status,omitempty" json:"status,omitempty" validate:"omitempty,oneof=DRAFT REVIEW PUBLISHED ARCHIVED"`
	Version     int            `yaml:"version,omitempty" json:"version,omitempty" validate:"omitempty,min=1"`
	PublishedAt *time.Time     `yaml:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	Definition  Definition     `yaml:"definition" json:"definition"`
}

// Definition is the executable body of a pipeline.
type Definition struct {
	Steps             []Step             `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
	Triggers          []Trigger          `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Context           *ContextOverride   `yaml:"context,omitempty" json:"context,omitempty"`
	ErrorHandling     ErrorHandling      `yaml:"errorHandling,omitempty" json:"errorHandling,omitempty"`
	Checkpointing     Checkpointing      `yaml:"checkpointing,omitempty" json:"checkpointing,omitempty"`
	ParallelExecution ParallelExecution  `yaml:"parallelExecution,omitempty" json:"parallelExecution,omitempty"`
	Hooks             map[string][]Hook  `yaml:"hooks,omitempty" json:"hooks,omitempty"`
}

// Trigger binds an external invocation source to the pipeline. The
// runtime stores bindings; firing them is the platform's concern.
type Trigger struct {
	Type   string         `yaml:"type" json:"type" validate:"required"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// ContextOverride pins the channel and content language for a run.
type ContextOverride struct {
	Channel         string `yaml:"channel,omitempty" json:"channel,omitempty"`
	ContentLanguage string `yaml:"contentLanguage,omitempty" json:"contentLanguage,omitempty"`
}

// ErrorHandling configures failure policy for the run.
type ErrorHandling struct {
	Policy ErrorPolicy `yaml:"policy,omitempty" json:"policy,omitempty" validate:"omitempty,oneof=FAIL_FAST CONTINUE"`
	// StrictTransforms aborts a transform chain on element failure
	// instead of passing the prior value through.
	StrictTransforms bool `yaml:"strictTransforms,omitempty" json:"strictTransforms,omitempty"`
	// MaxErrors bounds the error list carried in the run summary.
	MaxErrors int `yaml:"maxErrors,omitempty" json:"maxErrors,omitempty" validate:"omitempty,min=1"`
}

// Checkpointing selects the save boundary.
type Checkpointing struct {
	After string `yaml:"after,omitempty" json:"after,omitempty" validate:"omitempty,oneof=STEP BATCH"`
}

// ParallelExecution tunes intra-step concurrency and batch sizing.
type ParallelExecution struct {
	MaxConcurrent int `yaml:"maxConcurrent,omitempty" json:"maxConcurrent,omitempty" validate:"omitempty,min=1,max=64"`
	BatchSize     int `yaml:"batchSize,omitempty" json:"batchSize,omitempty" validate:"omitempty,min=1,max=10000"`
}

// Hook names a handler invoked on a run lifecycle event.
type Hook struct {
	Handler string         `yaml:"handler" json:"handler" validate:"required"`
	Config  map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Step is one unit of the pipeline data-flow graph. The config map's
// schema is owned by the adapter selected via AdapterCode.
type Step struct {
	Key         string         `yaml:"key" json:"key" validate:"required,step_key"`
	Type        StepType       `yaml:"type" json:"type" validate:"required,oneof=EXTRACT TRANSFORM LOAD GATE BRANCH MERGE"`
	AdapterCode string         `yaml:"adapterCode,omitempty" json:"adapterCode,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	Transform *TransformStep `yaml:"-" json:"-"`
	Load      *LoadStep      `yaml:"-" json:"-"`
	Gate      *GateStep      `yaml:"-" json:"-"`
	Branch    *BranchStep    `yaml:"-" json:"-"`
	Merge     *MergeStep     `yaml:"-" json:"-"`
}

// TransformStep configures a TRANSFORM step's field mappings.
type TransformStep struct {
	Mappings []transform.FieldMapping `yaml:"mappings" json:"mappings"`
}

// LoadStep configures a LOAD step.
type LoadStep struct {
	EntityType     string `yaml:"entityType" json:"entityType"`
	Operation      string `yaml:"operation" json:"operation"`
	SkipDuplicates bool   `yaml:"skipDuplicates,omitempty" json:"skipDuplicates,omitempty"`
	Rollback       bool   `yaml:"rollback,omitempty" json:"rollback,omitempty"`
}

// GateStep configures a conditional pause point. An empty condition
// always blocks until an external resume.
type GateStep struct {
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// BranchStep partitions records by predicate; records matching the
// predicate continue on the named target step, the rest continue in
// sequence.
type BranchStep struct {
	Predicate string `yaml:"predicate" json:"predicate"`
	Target    string `yaml:"target" json:"target"`
}

// MergeStep recombines a branch's records back into the main flow.
type MergeStep struct {
	From []string `yaml:"from,omitempty" json:"from,omitempty"`
}

// UnmarshalYAML decodes the step union: shared fields first, then the
// type-specific block out of the config map.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type rawStep struct {
		Key         string         `yaml:"key"`
		Type        StepType       `yaml:"type"`
		AdapterCode string         `yaml:"adapterCode"`
		Config      map[string]any `yaml:"config"`
	}
	var raw rawStep
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Key = raw.Key
	s.Type = raw.Type
	s.AdapterCode = raw.AdapterCode
	s.Config = raw.Config

	return s.DecodeTyped()
}

// StepIndex builds a lookup table for steps by key.
func StepIndex(steps []Step) map[string]int {
	out := make(map[string]int, len(steps))
	for i, step := range steps {
		out[step.Key] = i
	}
	return out
}
