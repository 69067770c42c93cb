package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// Options configures one batch load.
type Options struct {
	Operation      model.Operation
	SkipDuplicates bool
	DryRun         bool
	StepKey        string

	// Tx, when non-nil, journals every mutation for rollback.
	Tx *Tx
}

// Engine drives the shared batch loop over a Spec. Loaders serialize
// within a batch so journal ordering stays deterministic.
type Engine struct {
	lc *Context
}

// NewEngine builds a load engine bound to the loader context.
func NewEngine(lc *Context) *Engine {
	return &Engine{lc: lc}
}

// LoadBatch applies one batch of records through the spec. Per-record
// failures are captured in the result, never thrown; only infrastructure
// failures (journal append) abort the loop.
func (e *Engine) LoadBatch(ctx context.Context, spec *Spec, batch []model.Envelope, opts Options) (model.LoadResult, error) {
	var result model.LoadResult

	if !spec.SupportsOperation(opts.Operation) {
		return result, sluiceerrors.NewAdapterError(spec.EntityType,
			fmt.Errorf("operation %s not supported (supported: %s)", opts.Operation, joinOps(spec.SupportedOperations)))
	}

	lc := e.lc
	if opts.DryRun {
		scoped := *lc
		scoped.DryRun = true
		lc = &scoped
	}

	for i := range batch {
		record := batch[i]
		e.loadOne(ctx, spec, lc, record, opts, &result)
	}
	return result, nil
}

func (e *Engine) loadOne(ctx context.Context, spec *Spec, lc *Context, record model.Envelope, opts Options, result *model.LoadResult) {
	fail := func(message, code string, recoverable bool) {
		result.Failed++
		result.Errors = append(result.Errors, model.RecordError{
			StepKey:     opts.StepKey,
			Message:     message,
			Code:        code,
			Payload:     record.Data,
			Recoverable: recoverable,
			Timestamp:   time.Now(),
		})
	}

	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Sprintf("panic in loader %s: %v", spec.EntityType, r), "", false)
		}
	}()

	if validation := spec.Validate(ctx, lc, record, opts.Operation); !validation.Valid {
		fail(validationMessage(validation), validationCode(validation), false)
		return
	}

	existing, err := spec.FindExisting(ctx, lc, record)
	if err != nil {
		fail(err.Error(), "", e.recoverable(spec, err))
		return
	}

	if existing != nil {
		switch opts.Operation {
		case model.OpCreate:
			if opts.SkipDuplicates {
				result.Skipped++
				return
			}
			fail(fmt.Sprintf("%s already exists", spec.EntityType), sluiceerrors.CodeDuplicate, false)
			return
		case model.OpUpdate, model.OpUpsert:
			if !lc.DryRun {
				if err := e.update(ctx, spec, lc, existing.ID, existing.Fields, record, opts.Tx); err != nil {
					fail(err.Error(), "", e.recoverable(spec, err))
					return
				}
			}
			result.Updated++
			result.Succeeded++
			result.AffectedIDs = append(result.AffectedIDs, existing.ID)
			return
		case model.OpDelete:
			if !lc.DryRun {
				if err := e.delete(ctx, spec, lc, existing.ID, existing.Fields, opts.Tx); err != nil {
					fail(err.Error(), "", e.recoverable(spec, err))
					return
				}
			}
			result.Succeeded++
			result.AffectedIDs = append(result.AffectedIDs, existing.ID)
			return
		}
		return
	}

	// No existing entity.
	switch opts.Operation {
	case model.OpUpdate, model.OpDelete:
		result.Skipped++
		return
	case model.OpCreate, model.OpUpsert:
		if lc.DryRun {
			result.Created++
			result.Succeeded++
			return
		}
		id, err := spec.Create(ctx, lc, record)
		if err != nil {
			fail(err.Error(), "", e.recoverable(spec, err))
			return
		}
		if id == "" {
			// Handled failure inside the loader (e.g. asset download).
			fail(fmt.Sprintf("%s creation returned no entity", spec.EntityType), "", true)
			return
		}
		if opts.Tx != nil {
			if err := opts.Tx.Record(Op{Type: OpTypeCreate, EntityType: spec.EntityType, EntityID: id, New: record.Data}); err != nil {
				lc.Logger.Error(err, "journal append failed after create")
			}
		}
		result.Created++
		result.Succeeded++
		result.AffectedIDs = append(result.AffectedIDs, id)
	}
}

func (e *Engine) update(ctx context.Context, spec *Spec, lc *Context, id string, previous map[string]any, record model.Envelope, tx *Tx) error {
	if tx != nil {
		if err := tx.Record(Op{Type: OpTypeUpdate, EntityType: spec.EntityType, EntityID: id, Previous: previous, New: record.Data}); err != nil {
			return err
		}
	}
	return spec.Update(ctx, lc, id, record)
}

func (e *Engine) delete(ctx context.Context, spec *Spec, lc *Context, id string, previous map[string]any, tx *Tx) error {
	if tx != nil {
		if err := tx.Record(Op{Type: OpTypeDelete, EntityType: spec.EntityType, EntityID: id, Previous: previous}); err != nil {
			return err
		}
	}
	return lc.Entities.Delete(ctx, spec.EntityType, id)
}

func (e *Engine) recoverable(spec *Spec, err error) bool {
	if spec.ClassifyRecoverable != nil {
		return spec.ClassifyRecoverable(err)
	}
	return sluiceerrors.IsRecoverable(err.Error())
}

func validationMessage(v model.ValidationResult) string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v.Errors))
	for i, fe := range v.Errors {
		parts[i] = fe.Message
	}
	return strings.Join(parts, "; ")
}

func validationCode(v model.ValidationResult) string {
	if len(v.Errors) == 0 {
		return ""
	}
	return v.Errors[0].Code
}

func joinOps(ops []model.Operation) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = string(op)
	}
	return strings.Join(parts, ",")
}
