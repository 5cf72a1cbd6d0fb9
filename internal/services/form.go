package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fairlead/disclosure-backend/internal/engine"
	"github.com/fairlead/disclosure-backend/internal/logger"
	pkgerrors "github.com/fairlead/disclosure-backend/internal/pkg/errors"
	"github.com/fairlead/disclosure-backend/internal/platform/apierr"
	"github.com/fairlead/disclosure-backend/internal/repos"
	"github.com/fairlead/disclosure-backend/internal/schema"
	"github.com/fairlead/disclosure-backend/internal/types"
)

const (
	persistAttempts = 3
	persistBackoff  = 300 * time.Millisecond
)

// SaveStepResult is the persisted-record projection returned to callers
// after a successful step write.
type SaveStepResult struct {
	Record *types.FormRecord `json:"record"`
	Issues []engine.Issue    `json:"issues,omitempty"`
}

// SubmitResult carries either the submitted record or the blocking issue
// list when validation refuses the transition.
type SubmitResult struct {
	Record *types.FormRecord `json:"record,omitempty"`
	Issues []engine.Issue    `json:"issues,omitempty"`
}

// FormService is the step lifecycle controller. It owns the status state
// machine (draft → submitted → approved/rejected, edit reverts to draft)
// and is the only path the HTTP layer uses to touch form persistence.
type FormService interface {
	CreateRecord(ctx context.Context, userID uuid.UUID, step int, values map[string]any) (*SaveStepResult, error)
	SaveStep(ctx context.Context, recordID uuid.UUID, step int, values map[string]any) (*SaveStepResult, error)
	List(ctx context.Context, userID uuid.UUID) ([]*types.FormRecord, error)
	Validate(ctx context.Context, recordID uuid.UUID, scope engine.Scope) ([]engine.Issue, error)
	Submit(ctx context.Context, recordID uuid.UUID) (*SubmitResult, error)
	Review(ctx context.Context, recordID uuid.UUID, status string) (*types.FormRecord, error)
	Delete(ctx context.Context, recordID uuid.UUID) error
	Get(ctx context.Context, recordID uuid.UUID) (*types.FormRecord, map[string]any, error)
}

type formService struct {
	db         *gorm.DB
	log        *logger.Logger
	schema     *schema.Schema
	visibility *engine.VisibilityResolver
	derivation *engine.DerivationEngine
	validator  *engine.Validator
	recordRepo repos.FormRecordRepo
	valueRepo  repos.FormValueRepo
	notifier   SubmissionNotifier
}

func NewFormService(
	db *gorm.DB,
	log *logger.Logger,
	s *schema.Schema,
	recordRepo repos.FormRecordRepo,
	valueRepo repos.FormValueRepo,
	notifier SubmissionNotifier,
) FormService {
	vis := engine.NewVisibilityResolver(s)
	derive := engine.NewDerivationEngine(s, vis)
	return &formService{
		db:         db,
		log:        log.With("service", "FormService"),
		schema:     s,
		visibility: vis,
		derivation: derive,
		validator:  engine.NewValidator(s, vis, derive),
		recordRepo: recordRepo,
		valueRepo:  valueRepo,
		notifier:   notifier,
	}
}

// inTx brackets persistence work in one transaction. Without a configured
// database the work runs directly against the repos' own handles.
func (fs *formService) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if fs.db == nil {
		return fn(nil)
	}
	return fs.db.WithContext(ctx).Transaction(fn)
}

// CreateRecord starts a record from the first step's save. Creation and
// the initial draft status are assigned in the same transaction, so there
// is no moment where the record exists without a status.
func (fs *formService) CreateRecord(ctx context.Context, userID uuid.UUID, step int, values map[string]any) (*SaveStepResult, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id required", pkgerrors.ErrInvalidArgument)
	}
	if steps := fs.schema.Steps(); len(steps) == 0 || step != steps[0] {
		return nil, fmt.Errorf("%w: a record is created by saving the first step", pkgerrors.ErrInvalidArgument)
	}
	record := &types.FormRecord{
		ID:         uuid.New(),
		UserID:     userID,
		FormType:   fs.schema.Name,
		Status:     types.StatusDraft,
		StepStatus: datatypes.JSONMap{},
	}
	var result *SaveStepResult
	err := fs.withRetry(ctx, "create record", func() error {
		return fs.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := fs.recordRepo.Create(ctx, tx, []*types.FormRecord{record}); err != nil {
				return fmt.Errorf("create form record: %w", err)
			}
			res, err := fs.applyStep(ctx, tx, record, step, values)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveStep persists one step's payload. If the record is not in draft it
// is flipped back first, inside the same transaction, so no reader ever
// observes submitted status alongside post-edit values. Saving never
// blocks on validation: drafts may be incomplete. Issues for the step are
// returned as advisory data.
func (fs *formService) SaveStep(ctx context.Context, recordID uuid.UUID, step int, values map[string]any) (*SaveStepResult, error) {
	var result *SaveStepResult
	err := fs.withRetry(ctx, "save step", func() error {
		return fs.inTx(ctx, func(tx *gorm.DB) error {
			record, err := fs.recordRepo.GetByIDForUpdate(ctx, tx, recordID)
			if err != nil {
				return fmt.Errorf("load form record: %w", err)
			}
			if record == nil {
				return fmt.Errorf("%w: form record %s", pkgerrors.ErrNotFound, recordID)
			}
			res, err := fs.applyStep(ctx, tx, record, step, values)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyStep runs inside the caller's transaction. Sequencing matters: the
// draft reversion is written before any field write becomes visible.
func (fs *formService) applyStep(ctx context.Context, tx *gorm.DB, record *types.FormRecord, step int, values map[string]any) (*SaveStepResult, error) {
	if !fs.validStep(step) {
		return nil, fmt.Errorf("%w: unknown step %d", pkgerrors.ErrInvalidArgument, step)
	}

	now := time.Now().UTC()

	if record.Status != types.StatusDraft {
		if err := fs.recordRepo.UpdateFields(ctx, tx, record.ID, map[string]interface{}{
			"status":       types.StatusDraft,
			"submitted_at": nil,
			"updated_at":   now,
		}); err != nil {
			return nil, fmt.Errorf("revert to draft: %w", err)
		}
		fs.log.Info("Record reverted to draft by edit", "record_id", record.ID.String(), "previous_status", record.Status)
		record.Status = types.StatusDraft
		record.SubmittedAt = nil
	}

	rows, err := fs.toFormValues(record.ID, values)
	if err != nil {
		return nil, err
	}
	if err := fs.valueRepo.Upsert(ctx, tx, rows); err != nil {
		return nil, fmt.Errorf("upsert form values: %w", err)
	}
	for fieldID, raw := range values {
		f, ok := fs.schema.Fields[fieldID]
		if !ok || f.Kind != schema.KindRowGroup {
			continue
		}
		if err := fs.valueRepo.DeleteRows(ctx, tx, record.ID, fieldID, rowIDsOf(raw)); err != nil {
			return nil, fmt.Errorf("prune removed rows: %w", err)
		}
	}

	if record.StepStatus == nil {
		record.StepStatus = datatypes.JSONMap{}
	}
	record.StepStatus[strconv.Itoa(step)] = types.StepCompletion{Completed: true, UpdatedAt: now}
	if step > record.LastCompletedStep {
		record.LastCompletedStep = step
	}
	if err := fs.recordRepo.UpdateFields(ctx, tx, record.ID, map[string]interface{}{
		"step_status":         record.StepStatus,
		"last_completed_step": record.LastCompletedStep,
		"updated_at":          now,
	}); err != nil {
		return nil, fmt.Errorf("update completion metadata: %w", err)
	}

	store, err := fs.loadStore(ctx, tx, record.ID)
	if err != nil {
		return nil, err
	}
	issues := fs.validator.Validate(store, engine.StepScope(step))
	return &SaveStepResult{Record: record, Issues: issues}, nil
}

func (fs *formService) Validate(ctx context.Context, recordID uuid.UUID, scope engine.Scope) ([]engine.Issue, error) {
	record, err := fs.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	store, err := fs.loadStore(ctx, nil, record.ID)
	if err != nil {
		return nil, err
	}
	return fs.validator.Validate(store, scope), nil
}

// Submit re-validates the entire form, not just the latest step: a step
// can be individually valid while the union of all pages is not. Error
// issues refuse the transition and are returned in full; warnings pass.
func (fs *formService) Submit(ctx context.Context, recordID uuid.UUID) (*SubmitResult, error) {
	var result *SubmitResult
	err := fs.withRetry(ctx, "submit", func() error {
		return fs.inTx(ctx, func(tx *gorm.DB) error {
			record, err := fs.recordRepo.GetByIDForUpdate(ctx, tx, recordID)
			if err != nil {
				return fmt.Errorf("load form record: %w", err)
			}
			if record == nil {
				return fmt.Errorf("%w: form record %s", pkgerrors.ErrNotFound, recordID)
			}
			if record.Status != types.StatusDraft {
				return apierr.Conflict("INVALID_STATE", fmt.Errorf("%w: cannot submit record in status %q", pkgerrors.ErrInvalidState, record.Status))
			}

			store, err := fs.loadStore(ctx, tx, record.ID)
			if err != nil {
				return err
			}
			issues := fs.validator.Validate(store, engine.FormScope())
			if engine.HasErrors(issues) {
				result = &SubmitResult{Issues: issues}
				return nil
			}

			now := time.Now().UTC()
			if err := fs.recordRepo.UpdateFields(ctx, tx, record.ID, map[string]interface{}{
				"status":       types.StatusSubmitted,
				"submitted_at": now,
				"updated_at":   now,
			}); err != nil {
				return fmt.Errorf("mark submitted: %w", err)
			}
			record.Status = types.StatusSubmitted
			record.SubmittedAt = &now
			result = &SubmitResult{Record: record, Issues: issues}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Record != nil && fs.notifier != nil {
		if nErr := fs.notifier.NotifySubmitted(ctx, result.Record); nErr != nil {
			fs.log.Warn("Submission notification failed", "record_id", recordID.String(), "error", nErr)
		}
	}
	return result, nil
}

// Review resolves a submitted record to approved or rejected. Only the
// submitted state can be reviewed; the edit path takes either outcome
// back to draft.
func (fs *formService) Review(ctx context.Context, recordID uuid.UUID, status string) (*types.FormRecord, error) {
	if status != types.StatusApproved && status != types.StatusRejected {
		return nil, fmt.Errorf("%w: review status must be %q or %q", pkgerrors.ErrInvalidArgument, types.StatusApproved, types.StatusRejected)
	}
	var record *types.FormRecord
	err := fs.withRetry(ctx, "review", func() error {
		return fs.inTx(ctx, func(tx *gorm.DB) error {
			current, err := fs.recordRepo.GetByIDForUpdate(ctx, tx, recordID)
			if err != nil {
				return fmt.Errorf("load form record: %w", err)
			}
			if current == nil {
				return fmt.Errorf("%w: form record %s", pkgerrors.ErrNotFound, recordID)
			}
			if current.Status != types.StatusSubmitted {
				return apierr.Conflict("INVALID_STATE", fmt.Errorf("%w: cannot review record in status %q", pkgerrors.ErrInvalidState, current.Status))
			}
			now := time.Now().UTC()
			if err := fs.recordRepo.UpdateFields(ctx, tx, current.ID, map[string]interface{}{
				"status":     status,
				"updated_at": now,
			}); err != nil {
				return fmt.Errorf("mark reviewed: %w", err)
			}
			current.Status = status
			record = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	fs.log.Info("Record reviewed", "record_id", recordID.String(), "status", status)
	return record, nil
}

// Delete hard-deletes a draft. Submitted and approved records are
// immutable except through the edit-reverts-to-draft path, which protects
// the audit trail of what was actually submitted.
func (fs *formService) Delete(ctx context.Context, recordID uuid.UUID) error {
	return fs.withRetry(ctx, "delete", func() error {
		return fs.inTx(ctx, func(tx *gorm.DB) error {
			record, err := fs.recordRepo.GetByIDForUpdate(ctx, tx, recordID)
			if err != nil {
				return fmt.Errorf("load form record: %w", err)
			}
			if record == nil {
				return fmt.Errorf("%w: form record %s", pkgerrors.ErrNotFound, recordID)
			}
			if record.Status != types.StatusDraft {
				return apierr.Conflict("INVALID_STATE", fmt.Errorf("%w: cannot delete record in status %q", pkgerrors.ErrInvalidState, record.Status))
			}
			if err := fs.valueRepo.DeleteByRecordID(ctx, tx, record.ID); err != nil {
				return fmt.Errorf("delete form values: %w", err)
			}
			if err := fs.recordRepo.DeleteByID(ctx, tx, record.ID); err != nil {
				return fmt.Errorf("delete form record: %w", err)
			}
			return nil
		})
	})
}

func (fs *formService) List(ctx context.Context, userID uuid.UUID) ([]*types.FormRecord, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id required", pkgerrors.ErrInvalidArgument)
	}
	records, err := fs.recordRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("list form records: %w", err)
	}
	return records, nil
}

func (fs *formService) Get(ctx context.Context, recordID uuid.UUID) (*types.FormRecord, map[string]any, error) {
	record, err := fs.loadRecord(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	values, err := fs.valueRepo.GetByRecordID(ctx, nil, record.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load form values: %w", err)
	}
	return record, projectValues(fs.schema, values), nil
}

func (fs *formService) loadRecord(ctx context.Context, recordID uuid.UUID) (*types.FormRecord, error) {
	record, err := fs.recordRepo.GetByID(ctx, nil, recordID)
	if err != nil {
		return nil, fmt.Errorf("load form record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: form record %s", pkgerrors.ErrNotFound, recordID)
	}
	return record, nil
}

// loadStore materializes the engine's value store from persisted rows.
func (fs *formService) loadStore(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) (*engine.ValueStore, error) {
	values, err := fs.valueRepo.GetByRecordID(ctx, tx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load form values: %w", err)
	}
	store := engine.NewValueStore(fs.schema)
	for id, raw := range projectValues(fs.schema, values) {
		overridden := false
		for _, v := range values {
			if v.FieldID == id && v.RowID == "" {
				overridden = v.ManualOverride
				break
			}
		}
		store.SetWithOverride(id, raw, overridden)
	}
	return store, nil
}

func (fs *formService) validStep(step int) bool {
	for _, s := range fs.schema.Steps() {
		if s == step {
			return true
		}
	}
	return false
}

// toFormValues flattens one step payload into persistable rows. Row-group
// payloads are exploded into one row per stable row id; everything else is
// a single row with an empty row id.
func (fs *formService) toFormValues(recordID uuid.UUID, values map[string]any) ([]*types.FormValue, error) {
	var out []*types.FormValue
	for fieldID, raw := range values {
		f, ok := fs.schema.Fields[fieldID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", pkgerrors.ErrInvalidArgument, fieldID)
		}
		if f.Kind == schema.KindRowGroup {
			list, _ := raw.([]any)
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				rowID, _ := m["row_id"].(string)
				if rowID == "" {
					return nil, fmt.Errorf("%w: row in %q missing row_id", pkgerrors.ErrInvalidArgument, fieldID)
				}
				encoded, err := json.Marshal(m)
				if err != nil {
					return nil, fmt.Errorf("encode row value: %w", err)
				}
				out = append(out, &types.FormValue{
					ID:       uuid.New(),
					RecordID: recordID,
					FieldID:  fieldID,
					RowID:    rowID,
					Raw:      encoded,
				})
			}
			continue
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode field value: %w", err)
		}
		out = append(out, &types.FormValue{
			ID:             uuid.New(),
			RecordID:       recordID,
			FieldID:        fieldID,
			RowID:          "",
			Raw:            encoded,
			ManualOverride: f.IsDerived() && !engine.IsBlank(raw),
		})
	}
	return out, nil
}

// projectValues rebuilds the flat field-value map the engine consumes,
// reassembling row groups from their persisted rows.
func projectValues(s *schema.Schema, values []*types.FormValue) map[string]any {
	out := map[string]any{}
	groups := map[string][]any{}
	for _, v := range values {
		var decoded any
		if len(v.Raw) > 0 {
			if err := json.Unmarshal(v.Raw, &decoded); err != nil {
				continue
			}
		}
		f, ok := s.Fields[v.FieldID]
		if !ok {
			continue
		}
		if f.Kind == schema.KindRowGroup && v.RowID != "" {
			m, ok := decoded.(map[string]any)
			if !ok {
				continue
			}
			m["row_id"] = v.RowID
			groups[v.FieldID] = append(groups[v.FieldID], m)
			continue
		}
		out[v.FieldID] = decoded
	}
	for id, rows := range groups {
		out[id] = rows
	}
	return out
}

func rowIDsOf(raw any) []string {
	list, _ := raw.([]any)
	var ids []string
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			if id, _ := m["row_id"].(string); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// withRetry wraps persistence work in bounded retries with exponential
// backoff, surfacing the last error verbatim when all attempts fail.
func (fs *formService) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := persistBackoff
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == persistAttempts {
			return lastErr
		}
		fs.log.Warn("Persistence attempt failed, retrying",
			"op", op, "attempt", attempt, "backoff", backoff.String(), "error", lastErr)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// retryable: domain failures (not found, bad state, bad input) never
// retry; anything else is assumed to be collaborator I/O.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, pkgerrors.ErrInvalidState),
		errors.Is(err, pkgerrors.ErrInvalidArgument):
		return false
	default:
		return true
	}
}
