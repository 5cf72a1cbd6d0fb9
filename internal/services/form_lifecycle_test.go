package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
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

// fakeRecordRepo keeps records in memory and tracks every status write so
// tests can assert the reversion path fired exactly when it should.
type fakeRecordRepo struct {
	records      map[uuid.UUID]*types.FormRecord
	statusWrites []string
}

var _ repos.FormRecordRepo = (*fakeRecordRepo)(nil)

func (r *fakeRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.FormRecord) ([]*types.FormRecord, error) {
	for _, rec := range records {
		cp := *rec
		r.records[rec.ID] = &cp
	}
	return records, nil
}

func (r *fakeRecordRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FormRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRecordRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FormRecord, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *fakeRecordRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.FormRecord, error) {
	var out []*types.FormRecord
	for _, rec := range r.records {
		for _, uid := range userIDs {
			if rec.UserID == uid {
				cp := *rec
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (r *fakeRecordRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("record %s not stored", id)
	}
	for k, v := range updates {
		switch k {
		case "status":
			status := v.(string)
			r.statusWrites = append(r.statusWrites, status)
			rec.Status = status
		case "submitted_at":
			if v == nil {
				rec.SubmittedAt = nil
			} else {
				at := v.(time.Time)
				rec.SubmittedAt = &at
			}
		case "step_status":
			rec.StepStatus = v.(datatypes.JSONMap)
		case "last_completed_step":
			rec.LastCompletedStep = v.(int)
		case "updated_at":
			rec.UpdatedAt = v.(time.Time)
		}
	}
	return nil
}

func (r *fakeRecordRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	delete(r.records, id)
	return nil
}

// fakeValueRepo mirrors the real repo's upsert key so a re-sent payload
// converges to the same rows instead of appending.
type fakeValueRepo struct {
	values map[string]*types.FormValue
}

var _ repos.FormValueRepo = (*fakeValueRepo)(nil)

func valueKey(recordID uuid.UUID, fieldID, rowID string) string {
	return recordID.String() + "|" + fieldID + "|" + rowID
}

func (r *fakeValueRepo) Upsert(ctx context.Context, tx *gorm.DB, values []*types.FormValue) error {
	for _, v := range values {
		cp := *v
		r.values[valueKey(v.RecordID, v.FieldID, v.RowID)] = &cp
	}
	return nil
}

func (r *fakeValueRepo) GetByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) ([]*types.FormValue, error) {
	var out []*types.FormValue
	for _, v := range r.values {
		if v.RecordID == recordID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeValueRepo) DeleteByRecordID(ctx context.Context, tx *gorm.DB, recordID uuid.UUID) error {
	for k, v := range r.values {
		if v.RecordID == recordID {
			delete(r.values, k)
		}
	}
	return nil
}

func (r *fakeValueRepo) DeleteRows(ctx context.Context, tx *gorm.DB, recordID uuid.UUID, fieldID string, keepRowIDs []string) error {
	keep := map[string]bool{}
	for _, id := range keepRowIDs {
		keep[id] = true
	}
	for k, v := range r.values {
		if v.RecordID == recordID && v.FieldID == fieldID && v.RowID != "" && !keep[v.RowID] {
			delete(r.values, k)
		}
	}
	return nil
}

func lifecycleSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build("lifecycle", "", []*schema.FieldDefinition{
		{
			ID: "customer_name", Kind: schema.KindText, Step: 1,
			Constraints: schema.Constraints{Required: true},
		},
		{ID: "cash", Kind: schema.KindCurrency, Step: 2},
		{ID: "brokerage", Kind: schema.KindCurrency, Step: 2},
		{
			ID: "liquid_subtotal", Kind: schema.KindCurrency, Step: 2,
			Derive: &schema.Derivation{
				DependsOn: []string{"cash", "brokerage"},
				Expr:      "cash + brokerage",
			},
		},
		{ID: "notes", Kind: schema.KindText, Step: 3},
	}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return s
}

func newLifecycleService(t *testing.T) (*formService, *fakeRecordRepo, *fakeValueRepo) {
	t.Helper()
	s := lifecycleSchema(t)
	vis := engine.NewVisibilityResolver(s)
	derive := engine.NewDerivationEngine(s, vis)
	rec := &fakeRecordRepo{records: map[uuid.UUID]*types.FormRecord{}}
	val := &fakeValueRepo{values: map[string]*types.FormValue{}}
	fs := &formService{
		log:        &logger.Logger{SugaredLogger: zap.NewNop().Sugar()},
		schema:     s,
		visibility: vis,
		derivation: derive,
		validator:  engine.NewValidator(s, vis, derive),
		recordRepo: rec,
		valueRepo:  val,
		notifier:   noopNotifier{},
	}
	return fs, rec, val
}

func createDraft(t *testing.T, fs *formService, userID uuid.UUID, values map[string]any) *types.FormRecord {
	t.Helper()
	result, err := fs.CreateRecord(context.Background(), userID, 1, values)
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	return result.Record
}

func TestCreateRecordRequiresFirstStep(t *testing.T) {
	fs, _, _ := newLifecycleService(t)
	_, err := fs.CreateRecord(context.Background(), uuid.New(), 2, map[string]any{"cash": "100"})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	_, err = fs.CreateRecord(context.Background(), uuid.Nil, 1, nil)
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument for missing user", err)
	}
}

func TestSaveStepOnDraftIsStatusNoOp(t *testing.T) {
	fs, rec, val := newLifecycleService(t)
	record := createDraft(t, fs, uuid.New(), map[string]any{"customer_name": "Jane Doe"})

	payload := map[string]any{"customer_name": "Jane Doe"}
	if _, err := fs.SaveStep(context.Background(), record.ID, 1, payload); err != nil {
		t.Fatalf("first SaveStep failed: %v", err)
	}
	rowsAfterFirst := len(val.values)
	if _, err := fs.SaveStep(context.Background(), record.ID, 1, payload); err != nil {
		t.Fatalf("second SaveStep failed: %v", err)
	}

	if len(rec.statusWrites) != 0 {
		t.Fatalf("draft saves flipped status: %v", rec.statusWrites)
	}
	if len(val.values) != rowsAfterFirst {
		t.Fatalf("re-sent payload changed row count: %d -> %d", rowsAfterFirst, len(val.values))
	}
	stored := rec.records[record.ID]
	if stored.Status != types.StatusDraft {
		t.Fatalf("status = %q, want draft", stored.Status)
	}
}

func TestSaveStepRevertsApprovedToDraft(t *testing.T) {
	fs, rec, _ := newLifecycleService(t)
	record := createDraft(t, fs, uuid.New(), map[string]any{"customer_name": "Jane Doe"})

	now := time.Now().UTC()
	stored := rec.records[record.ID]
	stored.Status = types.StatusApproved
	stored.SubmittedAt = &now

	result, err := fs.SaveStep(context.Background(), record.ID, 3, map[string]any{"notes": "updated holdings"})
	if err != nil {
		t.Fatalf("SaveStep failed: %v", err)
	}

	stored = rec.records[record.ID]
	if stored.Status != types.StatusDraft {
		t.Fatalf("status = %q, want draft after edit", stored.Status)
	}
	if stored.SubmittedAt != nil {
		t.Fatal("submitted_at not cleared by reversion")
	}
	if stored.LastCompletedStep < 3 {
		t.Fatalf("last_completed_step = %d, want >= 3", stored.LastCompletedStep)
	}
	if _, ok := stored.StepStatus["3"]; !ok {
		t.Fatalf("step 3 completion not recorded: %v", stored.StepStatus)
	}
	if len(rec.statusWrites) != 1 || rec.statusWrites[0] != types.StatusDraft {
		t.Fatalf("status writes = %v, want exactly one draft flip", rec.statusWrites)
	}
	if result.Record.Status != types.StatusDraft {
		t.Fatalf("returned record status = %q, want draft", result.Record.Status)
	}
}

func TestSubmitRefusedOnValidationErrors(t *testing.T) {
	fs, rec, _ := newLifecycleService(t)
	// Step 1 saved empty: customer_name is required, so the draft is
	// incomplete but saving it is still legal.
	record := createDraft(t, fs, uuid.New(), map[string]any{})

	result, err := fs.Submit(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Submit errored instead of refusing: %v", err)
	}
	if result.Record != nil {
		t.Fatal("refused submission still returned a record")
	}
	if !engine.HasErrors(result.Issues) {
		t.Fatalf("expected error issues in refusal, got %+v", result.Issues)
	}

	stored := rec.records[record.ID]
	if stored.Status != types.StatusDraft || stored.SubmittedAt != nil {
		t.Fatalf("refused submit mutated record: status=%q submitted_at=%v", stored.Status, stored.SubmittedAt)
	}
}

func TestSubmitAllowsWarnings(t *testing.T) {
	fs, rec, _ := newLifecycleService(t)
	record := createDraft(t, fs, uuid.New(), map[string]any{"customer_name": "Jane Doe"})
	// Overriding the subtotal far outside tolerance yields a warning,
	// which must not block submission.
	if _, err := fs.SaveStep(context.Background(), record.ID, 2, map[string]any{
		"cash":            "1000.00",
		"brokerage":       "500.00",
		"liquid_subtotal": "1600.00",
	}); err != nil {
		t.Fatalf("SaveStep failed: %v", err)
	}

	result, err := fs.Submit(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Record == nil {
		t.Fatalf("warning blocked submission, issues: %+v", result.Issues)
	}
	warned := false
	for _, iss := range result.Issues {
		if iss.Code == engine.CodeTotalMismatch {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected the mismatch warning to be reported, got %+v", result.Issues)
	}

	stored := rec.records[record.ID]
	if stored.Status != types.StatusSubmitted || stored.SubmittedAt == nil {
		t.Fatalf("record not submitted: status=%q submitted_at=%v", stored.Status, stored.SubmittedAt)
	}
}

func TestSubmitTwiceConflicts(t *testing.T) {
	fs, _, _ := newLifecycleService(t)
	record := createDraft(t, fs, uuid.New(), map[string]any{"customer_name": "Jane Doe"})
	if _, err := fs.Submit(context.Background(), record.ID); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}

	_, err := fs.Submit(context.Background(), record.ID)
	if !errors.Is(err, pkgerrors.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != 409 {
		t.Fatalf("expected a 409 conflict mapping, got %v", err)
	}
}

func TestReviewTransitions(t *testing.T) {
	fs, rec, _ := newLifecycleService(t)
	record := createDraft(t, fs, uuid.New(), map[string]any{"customer_name": "Jane Doe"})

	// Draft records cannot be reviewed.
	if _, err := fs.Review(context.Background(), record.ID, types.StatusApproved); !errors.Is(err, pkgerrors.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState for draft review", err)
	}

	if _, err := fs.Submit(context.Background(), record.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := fs.Review(context.Background(), record.ID, "archived"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument for unknown outcome", err)
	}
	reviewed, err := fs.Review(context.Background(), record.ID, types.StatusApproved)
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if reviewed.Status != types.StatusApproved || rec.records[record.ID].Status != types.StatusApproved {
		t.Fatalf("record not approved: %q", rec.records[record.ID].Status)
	}
}

func TestDeleteOnlyDrafts(t *testing.T) {
	fs, rec, val := newLifecycleService(t)
	record := createDraft(t, fs, uuid.New(), map[string]any{"customer_name": "Jane Doe"})
	if _, err := fs.Submit(context.Background(), record.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := fs.Delete(context.Background(), record.ID); !errors.Is(err, pkgerrors.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState for submitted delete", err)
	}

	// Editing reverts to draft, which re-opens the delete path.
	if _, err := fs.SaveStep(context.Background(), record.ID, 1, map[string]any{"customer_name": "Jane Q. Doe"}); err != nil {
		t.Fatalf("SaveStep failed: %v", err)
	}
	if err := fs.Delete(context.Background(), record.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := rec.records[record.ID]; ok {
		t.Fatal("record still stored after delete")
	}
	if len(val.values) != 0 {
		t.Fatalf("values still stored after delete: %d", len(val.values))
	}
}

func TestListReturnsOwnRecordsOnly(t *testing.T) {
	fs, _, _ := newLifecycleService(t)
	owner := uuid.New()
	createDraft(t, fs, owner, map[string]any{"customer_name": "Jane Doe"})

	records, err := fs.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	other, err := fs.List(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("stranger sees %d records, want 0", len(other))
	}
}
