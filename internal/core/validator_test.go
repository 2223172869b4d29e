package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"tickler/internal/types"
)

type triggerRequest struct {
	Task          string `json:"task" validate:"required,oneof=process_notifications count_pending cleanup_job_history"`
	ReferenceTime string `json:"reference_time,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func newValidatorForTest() *Validator {
	return NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateStruct_Valid(t *testing.T) {
	v := newValidatorForTest()

	req := triggerRequest{Task: "process_notifications"}
	if err := v.ValidateStruct(req); err != nil {
		t.Fatalf("ValidateStruct: %v", err)
	}
}

func TestValidateStruct_MissingRequiredField(t *testing.T) {
	v := newValidatorForTest()

	err := v.ValidateStruct(triggerRequest{})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationFailed {
		t.Errorf("expected code %q, got %q", types.ErrCodeValidationFailed, appErr.Code)
	}
	if appErr.Details["task"] != "required" {
		t.Errorf("expected json tag name in details, got %v", appErr.Details)
	}
}

func TestValidateStruct_RejectsUnknownTask(t *testing.T) {
	v := newValidatorForTest()

	err := v.ValidateStruct(triggerRequest{Task: "drop_tables"})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Details["task"] != "oneof" {
		t.Errorf("expected oneof failure for task, got %v", appErr.Details)
	}
}

func TestValidateStruct_ValidatesTimestampFormat(t *testing.T) {
	v := newValidatorForTest()

	err := v.ValidateStruct(triggerRequest{
		Task:          "process_notifications",
		ReferenceTime: "yesterday",
	})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Details["reference_time"] != "datetime" {
		t.Errorf("expected datetime failure, got %v", appErr.Details)
	}

	good := triggerRequest{
		Task:          "process_notifications",
		ReferenceTime: "2026-03-14T09:00:00Z",
	}
	if err := v.ValidateStruct(good); err != nil {
		t.Errorf("expected valid RFC3339 timestamp to pass, got %v", err)
	}
}

func TestValidateStruct_NonStructInput(t *testing.T) {
	v := newValidatorForTest()

	err := v.ValidateStruct("not a struct")

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeInternalUnexpected {
		t.Errorf("expected internal error code, got %q", appErr.Code)
	}
}
