package compliance

import (
	"errors"
	"fmt"
)

// Failure signals of a compliance import.
var (
	ErrEmployerNotFound      = errors.New("compliance: employer not found")
	ErrNoActivePlanYear      = errors.New("compliance: no active plan year")
	ErrPlanYearNotFound      = errors.New("compliance: plan year not found")
	ErrSpreadsheetUnreadable = errors.New("compliance: spreadsheet unreadable")
	ErrNoImportRun           = errors.New("compliance: no import run for plan year")
	ErrInvalidStatus         = errors.New("compliance: invalid status")
)

// Write stages, in the order a real import applies them.
const (
	StageEmployees  = "employees"
	StageCompliance = "compliance"
	StageImportRun  = "import_run"
	StageMembers    = "members"
)

// StorageWriteError reports the batch that failed during a real import.
// Batches before it stay committed.
type StorageWriteError struct {
	Stage string
	Batch int
	Err   error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("compliance: %s batch %d: %v", e.Stage, e.Batch, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}
