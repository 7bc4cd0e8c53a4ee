package bulksync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status captures the lifecycle state of a bulk sync job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mode selects the reconciliation policy applied to a workbook.
type Mode string

const (
	ModeUpsert  Mode = "upsert"
	ModeCreate  Mode = "create"
	ModeUpdate  Mode = "update"
	ModeReplace Mode = "replace"
	ModeDelete  Mode = "delete"
)

// ParseMode normalises v; an empty value selects upsert.
func ParseMode(v string) (Mode, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ModeUpsert, nil
	}
	switch Mode(v) {
	case ModeUpsert, ModeCreate, ModeUpdate, ModeReplace, ModeDelete:
		return Mode(v), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, v)
	}
}

// Reason codes attached to row errors.
const (
	ReasonMissingCode  = "MISSING_CODE"
	ReasonInvalidPrice = "INVALID_PRICE"
	ReasonInvalidStock = "INVALID_STOCK"
	ReasonMappingError = "MAPPING_ERROR"
)

// MaxCapturedErrors bounds the error list stored on a job.
const MaxCapturedErrors = 200

// RowError describes one rejected row.
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s row %d: %s: %s", e.Sheet, e.Row, e.Code, e.Message)
}

// Candidate is one mapped worksheet row awaiting reconciliation.
type Candidate struct {
	Sheet          string
	Row            int
	Code           string
	OriginalCode   string
	Description    string
	Application    string
	Stock          int64
	RetailPrice    float64
	WholesalePrice *float64
	Brand          string
	Family         string
	Category       string
	IsOffer        bool
	IsNew          bool
	Deactivate     bool
}

// Result accumulates the totals of one engine run.
type Result struct {
	TotalRows   int        `json:"totalRows"`
	Inserted    int        `json:"inserted"`
	Skipped     int        `json:"skipped"`
	ErrorsCount int        `json:"errorsCount"`
	Errors      []RowError `json:"errors"`
}

// addError counts the error and keeps it while below the capture limit.
func (r *Result) addError(e RowError) {
	r.ErrorsCount++
	if len(r.Errors) < MaxCapturedErrors {
		r.Errors = append(r.Errors, e)
	}
}

// Job is the persisted record of one bulk synchronisation.
type Job struct {
	ID           int64      `json:"id"`
	Status       Status     `json:"status"`
	Mode         Mode       `json:"mode"`
	Filename     string     `json:"filename"`
	FilePath     string     `json:"filePath"`
	UserID       *int64     `json:"userId"`
	TotalRows    int        `json:"totalRows"`
	Inserted     int        `json:"inserted"`
	Skipped      int        `json:"skipped"`
	ErrorsCount  int        `json:"errorsCount"`
	Errors       []RowError `json:"errors"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    *time.Time `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CreateRequest carries what the launcher knows about an upload.
type CreateRequest struct {
	Mode     Mode
	Filename string
	FilePath string
	UserID   *int64
}

// Validate ensures the request can be persisted.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.FilePath) == "" {
		return ErrFileRequired
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return err
	}
	return nil
}

var (
	ErrJobNotFound   = errors.New("bulksync: job not found")
	ErrInvalidStatus = errors.New("bulksync: invalid status transition")
	ErrFileRequired  = errors.New("bulksync: file required")
	ErrInvalidMode   = errors.New("bulksync: invalid mode")
)

// MissingColumnsError aborts a worksheet whose header lacks required columns.
type MissingColumnsError struct {
	Sheet   string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("bulksync: worksheet %q is missing required columns: %s", e.Sheet, strings.Join(e.Columns, ", "))
}
