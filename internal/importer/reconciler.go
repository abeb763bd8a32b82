// Package importer reconciles tabular collar files with the lifecycle manager
// and renders the matching export, template and detail files.
package importer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"livestock-collar-backend/internal/apperr"
	"livestock-collar-backend/internal/lifecycle"
	"livestock-collar-backend/internal/model"
	"livestock-collar-backend/internal/parse"
)

// Outcome classifies what happened to one row.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeError     Outcome = "error"
)

// Status is the overall result of an import.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// RowDetail reports one processed row.
type RowDetail struct {
	Line             int     `json:"line"`
	Code             string  `json:"code"`
	AnimalIdentifier string  `json:"animalIdentifier"`
	Outcome          Outcome `json:"outcome"`
	Message          string  `json:"detailMessage"`
}

// Report summarizes an import run.
type Report struct {
	BatchID        string      `json:"batchId"`
	Status         Status      `json:"status"`
	TotalProcessed int         `json:"totalProcessed"`
	Created        int         `json:"created"`
	Updated        int         `json:"updated"`
	ErrorCount     int         `json:"errorCount"`
	Rows           []RowDetail `json:"rows"`
	FinishedAt     time.Time   `json:"finishedAt"`
}

// Lifecycle is the part of the lifecycle manager the reconciler drives.
type Lifecycle interface {
	FindByCodeTx(ctx context.Context, tx *gorm.DB, code string) (*model.Collar, error)
	CreateTx(ctx context.Context, tx *gorm.DB, code string) (*model.Collar, error)
	AssignTx(ctx context.Context, tx *gorm.DB, collar *model.Collar, animal *model.Animal, actorID *int64) (*lifecycle.AssignResult, error)
}

// Reconciler applies import rows one by one. Every row commits on its own, so
// a failing row never undoes the rows before it.
type Reconciler struct {
	db       *gorm.DB
	manager  Lifecycle
	resolver AnimalResolver
	log      *zap.Logger
}

// NewReconciler creates a reconciler. A nil resolver resolves across all animals.
func NewReconciler(db *gorm.DB, manager Lifecycle, resolver AnimalResolver, log *zap.Logger) *Reconciler {
	if resolver == nil {
		resolver = GormAnimalResolver{}
	}
	return &Reconciler{db: db, manager: manager, resolver: resolver, log: log.Named("importer")}
}

// Reconcile processes rows in order and returns the report. Row failures are
// recorded in the report; a ConfigurationError aborts the run and is returned.
func (r *Reconciler) Reconcile(ctx context.Context, rows []Row, actorID *int64) (*Report, error) {
	report := &Report{
		BatchID:        uuid.NewString(),
		TotalProcessed: len(rows),
		Rows:           make([]RowDetail, 0, len(rows)),
	}

	for _, row := range rows {
		detail, err := r.reconcileRow(ctx, row, actorID)
		if err != nil {
			r.log.Error("import aborted", zap.Int("line", row.Line), zap.Error(err))
			return nil, err
		}
		switch detail.Outcome {
		case OutcomeCreated:
			report.Created++
		case OutcomeUpdated:
			report.Updated++
		case OutcomeError:
			report.ErrorCount++
		}
		report.Rows = append(report.Rows, detail)
	}

	report.Status = StatusSuccess
	if report.Created+report.Updated == 0 && report.ErrorCount > 0 {
		report.Status = StatusError
	}
	report.FinishedAt = time.Now()

	r.log.Info("import reconciled",
		zap.String("batch_id", report.BatchID),
		zap.Int("total", report.TotalProcessed),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("errors", report.ErrorCount))
	return report, nil
}

func (r *Reconciler) reconcileRow(ctx context.Context, row Row, actorID *int64) (RowDetail, error) {
	detail := RowDetail{Line: row.Line, Code: row.Code, AnimalIdentifier: row.AnimalIdentifier}

	code, err := parse.NormalizeCode(row.Code)
	if err != nil {
		detail.Outcome = OutcomeError
		detail.Message = err.Error()
		return detail, nil
	}
	detail.Code = code

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var animal *model.Animal
		if identifier := strings.TrimSpace(row.AnimalIdentifier); identifier != "" {
			var err error
			if animal, err = r.resolver.Resolve(ctx, tx, identifier); err != nil {
				return err
			}
		}

		created := false
		collar, err := r.manager.FindByCodeTx(ctx, tx, code)
		if errors.Is(err, apperr.ErrNotFound) {
			collar, err = r.manager.CreateTx(ctx, tx, code)
			created = true
		}
		if err != nil {
			return err
		}

		result, err := r.manager.AssignTx(ctx, tx, collar, animal, actorID)
		if err != nil {
			return err
		}

		switch {
		case created:
			detail.Outcome = OutcomeCreated
			detail.Message = "collar created"
			if result.Changed {
				detail.Message += "; " + result.Summary()
			}
		case result.Changed:
			detail.Outcome = OutcomeUpdated
			detail.Message = result.Summary()
		default:
			detail.Outcome = OutcomeUnchanged
			detail.Message = result.Summary()
		}
		return nil
	})
	if errors.Is(err, apperr.ErrConfiguration) {
		return detail, err
	}
	if err != nil {
		if !isRowError(err) {
			r.log.Error("import row failed", zap.Int("line", row.Line), zap.String("code", code), zap.Error(err))
		}
		detail.Outcome = OutcomeError
		detail.Message = err.Error()
	}
	return detail, nil
}

func isRowError(err error) bool {
	return errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrConflict)
}
