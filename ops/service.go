// Package ops is the unified operation layer: the only surface the GUI,
// CLI, and reasoning agent call. Every operation, read or write, returns
// the contract.Result envelope and never lets an error escape uncaught.
package ops

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"cryobank/contract"
	"cryobank/inventory"
	"cryobank/store"
)

type Service struct {
	store *store.Store
	log   zerolog.Logger
}

func New(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{store: st, log: logger.With().Str("component", "ops").Logger()}
}

// Store exposes the underlying document store for wiring code.
func (s *Service) Store() *store.Store { return s.store }

func (s *Service) load() (*inventory.Document, contract.Result, bool) {
	doc, err := s.store.Load()
	if err != nil {
		return nil, contract.Failure(contract.CodeLoadFailed, err.Error()), false
	}
	return doc, contract.Result{}, true
}

// failure maps a pipeline error onto the envelope's stable code set.
func failure(err error) contract.Result {
	switch {
	case errors.Is(err, contract.ErrIntegrity):
		return contract.Failure(contract.CodeIntegrityFailed, err.Error())
	case errors.Is(err, contract.ErrValidation):
		return contract.Failure(contract.CodeValidationFailed, err.Error())
	case errors.Is(err, contract.ErrConflict):
		return contract.Failure(contract.CodePositionConflict, err.Error())
	case errors.Is(err, contract.ErrNotFound):
		return contract.Failure(contract.CodeNotFound, err.Error())
	case errors.Is(err, contract.ErrBackup):
		return contract.Failure(contract.CodeBackupFailed, err.Error())
	default:
		return contract.Failure(contract.CodeWriteFailed, err.Error())
	}
}

func outcomeResult(outcome *store.Outcome, payload map[string]any) contract.Result {
	res := contract.Success(payload).WithWarnings(outcome.Warnings...)
	if outcome.AuditWarning != "" {
		res = res.WithWarnings(outcome.AuditWarning)
	}
	if outcome.BackupPath != "" {
		res.Result["backup_path"] = outcome.BackupPath
	}
	return res
}

// recordSummary is the shape query operations return per record.
func recordSummary(rec inventory.Record) map[string]any {
	summary := map[string]any{
		"id":               rec.ID,
		"cell_line":        rec.CellLine,
		"box":              rec.Box,
		"positions":        rec.Positions,
		"active_positions": inventory.ActivePositions(rec),
		"frozen_at":        rec.FrozenAt,
		"event_count":      len(rec.Events),
	}
	if rec.ShortName != "" {
		summary["short_name"] = rec.ShortName
	}
	if rec.Note != "" {
		summary["note"] = rec.Note
	}
	if len(rec.Fields) > 0 {
		summary["fields"] = rec.Fields
	}
	return summary
}

func entryLabel(i int) string { return fmt.Sprintf("entry %d", i+1) }
