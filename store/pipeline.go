package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"cryobank/audit"
	"cryobank/contract"
	"cryobank/inventory"
)

// Change describes one mutation heading into the pipeline. Apply receives a
// deep copy of the current document and returns the full replacement; there
// is no partial/patch write.
type Change struct {
	Action   string
	ToolName string
	Actor    contract.ActorContext
	Input    map[string]any
	Details  map[string]any
	Apply    func(doc *inventory.Document) error
}

// Outcome reports a committed mutation.
type Outcome struct {
	Document   *inventory.Document
	BackupPath string
	Warnings   []string
	// AuditWarning is set when the write committed but the audit append
	// failed. The write is the durable fact; this must still be surfaced.
	AuditWarning string
}

// Mutate runs the validate -> backup -> write -> audit pipeline under the
// store's write lock. Every step before the write is a hard gate: failure
// aborts with the primary file untouched.
func (s *Store) Mutate(ctx context.Context, change Change) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	candidate := before.Clone()
	if err := change.Apply(candidate); err != nil {
		s.appendFailedAudit(ctx, change, before, err.Error())
		return nil, err
	}

	report := inventory.ValidateDocument(candidate)
	if !report.OK() {
		msg := report.FormatErrors("write blocked: integrity validation failed")
		s.appendFailedAudit(ctx, change, before, msg)
		return nil, fmt.Errorf("%w: %s", contract.ErrIntegrity, msg)
	}

	backupPath, err := s.createBackup()
	if err != nil {
		// No backup, no write.
		s.appendFailedAudit(ctx, change, before, err.Error())
		return nil, err
	}

	if err := s.writeAtomic(candidate); err != nil {
		s.appendFailedAudit(ctx, change, before, err.Error())
		return nil, err
	}

	warnings := append(s.capacityWarnings(candidate), report.Warnings...)
	if sizeWarn := s.sizeWarning(); sizeWarn != "" {
		warnings = append(warnings, sizeWarn)
	}

	outcome := &Outcome{Document: candidate, BackupPath: backupPath, Warnings: warnings}
	ev := s.buildEvent(change, before, candidate, backupPath, warnings, audit.StatusSuccess, "")
	if err := s.sink.Append(ctx, ev); err != nil {
		outcome.AuditWarning = fmt.Sprintf("%s: %v", contract.CodeAuditFailed, err)
		s.log.Warn().Err(err).Str("action", change.Action).Msg("audit append failed after committed write")
	}
	return outcome, nil
}

// Rollback restores the primary document from a backup. Before restoring it
// snapshots the current state, so a rollback can itself be rolled back.
func (s *Store) Rollback(ctx context.Context, target string, actor contract.ActorContext) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	change := Change{Action: "rollback", ToolName: "rollback", Actor: actor,
		Input: map[string]any{"backup_path": target}}

	before, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	backupPath := target
	if backupPath == "" || backupPath == "latest" {
		backups := s.listBackups()
		if len(backups) == 0 {
			err := fmt.Errorf("%w: no backups available to roll back to", contract.ErrNotFound)
			s.appendFailedAudit(ctx, change, before, err.Error())
			return nil, err
		}
		backupPath = backups[0]
	}
	raw, err := os.ReadFile(backupPath)
	if err != nil {
		err = fmt.Errorf("%w: backup not readable: %v", contract.ErrNotFound, err)
		s.appendFailedAudit(ctx, change, before, err.Error())
		return nil, err
	}

	var restored inventory.Document
	if err := yaml.Unmarshal(raw, &restored); err != nil {
		err = fmt.Errorf("%w: backup %s is not a valid document: %v",
			contract.ErrValidation, filepath.Base(backupPath), err)
		s.appendFailedAudit(ctx, change, before, err.Error())
		return nil, err
	}
	report := inventory.ValidateDocument(&restored)
	if !report.OK() {
		msg := report.FormatErrors(fmt.Sprintf(
			"rollback blocked: backup %s fails integrity checks", filepath.Base(backupPath)))
		s.appendFailedAudit(ctx, change, before, msg)
		return nil, fmt.Errorf("%w: %s", contract.ErrValidation, msg)
	}

	snapshot, err := s.createBackup()
	if err != nil {
		s.appendFailedAudit(ctx, change, before, err.Error())
		return nil, err
	}
	if err := s.writeAtomic(&restored); err != nil {
		s.appendFailedAudit(ctx, change, before, err.Error())
		return nil, err
	}

	warnings := s.capacityWarnings(&restored)
	change.Details = map[string]any{
		"restored_from":            backupPath,
		"snapshot_before_rollback": snapshot,
	}
	outcome := &Outcome{Document: &restored, BackupPath: snapshot, Warnings: warnings}
	ev := s.buildEvent(change, before, &restored, snapshot, warnings, audit.StatusSuccess, "")
	if err := s.sink.Append(ctx, ev); err != nil {
		outcome.AuditWarning = fmt.Sprintf("%s: %v", contract.CodeAuditFailed, err)
		s.log.Warn().Err(err).Msg("audit append failed after rollback")
	}
	return outcome, nil
}

func (s *Store) capacityWarnings(doc *inventory.Document) []string {
	stats := inventory.CollectStats(doc)
	var warnings []string
	if stats.TotalEmpty <= s.cfg.TotalEmptyWarn {
		warnings = append(warnings, fmt.Sprintf(
			"capacity warning: only %d empty slots left store-wide (threshold %d)",
			stats.TotalEmpty, s.cfg.TotalEmptyWarn))
	}
	boxes := make([]int, 0, len(stats.Boxes))
	for box := range stats.Boxes {
		boxes = append(boxes, box)
	}
	sort.Ints(boxes)
	for _, box := range boxes {
		if stats.Boxes[box].Empty <= s.cfg.BoxEmptyWarn {
			warnings = append(warnings, fmt.Sprintf(
				"capacity warning: box %d has only %d empty slots (threshold %d)",
				box, stats.Boxes[box].Empty, s.cfg.BoxEmptyWarn))
		}
	}
	return warnings
}

func (s *Store) sizeWarning() string {
	if s.cfg.SizeWarnMB <= 0 {
		return ""
	}
	size := s.documentSizeMB()
	if size < s.cfg.SizeWarnMB {
		return ""
	}
	return fmt.Sprintf("size warning: %s is %.2f MB (threshold %.1f MB), consider archiving inactive records",
		filepath.Base(s.cfg.Path), size, s.cfg.SizeWarnMB)
}

func (s *Store) buildEvent(change Change, before, after *inventory.Document,
	backupPath string, warnings []string, status, errDetail string) audit.Event {

	var beforeStats, afterStats *inventory.Stats
	if before != nil {
		st := inventory.CollectStats(before)
		beforeStats = &st
	}
	if after != nil {
		st := inventory.CollectStats(after)
		afterStats = &st
	}
	return audit.Event{
		Timestamp:  time.Now().Format("2006-01-02T15:04:05"),
		Action:     change.Action,
		ActorType:  change.Actor.ActorType,
		ActorID:    change.Actor.ActorID,
		Channel:    change.Actor.Channel,
		SessionID:  change.Actor.SessionID,
		TraceID:    change.Actor.TraceID,
		ToolName:   change.ToolName,
		ToolInput:  change.Input,
		Status:     status,
		Error:      errDetail,
		BackupPath: backupPath,
		Warnings:   warnings,
		Before:     beforeStats,
		After:      afterStats,
		Delta:      audit.DiffDelta(beforeStats, afterStats),
		ChangedIDs: diffChangedIDs(before, after),
		Details:    change.Details,
	}
}

func (s *Store) appendFailedAudit(ctx context.Context, change Change, before *inventory.Document, detail string) {
	ev := s.buildEvent(change, before, nil, "", nil, audit.StatusFailed, detail)
	if err := s.sink.Append(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("action", change.Action).Msg("failed-mutation audit append failed")
	}
}

// diffChangedIDs compares record sets by serialized content so metadata-only
// edits show up as updates.
func diffChangedIDs(before, after *inventory.Document) audit.ChangedIDs {
	if after == nil {
		// Failed attempt: nothing changed.
		return audit.ChangedIDs{Added: []int{}, Removed: []int{}, Updated: []int{}}
	}
	serialize := func(doc *inventory.Document) map[int]string {
		out := make(map[int]string)
		if doc == nil {
			return out
		}
		for _, rec := range doc.Records {
			blob, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			out[rec.ID] = string(blob)
		}
		return out
	}
	beforeMap := serialize(before)
	afterMap := serialize(after)

	changed := audit.ChangedIDs{Added: []int{}, Removed: []int{}, Updated: []int{}}
	for id := range afterMap {
		if _, ok := beforeMap[id]; !ok {
			changed.Added = append(changed.Added, id)
		} else if beforeMap[id] != afterMap[id] {
			changed.Updated = append(changed.Updated, id)
		}
	}
	for id := range beforeMap {
		if _, ok := afterMap[id]; !ok {
			changed.Removed = append(changed.Removed, id)
		}
	}
	sort.Ints(changed.Added)
	sort.Ints(changed.Removed)
	sort.Ints(changed.Updated)
	return changed
}
