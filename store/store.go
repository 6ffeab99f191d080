// Package store owns the persisted inventory document: snapshot loads,
// atomic writes, timestamped backups and the validate-backup-write-audit
// pipeline every mutation goes through.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"cryobank/audit"
	"cryobank/contract"
	"cryobank/inventory"
)

// Config carries the runtime paths and thresholds, constructed once at
// process start and injected (no package-level lookup).
type Config struct {
	Path           string  `envconfig:"DOCUMENT_PATH" split_words:"true" default:"cryobank_inventory.yaml"`
	BackupDir      string  `envconfig:"BACKUP_DIR" split_words:"true" default:"cryobank_backups"`
	BackupKeep     int     `envconfig:"BACKUP_KEEP" split_words:"true" default:"200"`
	AuditPath      string  `envconfig:"AUDIT_PATH" split_words:"true" default:"cryobank_audit.jsonl"`
	TotalEmptyWarn int     `envconfig:"TOTAL_EMPTY_WARN" split_words:"true" default:"20"`
	BoxEmptyWarn   int     `envconfig:"BOX_EMPTY_WARN" split_words:"true" default:"5"`
	SizeWarnMB     float64 `envconfig:"SIZE_WARN_MB" split_words:"true" default:"5"`
}

// Store serializes all document mutations. Reads take a snapshot and never
// block each other; writers hold the lock across the whole pipeline so no
// two writes interleave their file I/O.
type Store struct {
	mu    sync.RWMutex
	cfg   Config
	sink  audit.Sink
	audit *audit.Log
	log   zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Store {
	auditLog := audit.NewLog(cfg.AuditPath)
	return &Store{
		cfg:   cfg,
		sink:  auditLog,
		audit: auditLog,
		log:   logger.With().Str("component", "store").Logger(),
	}
}

// WithArchive attaches a secondary audit sink alongside the JSONL log.
func (s *Store) WithArchive(archive audit.Sink) *Store {
	s.sink = audit.MultiSink{s.audit, archive}
	return s
}

func (s *Store) Path() string { return s.cfg.Path }

func (s *Store) AuditLog() *audit.Log { return s.audit }

// Load returns a snapshot copy of the document. Concurrent with writes it
// observes either the full pre-write or full post-write state, never a
// mixture: the primary file only ever changes by atomic rename.
func (s *Store) Load() (*inventory.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*inventory.Document, error) {
	raw, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read document %s: %v", contract.ErrPersistence, s.cfg.Path, err)
	}
	var doc inventory.Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse document %s: %v", contract.ErrPersistence, s.cfg.Path, err)
	}
	return &doc, nil
}

// Initialize writes a fresh empty document when none exists yet.
func (s *Store) Initialize(meta inventory.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.cfg.Path); err == nil {
		return nil
	}
	if meta.InstanceID == "" {
		meta.InstanceID = uuid.NewString()
	}
	doc := &inventory.Document{Meta: meta, Records: []inventory.Record{}}
	return s.writeAtomic(doc)
}

// writeAtomic serializes to a temp file in the target directory and renames
// it over the primary, so a reader never observes a half-written document.
func (s *Store) writeAtomic(doc *inventory.Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: serialize document: %v", contract.ErrPersistence, err)
	}
	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create document dir: %v", contract.ErrPersistence, err)
	}
	tmp := s.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write temp document: %v", contract.ErrPersistence, err)
	}
	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replace document: %v", contract.ErrPersistence, err)
	}
	return nil
}

func (s *Store) documentSizeMB() float64 {
	info, err := os.Stat(s.cfg.Path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / (1024 * 1024)
}
