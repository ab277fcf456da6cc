// Package history implements the history store (C12): a SQLite-backed
// log of transcriptions, optional post-processed text, and an audio
// file reference, with a configurable retention policy.
package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/handy-ai/handy-engine/pkg/config"
	"github.com/handy-ai/handy-engine/pkg/herr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Entry is the GORM model for one history row, per spec.md §3.
type Entry struct {
	ID                string `gorm:"primaryKey"`
	FileName          string
	Timestamp         time.Time
	Title             string
	TranscriptionText string
	PostProcessedText string
	PostProcessPrompt string
	Saved             bool
}

// AudioFileDeleter is the injected collaborator that removes an audio
// file on disk; its failures are logged, never surfaced, per spec.md
// §4.12.
type AudioFileDeleter interface {
	Delete(fileName string) error
}

// Store is the SQLite-backed history store.
type Store struct {
	db        *gorm.DB
	retention config.RetentionPolicy
	limit     int
	files     AudioFileDeleter
	logger    Logger
}

// Logger is the narrow logging surface this package needs.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...interface{}) {}

// Open opens (creating if necessary) a SQLite database at dbPath,
// auto-migrates the schema, and runs retention once at startup.
func Open(dbPath string, retention config.RetentionPolicy, limit int, files AudioFileDeleter, logger Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, herr.Wrap(herr.Filesystem, "opening history database", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, herr.Wrap(herr.Filesystem, "migrating history schema", err)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if files == nil {
		files = noopFileDeleter{}
	}

	s := &Store{db: db, retention: retention, limit: limit, files: files, logger: logger}
	s.applyRetention()
	return s, nil
}

type noopFileDeleter struct{}

func (noopFileDeleter) Delete(string) error { return nil }

// Insert adds a history entry and re-applies retention.
func (s *Store) Insert(fileName, title, transcription, postProcessed, postProcessPrompt string) (*Entry, error) {
	e := Entry{
		ID:                uuid.NewString(),
		FileName:          fileName,
		Timestamp:         time.Now(),
		Title:             title,
		TranscriptionText: transcription,
		PostProcessedText: postProcessed,
		PostProcessPrompt: postProcessPrompt,
	}
	if err := s.db.Create(&e).Error; err != nil {
		return nil, herr.Wrap(herr.Filesystem, "inserting history entry", err)
	}
	s.applyRetention()
	return &e, nil
}

// MarkSaved marks an entry immune to retention deletion.
func (s *Store) MarkSaved(id string, saved bool) error {
	return s.db.Model(&Entry{}).Where("id = ?", id).Update("saved", saved).Error
}

// List returns all entries, most recent first.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.Order("timestamp desc").Find(&entries).Error
	return entries, err
}

// applyRetention enforces the configured policy. Failure to delete an
// audio file never fails the call; it is logged, per spec.md §4.12.
func (s *Store) applyRetention() {
	switch s.retention {
	case config.RetentionNever, "":
		return
	case config.RetentionPreserveLimit:
		s.enforceLimit()
	case config.RetentionDays3:
		s.enforceAge(3 * 24 * time.Hour)
	case config.RetentionWeeks2:
		s.enforceAge(14 * 24 * time.Hour)
	case config.RetentionMonths3:
		s.enforceAge(90 * 24 * time.Hour)
	}
}

func (s *Store) enforceLimit() {
	if s.limit <= 0 {
		return
	}
	var unsaved []Entry
	s.db.Where("saved = ?", false).Order("timestamp desc").Find(&unsaved)
	if len(unsaved) <= s.limit {
		return
	}
	toDelete := unsaved[s.limit:]
	s.deleteEntries(toDelete)
}

func (s *Store) enforceAge(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	var stale []Entry
	s.db.Where("saved = ? AND timestamp < ?", false, cutoff).Find(&stale)
	s.deleteEntries(stale)
}

func (s *Store) deleteEntries(entries []Entry) {
	for _, e := range entries {
		if e.FileName != "" {
			if err := s.files.Delete(e.FileName); err != nil {
				s.logger.Warn("failed to delete history audio file", "file", e.FileName, "error", err)
			}
		}
		s.db.Delete(&Entry{}, "id = ?", e.ID)
	}
}

// UnsavedCount returns the number of entries not marked saved.
func (s *Store) UnsavedCount() int64 {
	var count int64
	s.db.Model(&Entry{}).Where("saved = ?", false).Count(&count)
	return count
}
