// Package storage keeps analysis outcomes in a SQLite database so batch runs
// and API calls can be looked up later.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/sonido-harmony/logging"
	"github.com/RyanBlaney/sonido-harmony/report"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultDBFile is used when no path is configured
const DefaultDBFile = "harmony.sqlite3"

var (
	ErrStoreNil = errors.New("store is nil")
	ErrNotFound = errors.New("record not found")
)

// Record status values
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// AnalysisRecord is one analyzed input, successful or not
type AnalysisRecord struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RunID         string    `gorm:"type:varchar(36);index:idx_run" json:"run_id,omitempty"`
	Path          string    `gorm:"index:idx_path" json:"path"`
	Kind          string    `json:"kind,omitempty"`
	Status        string    `gorm:"index:idx_status" json:"status"`
	DetectedKey   string    `json:"detected_key,omitempty"`
	Confidence    float64   `json:"confidence"`
	ChordCount    int       `json:"chord_count"`
	RomanNumerals []string  `gorm:"serializer:json" json:"roman_numerals"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store wraps the gorm handle
type Store struct {
	DB     *gorm.DB
	db     *sql.DB
	logger logging.Logger
}

// Open opens (and migrates) the database at dbPath, creating its directory.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// SQLite allows one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&AnalysisRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{
		DB: db,
		db: sqlDB,
		logger: logging.WithFields(logging.Fields{
			"component": "storage",
			"db":        dbPath,
		}),
	}, nil
}

// Close releases the database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveResult stores a successful analysis and returns its record ID
func (s *Store) SaveResult(runID, path string, r *report.FileResult, elapsed time.Duration) (string, error) {
	if s == nil || s.DB == nil {
		return "", ErrStoreNil
	}

	rec := AnalysisRecord{
		ID:            uuid.NewString(),
		RunID:         runID,
		Path:          path,
		Kind:          r.Kind,
		Status:        StatusOK,
		DetectedKey:   r.DetectedKey,
		Confidence:    r.Confidence,
		ChordCount:    r.ChordCount,
		RomanNumerals: r.RomanNumerals,
		ElapsedMs:     elapsed.Milliseconds(),
	}
	if err := s.DB.Create(&rec).Error; err != nil {
		return "", fmt.Errorf("creating analysis record: %w", err)
	}

	s.logger.Debug("Stored analysis", logging.Fields{"id": rec.ID, "path": path})
	return rec.ID, nil
}

// SaveFailure stores a failed analysis and returns its record ID
func (s *Store) SaveFailure(runID, path, errorKind string, cause error, elapsed time.Duration) (string, error) {
	if s == nil || s.DB == nil {
		return "", ErrStoreNil
	}

	rec := AnalysisRecord{
		ID:        uuid.NewString(),
		RunID:     runID,
		Path:      path,
		Status:    StatusFailed,
		ErrorKind: errorKind,
		ElapsedMs: elapsed.Milliseconds(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := s.DB.Create(&rec).Error; err != nil {
		return "", fmt.Errorf("creating failure record: %w", err)
	}
	return rec.ID, nil
}

// Get fetches one record by ID
func (s *Store) Get(id string) (*AnalysisRecord, error) {
	if s == nil || s.DB == nil {
		return nil, ErrStoreNil
	}

	var rec AnalysisRecord
	err := s.DB.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying record %s: %w", id, err)
	}
	return &rec, nil
}

// ListRun returns every record of a batch run in path order
func (s *Store) ListRun(runID string) ([]AnalysisRecord, error) {
	if s == nil || s.DB == nil {
		return nil, ErrStoreNil
	}

	var rows []AnalysisRecord
	if err := s.DB.Where("run_id = ?", runID).Order("path").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	return rows, nil
}

// Latest returns the newest record stored for path
func (s *Store) Latest(path string) (*AnalysisRecord, error) {
	if s == nil || s.DB == nil {
		return nil, ErrStoreNil
	}

	var rec AnalysisRecord
	err := s.DB.Where("path = ?", path).Order("created_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("querying path %s: %w", path, err)
	}
	return &rec, nil
}

// Recent returns up to limit records, newest first
func (s *Store) Recent(limit int) ([]AnalysisRecord, error) {
	if s == nil || s.DB == nil {
		return nil, ErrStoreNil
	}
	if limit <= 0 {
		limit = 50
	}

	var rows []AnalysisRecord
	if err := s.DB.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	return rows, nil
}

// CountByStatus counts the records of a run per status
func (s *Store) CountByStatus(runID string) (map[string]int64, error) {
	if s == nil || s.DB == nil {
		return nil, ErrStoreNil
	}

	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.DB.Model(&AnalysisRecord{}).
		Select("status, count(*) as n").
		Where("run_id = ?", runID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting run %s: %w", runID, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
