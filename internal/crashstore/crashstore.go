// Package crashstore persists crash descriptors surfaced by the adapters
// so a multi-hour cooperative-fuzzing campaign survives a restart.
// Entirely optional: disabled rather than fatal when no DSN is configured.
package crashstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"uberfuzz/config"
	"uberfuzz/internal/testcase"
)

// Store deduplicates and upserts crash descriptors into a Postgres table.
// A Store constructed with a nil db is a no-op: every call returns
// immediately without error, so callers never need to branch on whether
// persistence is enabled.
type Store struct {
	db      *gorm.DB
	blobDir string
	logger  *zap.Logger
}

// NewDBConnection opens the crash database when cfg.DatabaseURL is set.
// A missing DSN only disables this optional component: logged, not fatal.
func NewDBConnection(cfg *config.AppConfig, logger *zap.Logger) *gorm.DB {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not configured, crash persistence disabled")
		return nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Warn("failed to connect to crash database, persistence disabled", zap.Error(err))
		return nil
	}
	if err := db.AutoMigrate(&Crash{}); err != nil {
		logger.Warn("failed to migrate crashes table, crash persistence disabled", zap.Error(err))
		return nil
	}
	logger.Debug("connected to crash database")
	return db
}

// NewStore constructs a Store around db, which may be nil.
func NewStore(db *gorm.DB, cfg *config.AppConfig, logger *zap.Logger) *Store {
	blobDir := filepath.Join(cfg.WorkDir, "crashes")
	return &Store{db: db, blobDir: blobDir, logger: logger.Named("crashstore")}
}

// Record deduplicates crash by the md5 of its input bytes and upserts it.
// A duplicate md5 is silently ignored via an ON CONFLICT DO NOTHING
// clause, so calling Record repeatedly for the same crash across logging
// ticks is safe.
func (s *Store) Record(ctx context.Context, identifier string, crash testcase.Crash) {
	if s.db == nil {
		return
	}

	sum := md5.Sum(crash.Input)
	hash := hex.EncodeToString(sum[:])
	blobPath := filepath.Join(s.blobDir, hash)

	if err := os.MkdirAll(s.blobDir, 0o755); err != nil {
		s.logger.Warn("failed to create crash blob directory", zap.Error(err))
		return
	}
	if err := os.WriteFile(blobPath, crash.Input, 0o644); err != nil {
		s.logger.Warn("failed to write crash blob", zap.Error(err))
		return
	}

	row := &Crash{
		FuzzerIdentifier: identifier,
		Signal:           int(crash.Signal),
		MD5:              hash,
		ByteLength:       len(crash.Input),
		BlobPath:         blobPath,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "md5"}}, DoNothing: true}).
		Create(row).Error
	if err != nil {
		s.logger.Warn("failed to persist crash", zap.String("md5", hash), zap.Error(err))
	}
}
