// Package reliability provides strategy backups to S3-compatible storage and
// database maintenance jobs.
package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aristath/tactical/internal/events"
	"github.com/aristath/tactical/internal/modules/strategy"
	"github.com/rs/zerolog"
)

const (
	backupNamePrefix    = "tactical-backup-"
	backupNameSuffix    = ".tar.gz"
	backupTimeLayout    = "2006-01-02-150405"
	backupFormatVersion = "1"

	strategiesEntry = "strategies.json"
	metadataEntry   = "backup-metadata.json"

	// minBackupsToKeep survive rotation regardless of age
	minBackupsToKeep = 3
	// maxArchiveEntryBytes bounds a single archive entry on restore
	maxArchiveEntryBytes = 64 << 20
)

// ErrChecksumMismatch is returned when a restored archive fails verification
var ErrChecksumMismatch = errors.New("backup checksum mismatch")

// StrategyArchive is the strategy store being backed up
type StrategyArchive interface {
	ExportAll() ([]strategy.Exported, error)
	ImportExported(exp strategy.Exported) (strategy.View, error)
}

// BackupMetadata describes the contents of an archive
type BackupMetadata struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Strategies int       `json:"strategies"`
	SizeBytes  int64     `json:"size_bytes"`
	Checksum   string    `json:"checksum"`
}

// BackupInfo describes one stored backup
type BackupInfo struct {
	Key        string    `json:"key"`
	Timestamp  time.Time `json:"timestamp"`
	SizeBytes  int64     `json:"size_bytes"`
	AgeHours   int64     `json:"age_hours"`
	Strategies int       `json:"strategies,omitempty"`
}

// BackupService writes every strategy to a tar.gz archive in object storage
type BackupService struct {
	store      ObjectStore
	strategies StrategyArchive
	prefix     string
	events     *events.Manager
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a new backup service. prefix is prepended to every object key.
func NewBackupService(store ObjectStore, strategies StrategyArchive, prefix string, eventManager *events.Manager, log zerolog.Logger) *BackupService {
	return &BackupService{
		store:      store,
		strategies: strategies,
		prefix:     prefix,
		events:     eventManager,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup archives every strategy and uploads the archive
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (*BackupInfo, error) {
	s.log.Info().Msg("Starting strategy backup")
	startTime := time.Now()

	exported, err := s.strategies.ExportAll()
	if err != nil {
		return nil, fmt.Errorf("failed to export strategies: %w", err)
	}
	payload, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode strategies: %w", err)
	}

	timestamp := s.now().UTC()
	metadata := BackupMetadata{
		Timestamp:  timestamp,
		Version:    backupFormatVersion,
		Strategies: len(exported),
		SizeBytes:  int64(len(payload)),
		Checksum:   checksum(payload),
	}
	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	archive, err := createArchive(timestamp, map[string][]byte{
		strategiesEntry: payload,
		metadataEntry:   metaJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	key := s.prefix + backupNamePrefix + timestamp.Format(backupTimeLayout) + backupNameSuffix
	size := int64(archive.Len())
	if err := s.store.Upload(ctx, key, archive, size); err != nil {
		return nil, err
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Int("strategies", len(exported)).
		Int64("size_bytes", size).
		Msg("Strategy backup completed")

	return &BackupInfo{Key: key, Timestamp: timestamp, SizeBytes: size, Strategies: len(exported)}, nil
}

// ListBackups lists stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, s.prefix+backupNamePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, s.prefix)
		if !strings.HasPrefix(name, backupNamePrefix) || !strings.HasSuffix(name, backupNameSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupNamePrefix), backupNameSuffix)
		timestamp, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes backups older than retentionDays, always keeping
// the newest minBackupsToKeep. retentionDays <= 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		s.log.Debug().Int("count", len(backups)).Msg("Too few backups to rotate")
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("key", backup.Key).Time("timestamp", backup.Timestamp).Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

// Run creates a backup and rotates old ones, then reports the outcome
func (s *BackupService) Run(ctx context.Context, retentionDays int) error {
	info, err := s.CreateAndUploadBackup(ctx)
	if err != nil {
		s.events.EmitError("backup", err, nil)
		return err
	}
	pruned, err := s.RotateOldBackups(ctx, retentionDays)
	if err != nil {
		s.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	s.events.EmitTyped("backup", &events.BackupCompletedData{
		Key:        info.Key,
		SizeBytes:  info.SizeBytes,
		Strategies: info.Strategies,
		Pruned:     pruned,
	})
	return nil
}

// Restore downloads a backup, verifies it and recreates every strategy in it
// as a new session. It returns the ids of the created sessions.
func (s *BackupService) Restore(ctx context.Context, key string) ([]string, error) {
	body, err := s.store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	entries, err := readArchive(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", key, err)
	}
	payload, ok := entries[strategiesEntry]
	if !ok {
		return nil, fmt.Errorf("backup %s has no %s", key, strategiesEntry)
	}

	if metaJSON, ok := entries[metadataEntry]; ok {
		var metadata BackupMetadata
		if err := json.Unmarshal(metaJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to decode backup metadata: %w", err)
		}
		if got := checksum(payload); got != metadata.Checksum {
			return nil, fmt.Errorf("%w: %s has %s, expected %s", ErrChecksumMismatch, key, got, metadata.Checksum)
		}
	}

	var exported []strategy.Exported
	if err := json.Unmarshal(payload, &exported); err != nil {
		return nil, fmt.Errorf("failed to decode strategies: %w", err)
	}

	ids := make([]string, 0, len(exported))
	for _, exp := range exported {
		view, err := s.strategies.ImportExported(exp)
		if err != nil {
			return ids, fmt.Errorf("failed to restore strategy %s: %w", exp.ID, err)
		}
		ids = append(ids, view.ID)
	}

	s.log.Info().Str("key", key).Int("strategies", len(ids)).Msg("Backup restored")
	return ids, nil
}

func checksum(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}

// createArchive writes entries, sorted by name, into a tar.gz buffer
func createArchive(modTime time.Time, entries map[string][]byte) (*bytes.Buffer, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		data := entries[name]
		header := &tar.Header{
			Name:    name,
			Size:    int64(len(data)),
			Mode:    0644,
			ModTime: modTime,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := tarWriter.Write(data); err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// readArchive returns the regular files of a tar.gz stream
func readArchive(r io.Reader) (map[string][]byte, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gzipReader.Close()

	entries := make(map[string][]byte)
	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(tarReader, maxArchiveEntryBytes+1))
		if err != nil {
			return nil, err
		}
		if len(data) > maxArchiveEntryBytes {
			return nil, fmt.Errorf("archive entry %s is too large", header.Name)
		}
		entries[header.Name] = data
	}
	return entries, nil
}
