// Package storage keeps uploaded workbooks and generated matrices on the local filesystem.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gortm/internal"
	"gortm/internal/errors"

	"github.com/google/uuid"
)

// Config holds storage locations and upload limits
type Config struct {
	UploadDir         string
	OutputDir         string
	MaxUploadBytes    int64
	AllowedExtensions []string
	ChunkSize         int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		UploadDir:         "uploads",
		OutputDir:         "outputs",
		MaxUploadBytes:    10 * 1024 * 1024, // 10MB
		AllowedExtensions: []string{".xlsx", ".xlsm", ".csv"},
		ChunkSize:         1024 * 1024,
	}
}

// StoredFile describes an uploaded workbook
type StoredFile struct {
	ID       string    `json:"file_id"`
	FileName string    `json:"file_name"`
	Path     string    `json:"-"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// FileStore implements upload and output storage on the local filesystem
type FileStore struct {
	config Config
	logger *internal.Logger
}

// NewFileStore creates the storage directories if needed
func NewFileStore(config Config) (*FileStore, error) {
	defaults := DefaultConfig()
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = defaults.AllowedExtensions
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	for _, dir := range []string{config.UploadDir, config.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create storage directory %s", dir)
		}
	}
	return &FileStore{config: config, logger: internal.DefaultLogger.With("FileStore")}, nil
}

// ValidateUpload checks the extension and declared size of an upload
func (s *FileStore) ValidateUpload(fileName string, size int64) error {
	if strings.TrimSpace(fileName) == "" {
		return errors.ValidationError("file name is required")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	allowed := false
	for _, a := range s.config.AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.ValidationError(fmt.Sprintf("unsupported file type %q (allowed: %s)",
			ext, strings.Join(s.config.AllowedExtensions, ", ")))
	}
	if size > s.config.MaxUploadBytes {
		return errors.ValidationError(fmt.Sprintf("file size (%.1f MB) exceeds the %.1f MB limit",
			float64(size)/(1024*1024), float64(s.config.MaxUploadBytes)/(1024*1024)))
	}
	return nil
}

// Save stores an upload under a new file ID
func (s *FileStore) Save(ctx context.Context, r io.Reader, fileName string) (*StoredFile, error) {
	fileName = filepath.Base(fileName)
	if err := s.ValidateUpload(fileName, 0); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	path := filepath.Join(s.config.UploadDir, id+"_"+fileName)
	dest, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create destination file")
	}

	buf := make([]byte, s.config.ChunkSize)
	written, err := io.CopyBuffer(dest, io.LimitReader(r, s.config.MaxUploadBytes+1), buf)
	closeErr := dest.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path) // Clean up on failure
		return nil, errors.Wrap(err, "failed to copy file contents")
	}
	if written > s.config.MaxUploadBytes {
		os.Remove(path)
		return nil, s.ValidateUpload(fileName, written)
	}
	if written == 0 {
		os.Remove(path)
		return nil, errors.ValidationError("uploaded file is empty")
	}

	s.logger.Info("File uploaded: %s -> %s (%d bytes)", fileName, path, written)
	return &StoredFile{ID: id, FileName: fileName, Path: path, Size: written, StoredAt: time.Now()}, nil
}

// Find locates an upload by file ID
func (s *FileStore) Find(fileID string) (*StoredFile, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("invalid file ID %q", fileID))
	}
	entries, err := os.ReadDir(s.config.UploadDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list uploads")
	}
	prefix := fileID + "_"
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get file info")
		}
		return &StoredFile{
			ID:       fileID,
			FileName: strings.TrimPrefix(entry.Name(), prefix),
			Path:     filepath.Join(s.config.UploadDir, entry.Name()),
			Size:     info.Size(),
			StoredAt: info.ModTime(),
		}, nil
	}
	return nil, errors.NotFound("file " + fileID)
}

// Read returns the bytes of an upload
func (s *FileStore) Read(fileID string) ([]byte, *StoredFile, error) {
	file, err := s.Find(fileID)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read upload")
	}
	return data, file, nil
}

// OutputName returns RTM_<source stem>_<timestamp>_<run>.xlsx, where <run> is
// the first 8 alphanumerics of runID. The suffix is omitted when runID is empty.
func OutputName(sourceName, runID string, now time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	stem = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, stem)
	name := fmt.Sprintf("RTM_%s_%s", stem, now.Format("20060102_150405"))
	if suffix := runSuffix(runID); suffix != "" {
		name += "_" + suffix
	}
	return name + ".xlsx"
}

func runSuffix(runID string) string {
	var b strings.Builder
	for _, r := range runID {
		if b.Len() == 8 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// OutputPath joins an output file name onto the output directory
func (s *FileStore) OutputPath(name string) string {
	return filepath.Join(s.config.OutputDir, name)
}

// OpenOutput opens a generated matrix by file name
func (s *FileStore) OpenOutput(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, errors.InvalidInput(fmt.Sprintf("invalid output file name %q", name))
	}
	f, err := os.Open(s.OutputPath(name))
	if os.IsNotExist(err) {
		return nil, errors.NotFound("output file " + name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open output file")
	}
	return f, nil
}

// Cleanup removes uploads and outputs older than maxAge and returns how many were deleted
func (s *FileStore) Cleanup(maxAge time.Duration, now time.Time) (int, error) {
	removed := 0
	for _, dir := range []string{s.config.UploadDir, s.config.OutputDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, errors.Wrapf(err, "failed to list %s", dir)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) <= maxAge {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return removed, errors.Wrapf(err, "failed to delete %s", path)
			}
			s.logger.Debug("Deleted old file: %s", path)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("Cleanup removed %d files older than %s", removed, maxAge)
	}
	return removed, nil
}
