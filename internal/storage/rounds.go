package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"runtimeviewer/internal/models"
)

// ErrNoDataset is returned when the dataset file does not exist.
var ErrNoDataset = errors.New("dataset file not found")

// RoundStorage reads and replaces a round dataset kept on disk.
type RoundStorage struct {
	mu   sync.RWMutex
	path string
}

// NewRoundStorage prepares storage for the dataset at path, creating its
// directory when needed.
func NewRoundStorage(path string) (*RoundStorage, error) {
	if path == "" {
		return nil, errors.New("dataset path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return &RoundStorage{path: path}, nil
}

// Path is the dataset file location.
func (s *RoundStorage) Path() string {
	return s.path
}

// Load decodes the dataset in its stored (oldest-first) order.
func (s *RoundStorage) Load() ([]models.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDataset, s.path)
		}
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(data) == 0 {
		return []models.Round{}, nil
	}

	var rounds []models.Round
	if err := json.Unmarshal(data, &rounds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if rounds == nil {
		rounds = []models.Round{}
	}
	return rounds, nil
}

// Replace atomically overwrites the dataset file.
func (s *RoundStorage) Replace(rounds []models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bytes, err := json.Marshal(rounds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp dataset: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace dataset file: %w", err)
	}
	return nil
}
