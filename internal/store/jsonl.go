package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/carhound/carhound/internal/types"
)

// JSONLStore appends records to a newline-delimited JSON file, one document
// per line. Uniqueness is tracked with an in-memory index rebuilt from the
// file on open, so repeated runs against the same file stay idempotent.
type JSONLStore struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	seen   map[string]struct{}
	count  int
	logger *slog.Logger
}

// NewJSONLStore opens (or creates) the output file and indexes the unique
// ids of the records it already holds.
func NewJSONLStore(outputPath string, logger *slog.Logger) (*JSONLStore, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StoreError{Backend: "jsonl", Err: fmt.Errorf("create output dir: %w", err)}
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &types.StoreError{Backend: "jsonl", Err: fmt.Errorf("open output file: %w", err)}
	}

	seen, err := indexFile(f)
	if err != nil {
		f.Close()
		return nil, &types.StoreError{Backend: "jsonl", Err: err}
	}

	return &JSONLStore{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		seen:   seen,
		logger: logger.With("component", "jsonl_store"),
	}, nil
}

// indexFile reads the unique ids out of an existing JSONL file. Unparseable
// lines are skipped.
func indexFile(f *os.File) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var doc struct {
			VehicleID  string `json:"vehicle_id"`
			DataSource string `json:"data_source"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			continue
		}
		if doc.VehicleID != "" && doc.DataSource != "" {
			seen[types.UniqueID(doc.VehicleID, doc.DataSource)] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("index output file: %w", err)
	}
	return seen, nil
}

func (s *JSONLStore) Name() string { return "jsonl" }

func (s *JSONLStore) Exists(ctx context.Context, vehicleID, source string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[types.UniqueID(vehicleID, source)]
	return ok, nil
}

func (s *JSONLStore) Upsert(ctx context.Context, rec *types.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.UniqueID()
	if _, ok := s.seen[id]; ok {
		return false, nil
	}

	if err := s.enc.Encode(document(rec)); err != nil {
		return false, &types.StoreError{Backend: "jsonl", Err: fmt.Errorf("encode: %w", err)}
	}

	s.seen[id] = struct{}{}
	s.count++
	return true, nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("output written", "path", s.path, "records", s.count)
	return s.file.Close()
}
