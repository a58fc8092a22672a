// Package filestore persists owner records in a single JSON file keyed by owner id.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".wbtrack-*.json.tmp"
	corruptSuffix   = ".corrupt"
	indent          = "    "
)

// Store keeps every owner's record in one JSON document. The file is read on
// every Load and rewritten in full on every Save through a temp file and rename.
type Store struct {
	path   string
	logger log.Logger

	mu sync.Mutex
}

// New returns a Store backed by path. The file does not need to exist yet.
func New(path string, logger log.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("data file path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve data file path: %w", err)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{path: filepath.Clean(abs), logger: logger}, nil
}

// Path returns the absolute data file path.
func (s *Store) Path() string { return s.path }

// Load returns the owner's record. A missing file, a corrupt file or a
// malformed owner entry all yield ok=false; corruption is logged.
func (s *Store) Load(ctx context.Context, owner tracking.OwnerID) (*tracking.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	doc, _, err := s.readDoc(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, false, err
	}

	raw, ok := doc[string(owner)]
	if !ok {
		return nil, false, nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		s.logger.Error(ctx, err, "malformed owner record, treating as empty", "owner", string(owner), "path", s.path)
		return nil, false, nil
	}
	return rec, true, nil
}

// Save overwrites the owner's entry and rewrites the file.
func (s *Store) Save(ctx context.Context, owner tracking.OwnerID, rec *tracking.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode owner record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, corrupt, err := s.readDoc(ctx)
	if err != nil {
		return err
	}
	if corrupt {
		s.preserveCorrupt(ctx)
	}

	doc[string(owner)] = encoded
	return s.writeDoc(doc)
}

// Owners lists the owners present in the file in sorted order.
func (s *Store) Owners(ctx context.Context) ([]tracking.OwnerID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	doc, _, err := s.readDoc(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]tracking.OwnerID, 0, len(doc))
	for id := range doc {
		out = append(out, tracking.OwnerID(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// readDoc reads the top-level owner map. An unparsable file is logged and
// reported as an empty document with corrupt=true. Only I/O errors other
// than a missing file are returned.
func (s *Store) readDoc(ctx context.Context) (doc map[string]json.RawMessage, corrupt bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, false, nil
		}
		return nil, false, fmt.Errorf("read data file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]json.RawMessage{}, false, nil
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		s.logger.Error(ctx, err, "corrupt data file, treating as empty", "path", s.path)
		return map[string]json.RawMessage{}, true, nil
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, false, nil
}

func (s *Store) preserveCorrupt(ctx context.Context) {
	dst := s.path + corruptSuffix
	if err := os.Rename(s.path, dst); err != nil {
		s.logger.Warn(ctx, "failed to preserve corrupt data file", "path", s.path, "error", err)
		return
	}
	s.logger.Warn(ctx, "corrupt data file preserved before overwrite", "path", dst)
}

func (s *Store) writeDoc(doc map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", indent)
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}
	data = append(data, '\n')

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp data file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp data file: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp data file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp data file: %w", err)
	}
	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	cleanup = false
	return nil
}

func decodeRecord(raw json.RawMessage) (*tracking.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	rec := tracking.NewRecord()
	if err := dec.Decode(rec); err != nil {
		return nil, fmt.Errorf("decode owner record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("validate owner record: %w", err)
	}
	return rec, nil
}
