// Package pgstore provides a PostgreSQL implementation of tracking.Store.
package pgstore

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

var tracer = otel.Tracer("github.com/linnemanlabs/wbtrack/internal/tracking/pgstore")

//go:embed schema.sql
var schema string

// Store persists owner records in PostgreSQL, one JSONB row per owner.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Load retrieves an owner's record. A row that does not decode into a valid
// record is logged and reported as absent.
func (s *Store) Load(ctx context.Context, owner tracking.OwnerID) (*tracking.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM owner_records WHERE owner_id = $1`, string(owner)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("select owner record: %w", err)
	}

	rec := tracking.NewRecord()
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(rec); err != nil {
		s.logger.Error(ctx, err, "malformed owner record, treating as empty", "owner", string(owner))
		return nil, false, nil
	}
	if err := rec.Validate(); err != nil {
		s.logger.Error(ctx, err, "invalid owner record, treating as empty", "owner", string(owner))
		return nil, false, nil
	}
	return rec, true, nil
}

// Save upserts the owner's full record.
func (s *Store) Save(ctx context.Context, owner tracking.OwnerID, rec *tracking.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	raw, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal owner record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO owner_records (owner_id, record, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (owner_id) DO UPDATE SET
			record     = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`,
		string(owner), raw,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert owner record: %w", err)
	}
	return nil
}

// Owners lists every owner with a stored record.
func (s *Store) Owners(ctx context.Context) ([]tracking.OwnerID, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Owners", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT owner_id FROM owner_records ORDER BY owner_id`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var out []tracking.OwnerID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, tracking.OwnerID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return out, nil
}
