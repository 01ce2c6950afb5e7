// Package postgres provides a PostgreSQL implementation of
// storage.TranscriptStore. It uses pgx/v5 for connection pooling and JSONB
// columns for the recorded payloads.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/routeway/pkg/debug"
	"github.com/rhuss/routeway/pkg/storage"
)

// Store is a PostgreSQL-backed TranscriptStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.TranscriptStore = (*Store)(nil)

// New creates a store with the given configuration. If MigrateOnStart is
// true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save persists a transcript under the tenant carried by ctx.
func (s *Store) Save(ctx context.Context, t *storage.Transcript) error {
	var chunksJSON []byte
	if len(t.Chunks) > 0 {
		var err error
		chunksJSON, err = json.Marshal(t.Chunks)
		if err != nil {
			return fmt.Errorf("marshaling chunks: %w", err)
		}
	}

	request := t.Request
	if len(request) == 0 {
		request = json.RawMessage("{}")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (
			id, tenant_id, model, stream,
			request, response, chunks,
			status_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		t.ID, storage.TenantFromContext(ctx), t.Model, t.Stream,
		string(request), nullJSON(t.Response), nullJSON(chunksJSON),
		t.StatusCode, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting transcript: %w", err)
	}

	debug.Log("storage", "transcript saved", "id", t.ID, "model", t.Model)
	return nil
}

const selectColumns = `SELECT id, tenant_id, model, stream, request, response, chunks, status_code, created_at FROM transcripts`

// Get retrieves a transcript by ID.
func (s *Store) Get(ctx context.Context, id string) (*storage.Transcript, error) {
	query := selectColumns + " WHERE id = $1"
	args := []any{id}
	if tenant := storage.TenantFromContext(ctx); tenant != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenant)
	}

	t, err := scanTranscript(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	return t, nil
}

// List returns a page of transcripts visible from ctx.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.TranscriptList, error) {
	opts = opts.Normalize()

	query := selectColumns + " WHERE true"
	var args []any
	where := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}

	if tenant := storage.TenantFromContext(ctx); tenant != "" {
		where("tenant_id = $%d", tenant)
	}
	if opts.Model != "" {
		where("model = $%d", opts.Model)
	}

	// Rows after the cursor in the requested order, or rows ahead of it.
	next, prev := "<", ">"
	dir := "DESC"
	if opts.Order == "asc" {
		next, prev = ">", "<"
		dir = "ASC"
	}
	switch {
	case opts.After != "":
		where("(created_at, id) "+next+" (SELECT created_at, id FROM transcripts WHERE id = $%d)", opts.After)
	case opts.Before != "":
		where("(created_at, id) "+prev+" (SELECT created_at, id FROM transcripts WHERE id = $%d)", opts.Before)
	}

	query += fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT %d", dir, dir, opts.Limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	data := []*storage.Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		data = append(data, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}

	result := &storage.TranscriptList{Data: data}
	if len(data) > opts.Limit {
		result.Data = data[:opts.Limit]
		result.HasMore = true
	}
	if len(result.Data) > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[len(result.Data)-1].ID
	}
	return result, nil
}

// Delete removes a transcript.
func (s *Store) Delete(ctx context.Context, id string) error {
	query := "DELETE FROM transcripts WHERE id = $1"
	args := []any{id}
	if tenant := storage.TenantFromContext(ctx); tenant != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenant)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanTranscript(row pgx.Row) (*storage.Transcript, error) {
	var t storage.Transcript
	var request, response, chunks []byte

	if err := row.Scan(
		&t.ID, &t.Tenant, &t.Model, &t.Stream,
		&request, &response, &chunks,
		&t.StatusCode, &t.CreatedAt,
	); err != nil {
		return nil, err
	}

	t.Request = json.RawMessage(request)
	if len(response) > 0 {
		t.Response = json.RawMessage(response)
	}
	if len(chunks) > 0 {
		if err := json.Unmarshal(chunks, &t.Chunks); err != nil {
			return nil, fmt.Errorf("unmarshaling chunks: %w", err)
		}
	}
	return &t, nil
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}

// isDuplicateKey reports a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
