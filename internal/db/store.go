package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

const batchChunkSize = 500

const (
	getDocumentSQL = `
		SELECT data
		FROM documents
		WHERE collection = $1 AND id = $2`

	getDocumentForUpdateSQL = getDocumentSQL + `
		FOR UPDATE`

	listDocumentsSQL = `
		SELECT id, data
		FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY id`

	// $3 fields, $4 defaults, $5 keys to remove
	mergeDocumentSQL = `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, ($4::jsonb || $3::jsonb) - $5::text[], $6)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = ($4::jsonb || documents.data || $3::jsonb) - $5::text[],
		    updated_at = $6`

	replaceDocumentSQL = `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at`

	deleteDocumentSQL = `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2`
)

type pgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a docstore.Store on a single jsonb documents table. Transactions
// lock the rows they read with SELECT ... FOR UPDATE.
type Store struct {
	pool        pgxIface
	maxAttempts int
	chunkSize   int
	now         func() time.Time
}

var _ docstore.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, maxAttempts int) *Store {
	if pool == nil {
		panic("db: pgx pool required")
	}
	return newStoreWithPool(pool, maxAttempts)
}

func newStoreWithPool(pool pgxIface, maxAttempts int) *Store {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{pool: pool, maxAttempts: maxAttempts, chunkSize: batchChunkSize, now: time.Now}
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	collection, id, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	return scanDocument(s.pool.QueryRow(ctx, getDocumentSQL, collection, id), path, id)
}

func (s *Store) List(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if !docstore.ValidCollection(collection) {
		return nil, docstore.ErrInvalidPath
	}
	contains := make(map[string]any, len(filters))
	for _, f := range filters {
		contains[f.Field] = f.Value
	}
	filterJSON, err := json.Marshal(contains)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}

	rows, err := s.pool.Query(ctx, listDocumentsSQL, collection, string(filterJSON))
	if err != nil {
		return nil, docstore.Unavailable("list", err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, docstore.Unavailable("list", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, docstore.Document{Path: collection + "/" + id, ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, docstore.Unavailable("list", err)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields, opts ...docstore.SetOption) error {
	var w docstore.Writes
	w.Set(path, fields, opts...)
	if err := execOp(ctx, s.pool, w.Ops()[0], s.now()); err != nil {
		return docstore.Unavailable("set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	var w docstore.Writes
	w.Delete(path)
	if err := execOp(ctx, s.pool, w.Ops()[0], s.now()); err != nil {
		return docstore.Unavailable("delete", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunTransaction retries fn when Postgres reports a serialization failure
// or deadlock.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if isRetryable(err) {
			continue
		}
		return err
	}
	return docstore.ErrContention
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return docstore.Unavailable("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ptx := &pgTx{tx: tx}
	if err := fn(ctx, ptx); err != nil {
		return err
	}

	now := s.now()
	for _, op := range ptx.writes.Ops() {
		if err := execOp(ctx, tx, op, now); err != nil {
			return docstore.Unavailable("write", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return docstore.Unavailable("commit", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type pgTx struct {
	tx     pgx.Tx
	writes docstore.Writes
}

func (t *pgTx) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if t.writes.Len() > 0 {
		return nil, docstore.ErrReadAfterWrite
	}
	collection, id, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	return scanDocument(t.tx.QueryRow(ctx, getDocumentForUpdateSQL, collection, id), path, id)
}

func (t *pgTx) Set(path string, fields docstore.Fields, opts ...docstore.SetOption) {
	t.writes.Set(path, fields, opts...)
}

func (t *pgTx) Delete(path string) {
	t.writes.Delete(path)
}

func (s *Store) Batch() docstore.Batch {
	return &pgBatch{store: s}
}

type pgBatch struct {
	docstore.Writes
	store *Store
}

// Commit sends each chunk as one pgx batch. Postgres runs a batch in an
// implicit transaction, so a failing chunk applies nothing, while earlier
// chunks stay committed.
func (b *pgBatch) Commit(ctx context.Context) error {
	ops := b.Ops()
	now := b.store.now()
	chunks := docstore.Chunks(ops, b.store.chunkSize)
	applied := 0

	for ci, chunk := range chunks {
		batch := &pgx.Batch{}
		for _, op := range chunk {
			query, args, err := opQuery(op, now)
			if err != nil {
				return err
			}
			batch.Queue(query, args...)
		}

		err := sendBatch(ctx, b.store.pool, batch, len(chunk))
		if err != nil {
			var failed []string
			for _, rest := range chunks[ci:] {
				failed = append(failed, docstore.Paths(rest)...)
			}
			return &docstore.BatchError{Applied: applied, Failed: failed, Err: docstore.Unavailable("batch", err)}
		}
		applied += len(chunk)
	}

	b.Reset()
	return nil
}

func sendBatch(ctx context.Context, pool pgxIface, batch *pgx.Batch, n int) error {
	br := pool.SendBatch(ctx, batch)
	var firstErr error
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := br.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func execOp(ctx context.Context, ex execer, op docstore.Op, now time.Time) error {
	query, args, err := opQuery(op, now)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, query, args...)
	return err
}

func opQuery(op docstore.Op, now time.Time) (string, []any, error) {
	collection, id, err := docstore.Split(op.Path)
	if err != nil {
		return "", nil, err
	}

	if op.Kind == docstore.OpDelete {
		return deleteDocumentSQL, []any{collection, id}, nil
	}

	set, remove := docstore.Resolve(op.Fields, now)
	defaults, _ := docstore.Resolve(op.Options.Defaults, now)

	if !op.Options.Merge {
		for k, v := range defaults {
			if _, ok := set[k]; !ok {
				set[k] = v
			}
		}
		data, err := json.Marshal(set)
		if err != nil {
			return "", nil, fmt.Errorf("encode document: %w", err)
		}
		return replaceDocumentSQL, []any{collection, id, string(data), now}, nil
	}

	data, err := json.Marshal(set)
	if err != nil {
		return "", nil, fmt.Errorf("encode document: %w", err)
	}
	if defaults == nil {
		defaults = docstore.Fields{}
	}
	defaultData, err := json.Marshal(defaults)
	if err != nil {
		return "", nil, fmt.Errorf("encode defaults: %w", err)
	}
	if remove == nil {
		remove = []string{}
	}
	return mergeDocumentSQL, []any{collection, id, string(data), string(defaultData), remove, now}, nil
}

func scanDocument(row pgx.Row, path, id string) (*docstore.Document, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, docstore.Unavailable("get", err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	return &docstore.Document{Path: path, ID: id, Fields: fields}, nil
}

func decodeFields(raw []byte) (docstore.Fields, error) {
	fields := docstore.Fields{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}
