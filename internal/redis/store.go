package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

// Each document is a hash at doc:{path} whose values are JSON-encoded
// fields. Every collection keeps a set of member ids at idx:{collection}.
const (
	docPrefix      = "doc:"
	indexPrefix    = "idx:"
	batchChunkSize = 500
)

// Store is a docstore.Store on Redis. Transactions use WATCH/MULTI/EXEC.
type Store struct {
	client      *redis.Client
	maxAttempts int
	now         func() time.Time
}

var _ docstore.Store = (*Store)(nil)

func NewStore(client *redis.Client, maxAttempts int) *Store {
	if client == nil {
		panic("redisclient: client cannot be nil")
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{client: client, maxAttempts: maxAttempts, now: time.Now}
}

func docKey(path string) string { return docPrefix + path }

func indexKey(collection string) string { return indexPrefix + collection }

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	_, id, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	vals, err := s.client.HGetAll(ctx, docKey(path)).Result()
	if err != nil {
		return nil, docstore.Unavailable("get", err)
	}
	return decodeDocument(path, id, vals)
}

func (s *Store) List(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if !docstore.ValidCollection(collection) {
		return nil, docstore.ErrInvalidPath
	}
	ids, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, docstore.Unavailable("list", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, docKey(collection+"/"+id))
		}
		return nil
	})
	if err != nil {
		return nil, docstore.Unavailable("list", err)
	}

	out := make([]docstore.Document, 0, len(ids))
	for i, id := range ids {
		doc, err := decodeDocument(collection+"/"+id, id, cmds[i].Val())
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if docstore.Matches(doc.Fields, filters) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields, opts ...docstore.SetOption) error {
	var w docstore.Writes
	w.Set(path, fields, opts...)
	return s.applyAtomically(ctx, w.Ops())
}

func (s *Store) Delete(ctx context.Context, path string) error {
	var w docstore.Writes
	w.Delete(path)
	return s.applyAtomically(ctx, w.Ops())
}

func (s *Store) applyAtomically(ctx context.Context, ops []docstore.Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}
	now := s.now()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, op := range ops {
			if _, err := queueOp(ctx, p, op, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return docstore.Unavailable("write", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RunTransaction runs fn under WATCH. If a watched document changes before
// EXEC the attempt is discarded and fn runs again against fresh reads.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{rtx: rtx}
			if err := fn(ctx, tx); err != nil {
				fnErr = err
				return err
			}
			ops := tx.writes.Ops()
			if len(ops) == 0 {
				return nil
			}
			if err := validateOps(ops); err != nil {
				fnErr = err
				return err
			}
			now := s.now()
			_, err := rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				for _, op := range ops {
					if _, err := queueOp(ctx, p, op, now); err != nil {
						return err
					}
				}
				return nil
			})
			return err
		})
		if fnErr != nil {
			return fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return docstore.Unavailable("transaction", err)
		}
		return nil
	}
	return docstore.ErrContention
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt)*time.Millisecond + time.Duration(rand.IntN(3000))*time.Microsecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type redisTx struct {
	rtx    *redis.Tx
	writes docstore.Writes
}

func (t *redisTx) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if t.writes.Len() > 0 {
		return nil, docstore.ErrReadAfterWrite
	}
	_, id, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	key := docKey(path)
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return nil, docstore.Unavailable("watch", err)
	}
	vals, err := t.rtx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, docstore.Unavailable("get", err)
	}
	return decodeDocument(path, id, vals)
}

func (t *redisTx) Set(path string, fields docstore.Fields, opts ...docstore.SetOption) {
	t.writes.Set(path, fields, opts...)
}

func (t *redisTx) Delete(path string) {
	t.writes.Delete(path)
}

func (s *Store) Batch() docstore.Batch {
	return &redisBatch{store: s}
}

type redisBatch struct {
	docstore.Writes
	store *Store
}

// Commit sends each chunk as one pipeline. Commands are not wrapped in
// MULTI, so a failing write does not undo the ones before it.
func (b *redisBatch) Commit(ctx context.Context) error {
	ops := b.Ops()
	if err := validateOps(ops); err != nil {
		return err
	}
	now := b.store.now()
	applied := 0

	for ci, chunk := range docstore.Chunks(ops, batchChunkSize) {
		counts := make([]int, len(chunk))
		cmds, err := b.store.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			for i, op := range chunk {
				n, err := queueOp(ctx, p, op, now)
				if err != nil {
					return err
				}
				counts[i] = n
			}
			return nil
		})

		var failed []string
		if err != nil && len(cmds) != sum(counts) {
			failed = docstore.Paths(chunk)
		} else {
			pos := 0
			for i, op := range chunk {
				ok := true
				for _, cmd := range cmds[pos : pos+counts[i]] {
					if cmd.Err() != nil && !errors.Is(cmd.Err(), redis.Nil) {
						ok = false
					}
				}
				pos += counts[i]
				if ok {
					applied++
				} else {
					failed = append(failed, op.Path)
				}
			}
		}

		if len(failed) > 0 {
			for _, rest := range docstore.Chunks(ops, batchChunkSize)[ci+1:] {
				failed = append(failed, docstore.Paths(rest)...)
			}
			if err == nil {
				err = errors.New("pipeline command failed")
			}
			return &docstore.BatchError{Applied: applied, Failed: failed, Err: docstore.Unavailable("batch", err)}
		}
	}

	b.Reset()
	return nil
}

func sum(ns []int) int {
	total := 0
	for _, n := range ns {
		total += n
	}
	return total
}

func validateOps(ops []docstore.Op) error {
	for _, op := range ops {
		if _, _, err := docstore.Split(op.Path); err != nil {
			return fmt.Errorf("%w: %q", err, op.Path)
		}
	}
	return nil
}

// queueOp queues the commands for one write and returns how many it queued.
func queueOp(ctx context.Context, p redis.Pipeliner, op docstore.Op, now time.Time) (int, error) {
	collection, id, err := docstore.Split(op.Path)
	if err != nil {
		return 0, err
	}
	key := docKey(op.Path)

	if op.Kind == docstore.OpDelete {
		p.Del(ctx, key)
		p.SRem(ctx, indexKey(collection), id)
		return 2, nil
	}

	set, remove := docstore.Resolve(op.Fields, now)
	defaults, _ := docstore.Resolve(op.Options.Defaults, now)
	n := 0

	if !op.Options.Merge {
		for k, v := range defaults {
			if _, ok := set[k]; !ok {
				set[k] = v
			}
		}
		defaults = nil
		p.Del(ctx, key)
		n++
	}

	if len(set) > 0 {
		encoded, err := encodeFields(set)
		if err != nil {
			return 0, err
		}
		p.HSet(ctx, key, encoded)
		n++
	}
	for k, v := range defaults {
		if _, ok := set[k]; ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encode field %s: %w", k, err)
		}
		p.HSetNX(ctx, key, k, string(raw))
		n++
	}
	if op.Options.Merge && len(remove) > 0 {
		p.HDel(ctx, key, remove...)
		n++
	}

	p.SAdd(ctx, indexKey(collection), id)
	return n + 1, nil
}

func encodeFields(fields docstore.Fields) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		out[k] = string(raw)
	}
	return out, nil
}

func decodeDocument(path, id string, vals map[string]string) (*docstore.Document, error) {
	if len(vals) == 0 {
		return nil, docstore.ErrNotFound
	}
	fields := make(docstore.Fields, len(vals))
	for k, raw := range vals {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode field %s of %s: %w", k, path, err)
		}
		fields[k] = v
	}
	return &docstore.Document{Path: path, ID: id, Fields: fields}, nil
}
