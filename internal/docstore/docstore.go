// Package docstore defines the tenant-scoped document store the booking
// subsystem runs on: single-document reads and writes, equality listing,
// read-then-write transactions and batched writes.
//
// Concrete backends live in internal/redis, internal/db and internal/dynamo.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("docstore: document not found")
	ErrUnavailable    = errors.New("docstore: store unavailable")
	ErrContention     = errors.New("docstore: transaction aborted after repeated contention")
	ErrReadAfterWrite = errors.New("docstore: transactions must perform all reads before writes")
	ErrInvalidPath    = errors.New("docstore: invalid document path")
)

// Fields holds the data of one document. Values are strings, bools, numbers
// or nil. On a merge write a nil value removes the field.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when the write is applied.
var ServerTimestamp = serverTimestamp{}

// Document is a stored document and its location.
type Document struct {
	Path   string
	ID     string
	Fields Fields
}

// Str returns a string field or "" when missing or of another type.
func (d *Document) Str(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d.Fields[key].(string)
	return s
}

// Bool returns a bool field and whether it was present.
func (d *Document) Bool(key string) (bool, bool) {
	if d == nil {
		return false, false
	}
	b, ok := d.Fields[key].(bool)
	return b, ok
}

// Strings returns a list field. JSON backends decode lists as []any.
func (d *Document) Strings(key string) []string {
	if d == nil {
		return nil
	}
	switch v := d.Fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Filter is an equality condition evaluated by List.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// SetOptions controls how Set combines new fields with a stored document.
type SetOptions struct {
	Merge    bool
	Defaults Fields
}

type SetOption func(*SetOptions)

// Merge keeps stored fields that the write does not mention.
func Merge() SetOption {
	return func(o *SetOptions) { o.Merge = true }
}

// WithDefaults writes each field only if the stored document lacks it.
func WithDefaults(defaults Fields) SetOption {
	return func(o *SetOptions) {
		if o.Defaults == nil {
			o.Defaults = Fields{}
		}
		for k, v := range defaults {
			o.Defaults[k] = v
		}
	}
}

func ApplyOptions(opts []SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store is the document store contract shared by all backends.
type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Set(ctx context.Context, path string, fields Fields, opts ...SetOption) error
	Delete(ctx context.Context, path string) error
	// RunTransaction runs fn with isolation against concurrent transactions
	// touching the same documents. fn may be re-run on contention, so it must
	// not have side effects outside tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Batch() Batch
	Ping(ctx context.Context) error
}

// Tx is the handle passed to a transaction function. Writes are buffered
// and applied atomically when the function returns nil.
type Tx interface {
	Get(ctx context.Context, path string) (*Document, error)
	Set(path string, fields Fields, opts ...SetOption)
	Delete(path string)
}

// Batch buffers writes and applies them in as few round trips as the
// backend allows. A batch is not atomic as a whole.
type Batch interface {
	Set(path string, fields Fields, opts ...SetOption)
	Delete(path string)
	Len() int
	Commit(ctx context.Context) error
}

// BatchError reports a batch that stopped part way through.
type BatchError struct {
	Applied int
	Failed  []string
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("docstore: batch applied %d writes, %d failed: %v", e.Applied, len(e.Failed), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Unavailable wraps a driver error so callers can match ErrUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// Resolve replaces ServerTimestamp sentinels and splits fields into values
// to write and keys to remove.
func Resolve(fields Fields, now time.Time) (Fields, []string) {
	set := make(Fields, len(fields))
	var remove []string
	for k, v := range fields {
		switch v.(type) {
		case nil:
			remove = append(remove, k)
		case serverTimestamp:
			set[k] = FormatTime(now)
		default:
			set[k] = v
		}
	}
	return set, remove
}

// FormatTime is the canonical timestamp encoding used by every backend.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Matches reports whether fields satisfy every filter.
func Matches(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		if !equalValue(fields[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func joinPath(segments ...string) string {
	return strings.Join(segments, "/")
}
