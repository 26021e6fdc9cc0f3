package docstore

// OpKind identifies a buffered write.
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
)

// Op is one buffered write, shared by every backend's Tx and Batch.
type Op struct {
	Kind    OpKind
	Path    string
	Fields  Fields
	Options SetOptions
}

// Writes is an ordered write buffer.
type Writes struct {
	ops []Op
}

func (w *Writes) Set(path string, fields Fields, opts ...SetOption) {
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	w.ops = append(w.ops, Op{Kind: OpSet, Path: path, Fields: copied, Options: ApplyOptions(opts)})
}

func (w *Writes) Delete(path string) {
	w.ops = append(w.ops, Op{Kind: OpDelete, Path: path})
}

func (w *Writes) Len() int { return len(w.ops) }

func (w *Writes) Ops() []Op { return w.ops }

func (w *Writes) Reset() { w.ops = nil }

// Chunks splits ops into groups of at most size.
func Chunks(ops []Op, size int) [][]Op {
	if size <= 0 {
		size = len(ops)
	}
	var out [][]Op
	for start := 0; start < len(ops); start += size {
		end := start + size
		if end > len(ops) {
			end = len(ops)
		}
		out = append(out, ops[start:end])
	}
	return out
}

// Paths lists the document paths touched by ops.
func Paths(ops []Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Path
	}
	return out
}
