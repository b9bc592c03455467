package storage

// PrefixDB is a namespace inside another DB. Every key is stored under
// prefix; callers only ever see their logical keys. Closing a PrefixDB does
// not close the underlying DB.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace prefix of inner.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: append([]byte(nil), prefix...)}
}

func joinKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	return append(append(out, prefix...), key...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(joinKey(p.prefix, key)) }

func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(joinKey(p.prefix, key), value) }

func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(joinKey(p.prefix, key)) }

func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(joinKey(p.prefix, key)) }

// ForEach visits the namespace keys starting with prefix, with the namespace
// stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(joinKey(p.prefix, prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// DeleteAll empties the namespace. Keys are collected before deleting since
// not every backend tolerates writes during iteration.
func (p *PrefixDB) DeleteAll() error {
	var keys [][]byte
	if err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := p.inner.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (p *PrefixDB) Close() error { return nil }

// NewBatch returns a batch in the namespace. It is atomic when the inner DB
// supports batches and a plain sequence of writes otherwise.
func (p *PrefixDB) NewBatch() Batch {
	if b, ok := p.inner.(Batcher); ok {
		return &prefixBatch{inner: b.NewBatch(), prefix: p.prefix}
	}
	return &writeThroughBatch{db: p}
}

type prefixBatch struct {
	inner  Batch
	prefix []byte
}

func (b *prefixBatch) Put(key, value []byte) error { return b.inner.Put(joinKey(b.prefix, key), value) }
func (b *prefixBatch) Delete(key []byte) error     { return b.inner.Delete(joinKey(b.prefix, key)) }
func (b *prefixBatch) Commit() error               { return b.inner.Commit() }

// writeThroughBatch buffers writes and replays them against db on Commit.
type writeThroughBatch struct {
	db  DB
	ops []batchOp
}

func (b *writeThroughBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, newBatchOp(key, value, false))
	return nil
}

func (b *writeThroughBatch) Delete(key []byte) error {
	b.ops = append(b.ops, newBatchOp(key, nil, true))
	return nil
}

func (b *writeThroughBatch) Commit() error {
	for _, op := range b.ops {
		var err error
		if op.value == nil {
			err = b.db.Delete(op.key)
		} else {
			err = b.db.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}
