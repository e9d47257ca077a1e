package engine_util

import "github.com/Connor1996/badger"

// CFItem wraps a badger.Item and strips the column-family prefix off its Key,
// so callers of DBIterator never see the "cf_" namespacing engine_util
// layers onto raw badger keys.
type CFItem struct {
	item      *badger.Item
	prefixLen int
}

func (i *CFItem) Key() []byte { return i.item.Key()[i.prefixLen:] }

func (i *CFItem) KeyCopy(dst []byte) []byte {
	full := i.item.KeyCopy(dst)
	return full[i.prefixLen:]
}

func (i *CFItem) Value() ([]byte, error)                 { return i.item.Value() }
func (i *CFItem) ValueCopy(dst []byte) ([]byte, error)    { return i.item.ValueCopy(dst) }
func (i *CFItem) ValueSize() int                          { return i.item.ValueSize() }
func (i *CFItem) IsEmpty() bool                           { return i.item.IsEmpty() }

// DBIterator is the ordered-iteration primitive required by spec.md §4.B:
// forward and reverse variants both honor lexicographic raw-key order.
type DBIterator interface {
	Item() *CFItem
	Valid() bool
	Next()
	Seek(key []byte)
	Rewind()
	Close()
}

// CFIterator scans one column family of a single badger snapshot/txn in
// ascending key order.
type CFIterator struct {
	iter   *badger.Iterator
	prefix string
}

func NewCFIterator(cf string, txn *badger.Txn) *CFIterator {
	opts := badger.DefaultIteratorOptions
	return &CFIterator{
		iter:   txn.NewIterator(opts),
		prefix: cf + "_",
	}
}

func (it *CFIterator) Item() *CFItem {
	return &CFItem{item: it.iter.Item(), prefixLen: len(it.prefix)}
}

func (it *CFIterator) Valid() bool { return it.iter.ValidForPrefix([]byte(it.prefix)) }

func (it *CFIterator) Close() { it.iter.Close() }
func (it *CFIterator) Next()  { it.iter.Next() }
func (it *CFIterator) Rewind() {
	it.iter.Seek([]byte(it.prefix))
}

func (it *CFIterator) Seek(key []byte) {
	it.iter.Seek(append([]byte(it.prefix), key...))
}

// ReverseCFIterator scans one column family in descending key order; used by
// the MVCC reverse_scan operation (spec.md §4.H).
type ReverseCFIterator struct {
	iter   *badger.Iterator
	prefix string
}

func NewReverseCFIterator(cf string, txn *badger.Txn) *ReverseCFIterator {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	return &ReverseCFIterator{
		iter:   txn.NewIterator(opts),
		prefix: cf + "_",
	}
}

func (it *ReverseCFIterator) Item() *CFItem {
	return &CFItem{item: it.iter.Item(), prefixLen: len(it.prefix)}
}

func (it *ReverseCFIterator) Valid() bool { return it.iter.ValidForPrefix([]byte(it.prefix)) }
func (it *ReverseCFIterator) Close()      { it.iter.Close() }
func (it *ReverseCFIterator) Next()       { it.iter.Next() }
func (it *ReverseCFIterator) Rewind() {
	// Reverse iterators start at the last key <= prefix_end; seeking to
	// prefix+0xff sentinel lands just past the CF's last entry.
	it.iter.Seek(append([]byte(it.prefix), 0xff))
}

func (it *ReverseCFIterator) Seek(key []byte) {
	it.iter.Seek(append([]byte(it.prefix), key...))
}
