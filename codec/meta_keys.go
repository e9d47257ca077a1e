package codec

// FirstMetaIndex is the fixed sentinel every raw key's head meta page is
// stored at; overflow pages use the index the prior page's NextIndex points
// to (spec.md §3 "Meta page").
const FirstMetaIndex uint64 = 0

// MetaPageKey builds the CfWrite key of one page of a raw key's meta chain:
// raw_key⊕meta_index_be, ascending so FirstMetaIndex always sorts first.
func MetaPageKey(raw []byte, metaIndex uint64) []byte {
	k := DataKey(raw)
	suffix := make([]byte, 8)
	putUint64BE(suffix, metaIndex)
	return append(k, suffix...)
}

func putUint64BE(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// LockKey builds the CfLock key of a raw key's current lock record.
func LockKey(raw []byte) []byte {
	return DataKey(raw)
}
