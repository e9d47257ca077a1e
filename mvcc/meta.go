package mvcc

import "github.com/ridgekv/ridgekv/proto/kvrpcpb"

// MetaSplitSize bounds the marshaled byte length of one meta page (spec.md
// §4.G: "if its encoded length exceeds META_SPLIT_SIZE, split it").
// original_source/src/storage/mvcc/meta.rs, which would pin down the real
// threshold and split algorithm, was never retrieved into the example pack
// (only txn.rs's call-site contract was available: meta.split() runs before
// the head page is written, producing a page keyed by "the next unused
// index"). This constant and the split loop below are authored directly
// from the spec text rather than ported from a reference file.
const MetaSplitSize = 128

// pushItem prepends item to head (items stay newest-first: this is always
// the newly committed version) and, if the page's encoded length now
// exceeds MetaSplitSize, peels items off its tail — the oldest ones — into
// a freshly allocated overflow page. The overflow page takes over whatever
// chain link head previously pointed to, so the chain grows
// head -> overflow -> (head's old next page, if any), and global
// newest-to-oldest order across the whole chain is preserved.
//
// Returns the overflow page and the meta_index it was written at, or
// (nil, 0) if the page did not need to split.
func pushItem(head *kvrpcpb.Meta, item *kvrpcpb.MetaItem) (overflow *kvrpcpb.Meta, overflowIndex uint64) {
	head.Items = append([]*kvrpcpb.MetaItem{item}, head.Items...)

	for len(head.Items) > 1 {
		data, err := head.Marshal()
		if err != nil || len(data) <= MetaSplitSize {
			break
		}
		tail := head.Items[len(head.Items)-1]
		head.Items = head.Items[:len(head.Items)-1]
		if overflow == nil {
			if head.HasNext {
				overflowIndex = head.NextIndex + 1
			} else {
				overflowIndex = 1
			}
			overflow = &kvrpcpb.Meta{NextIndex: head.NextIndex, HasNext: head.HasNext}
		}
		overflow.Items = append([]*kvrpcpb.MetaItem{tail}, overflow.Items...)
	}
	if overflow != nil {
		head.NextIndex = overflowIndex
		head.HasNext = true
	}
	return overflow, overflowIndex
}
