package indexing

import (
	"github.com/tidwall/btree"

	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
	"github.com/marbledb/marble/transaction"
)

type btreeItem struct {
	key Key
	rid common.RecordID
}

// MemBTreeIndex is an ordered in-memory secondary index, a wrapper around
// github.com/tidwall/btree specialized for Keys and RecordIDs. Unlike the
// disk hash index it supports non-unique keys and is rebuilt on startup.
type MemBTreeIndex struct {
	tree     *btree.BTreeG[btreeItem]
	metadata *IndexMetadata
}

func NewMemBTreeIndex(oid common.ObjectID, schema *storage.RawTupleDesc, projectionList []int) *MemBTreeIndex {
	// Primary order by key; RecordID as the tie-breaker so equal keys form
	// distinct set members.
	less := func(a, b btreeItem) bool {
		cmp := a.key.Compare(b.key)
		if cmp != 0 {
			return cmp < 0
		}
		if a.rid.PageID != b.rid.PageID {
			return a.rid.PageID < b.rid.PageID
		}
		return a.rid.Slot < b.rid.Slot
	}

	return &MemBTreeIndex{
		tree: btree.NewBTreeG(less),
		metadata: &IndexMetadata{
			Oid:            oid,
			KeySchema:      schema,
			ProjectionList: projectionList,
		},
	}
}

func (index *MemBTreeIndex) Metadata() *IndexMetadata {
	return index.metadata
}

func (index *MemBTreeIndex) InsertEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	common.Assert(key.schema == index.metadata.KeySchema, "key schema mismatch")

	// Defensive copy: the key may alias a buffer that changes after return.
	index.tree.Set(btreeItem{key: key.DeepCopy(), rid: rid})
	return nil
}

func (index *MemBTreeIndex) DeleteEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	common.Assert(key.schema == index.metadata.KeySchema, "key schema mismatch")
	index.tree.Delete(btreeItem{key: key, rid: rid})
	return nil
}

func (index *MemBTreeIndex) ScanKey(key Key, output []common.RecordID, txn *transaction.TransactionContext) ([]common.RecordID, error) {
	common.Assert(key.schema == index.metadata.KeySchema, "key schema mismatch")

	pivot := btreeItem{key: key, rid: common.RecordID{}}
	index.tree.Ascend(pivot, func(item btreeItem) bool {
		if !item.key.Equals(key) {
			return false
		}
		output = append(output, item.rid)
		return true
	})
	return output, nil
}
