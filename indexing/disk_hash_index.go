package indexing

import (
	"fmt"

	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/hashtable"
	"github.com/marbledb/marble/storage"
	"github.com/marbledb/marble/transaction"
)

// DiskHashIndex is a unique-key index over the disk-resident extendible
// hash table. The key's physical bytes are the hash table's key; the value
// is the row's RecordID.
type DiskHashIndex struct {
	table    *hashtable.ExtendibleHashTable
	metadata *IndexMetadata
}

// NewDiskHashIndex creates the index and its backing hash table.
func NewDiskHashIndex(name string, oid common.ObjectID, bpm *storage.BufferPoolManager,
	schema *storage.RawTupleDesc, projectionList []int,
	headerMaxDepth, directoryMaxDepth, bucketMaxSize uint32) (*DiskHashIndex, error) {
	table := hashtable.NewExtendibleHashTable(name, bpm, schema.BytesPerTuple(), nil,
		headerMaxDepth, directoryMaxDepth, bucketMaxSize)
	if table == nil {
		return nil, common.EngineError{
			Code:      common.CapacityExhaustedError,
			ErrString: fmt.Sprintf("no frame available to create hash index '%s'", name),
		}
	}
	return &DiskHashIndex{
		table: table,
		metadata: &IndexMetadata{
			Oid:            oid,
			KeySchema:      schema,
			ProjectionList: projectionList,
		},
	}, nil
}

// OpenDiskHashIndex attaches to an index whose header page already exists.
func OpenDiskHashIndex(name string, oid common.ObjectID, bpm *storage.BufferPoolManager,
	schema *storage.RawTupleDesc, projectionList []int, headerPageID common.PageID,
	directoryMaxDepth, bucketMaxSize uint32) (*DiskHashIndex, error) {
	table := hashtable.OpenExtendibleHashTable(name, bpm, schema.BytesPerTuple(), nil,
		headerPageID, directoryMaxDepth, bucketMaxSize)
	if table == nil {
		return nil, common.EngineError{
			Code:      common.CapacityExhaustedError,
			ErrString: fmt.Sprintf("no frame available to open hash index '%s'", name),
		}
	}
	return &DiskHashIndex{
		table: table,
		metadata: &IndexMetadata{
			Oid:            oid,
			KeySchema:      schema,
			ProjectionList: projectionList,
		},
	}, nil
}

func (index *DiskHashIndex) Metadata() *IndexMetadata {
	return index.metadata
}

// HeaderPageID returns the page anchoring the backing hash table.
func (index *DiskHashIndex) HeaderPageID() common.PageID {
	return index.table.HeaderPageID()
}

// InsertEntry adds key -> rid. The index is unique: inserting an existing
// key fails with DuplicateObjectError.
func (index *DiskHashIndex) InsertEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	common.Assert(key.schema == index.metadata.KeySchema, "key schema mismatch")
	if index.table.Insert(key.RawTuple, rid) {
		return nil
	}
	if _, exists := index.table.GetValue(key.RawTuple); exists {
		return common.EngineError{
			Code:      common.DuplicateObjectError,
			ErrString: fmt.Sprintf("duplicate key in unique index '%s'", index.table.Name()),
		}
	}
	return common.EngineError{
		Code:      common.CapacityExhaustedError,
		ErrString: fmt.Sprintf("hash index '%s' is full", index.table.Name()),
	}
}

// DeleteEntry removes the mapping for key. Deleting an absent key is a
// no-op.
func (index *DiskHashIndex) DeleteEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error {
	common.Assert(key.schema == index.metadata.KeySchema, "key schema mismatch")
	index.table.Remove(key.RawTuple)
	return nil
}

// ScanKey appends the RecordID stored under key, if any.
func (index *DiskHashIndex) ScanKey(key Key, output []common.RecordID, txn *transaction.TransactionContext) ([]common.RecordID, error) {
	common.Assert(key.schema == index.metadata.KeySchema, "key schema mismatch")
	if rid, ok := index.table.GetValue(key.RawTuple); ok {
		output = append(output, rid)
	}
	return output, nil
}
