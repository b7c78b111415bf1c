package indexing

import (
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
	"github.com/marbledb/marble/transaction"
)

// IndexMetadata describes the structure of an index and how it relates to
// the base table.
type IndexMetadata struct {
	// Oid is the index's catalog identifier.
	Oid common.ObjectID
	// KeySchema describes the types and order of the key fields.
	KeySchema *storage.RawTupleDesc
	// ProjectionList maps key field i to base-table column ProjectionList[i].
	ProjectionList []int
}

// KeySize returns the fixed size of the index key in bytes.
func (md *IndexMetadata) KeySize() int {
	return md.KeySchema.BytesPerTuple()
}

// AsKey builds a key view over a raw tuple already truncated or formatted to
// the key schema.
func (md *IndexMetadata) AsKey(rawTuple storage.RawTuple) Key {
	return Key{RawTuple: rawTuple[:md.KeySchema.BytesPerTuple()], schema: md.KeySchema}
}

// Index maps a search key (a projected subset of tuple fields) to the
// RecordIDs of matching rows.
type Index interface {
	// Metadata returns the index's schema and base-table mapping.
	Metadata() *IndexMetadata

	// InsertEntry adds a mapping from key to rid. Unique indexes reject
	// duplicate keys with an error.
	InsertEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error

	// DeleteEntry removes the mapping between key and rid.
	DeleteEntry(key Key, rid common.RecordID, txn *transaction.TransactionContext) error

	// ScanKey performs a point lookup, appending matching RecordIDs to
	// output (which may be reused across calls to avoid allocation).
	ScanKey(key Key, output []common.RecordID, txn *transaction.TransactionContext) ([]common.RecordID, error)
}
