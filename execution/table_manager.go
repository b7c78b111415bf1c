package execution

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/marbledb/marble/catalog"
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
)

// TableManager caches one TableHeap per table so every executor touching a
// table shares its chain bookkeeping.
type TableManager struct {
	cat      *catalog.Catalog
	bpm      *storage.BufferPoolManager
	provider catalog.PersistenceProvider
	heaps    *xsync.MapOf[common.ObjectID, *TableHeap]
}

func NewTableManager(cat *catalog.Catalog, bpm *storage.BufferPoolManager, provider catalog.PersistenceProvider) *TableManager {
	return &TableManager{
		cat:      cat,
		bpm:      bpm,
		provider: provider,
		heaps:    xsync.NewMapOf[common.ObjectID, *TableHeap](),
	}
}

// GetTableHeap returns the heap for the given table, opening it on first
// use.
func (tm *TableManager) GetTableHeap(oid common.ObjectID) (*TableHeap, error) {
	if heap, ok := tm.heaps.Load(oid); ok {
		return heap, nil
	}
	table, err := tm.cat.GetTableByOid(oid)
	if err != nil {
		return nil, err
	}
	heap, err := NewTableHeap(table, tm.bpm, tm.cat, tm.provider)
	if err != nil {
		return nil, err
	}
	actual, _ := tm.heaps.LoadOrStore(oid, heap)
	return actual, nil
}
