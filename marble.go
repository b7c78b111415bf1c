// Package marble wires the storage engine together: disk manager, disk
// scheduler, buffer pool, catalog, table heaps, and indexes.
package marble

import (
	"os"
	"path/filepath"

	"github.com/marbledb/marble/catalog"
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/config"
	"github.com/marbledb/marble/execution"
	"github.com/marbledb/marble/indexing"
	"github.com/marbledb/marble/storage"
	"github.com/marbledb/marble/transaction"
)

// DataFileName is the single backing file all pages live in.
const DataFileName = "marble.db"

// MarbleDB is the top-level container for the engine.
type MarbleDB struct {
	Config             config.Config
	Catalog            *catalog.Catalog
	CatalogProvider    catalog.PersistenceProvider
	DiskManager        *storage.FileDiskManager
	Scheduler          *storage.DiskScheduler
	BufferPool         *storage.BufferPoolManager
	TableManager       *execution.TableManager
	IndexManager       *indexing.IndexManager
	TransactionManager *transaction.Manager
}

// Open starts the engine with the given configuration, creating the data
// directory and backing file on first use.
func Open(cfg config.Config) (*MarbleDB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	diskManager, err := storage.NewFileDiskManager(filepath.Join(cfg.DataDir, DataFileName))
	if err != nil {
		return nil, err
	}
	scheduler := storage.NewDiskScheduler(diskManager)
	bufferPool := storage.NewBufferPoolManager(cfg.PoolSize, scheduler, cfg.ReplacerK)
	// A reopened database must never hand out identifiers of pages already
	// on disk.
	bufferPool.RestoreAllocator(common.PageID(diskManager.NumPages()))

	provider := catalog.NewDiskCatalogManager(cfg.DataDir)
	cat, err := catalog.NewCatalog(provider)
	if err != nil {
		scheduler.Shutdown()
		_ = diskManager.Close()
		return nil, err
	}

	indexManager, err := indexing.NewIndexManager(cat, provider, bufferPool, cfg)
	if err != nil {
		scheduler.Shutdown()
		_ = diskManager.Close()
		return nil, err
	}

	db := &MarbleDB{
		Config:             cfg,
		Catalog:            cat,
		CatalogProvider:    provider,
		DiskManager:        diskManager,
		Scheduler:          scheduler,
		BufferPool:         bufferPool,
		TableManager:       execution.NewTableManager(cat, bufferPool, provider),
		IndexManager:       indexManager,
		TransactionManager: transaction.NewManager(),
	}
	if err := db.rebuildOrderedIndexes(); err != nil {
		scheduler.Shutdown()
		_ = diskManager.Close()
		return nil, err
	}
	return db, nil
}

// rebuildOrderedIndexes repopulates the in-memory btree indexes from their
// tables. The disk-resident hash indexes reattach through their header
// pages and need no rebuild.
func (db *MarbleDB) rebuildOrderedIndexes() error {
	for _, table := range db.Catalog.Tables {
		var ordered []indexing.Index
		for _, def := range table.Indexes {
			if def.Kind != catalog.IndexKindBTree {
				continue
			}
			if index, ok := db.IndexManager.GetIndex(def.Oid); ok {
				ordered = append(ordered, index)
			}
		}
		if len(ordered) == 0 || !table.FirstPageID.IsValid() {
			continue
		}

		heap, err := db.TableManager.GetTableHeap(table.Oid)
		if err != nil {
			return err
		}
		desc := heap.StorageSchema()
		rowBuffer := make([]byte, desc.BytesPerTuple())
		iter := heap.Iterator(nil, rowBuffer)
		for iter.Next() {
			tuple := storage.FromRawTuple(iter.CurrentTuple(), desc, iter.CurrentRID())
			for _, index := range ordered {
				md := index.Metadata()
				keyBuffer := make([]byte, md.KeySize())
				for i, col := range md.ProjectionList {
					md.KeySchema.SetValue(keyBuffer, i, tuple.GetValue(col))
				}
				if err := index.InsertEntry(md.AsKey(keyBuffer), iter.CurrentRID(), nil); err != nil {
					_ = iter.Close()
					return err
				}
			}
		}
		if err := iter.Error(); err != nil {
			_ = iter.Close()
			return err
		}
		if err := iter.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes all resident pages, stops the scheduler, and closes the
// backing file.
func (db *MarbleDB) Close() error {
	db.BufferPool.FlushAllPages()
	db.Scheduler.Shutdown()
	if err := db.DiskManager.Sync(); err != nil {
		_ = db.DiskManager.Close()
		return err
	}
	return db.DiskManager.Close()
}
