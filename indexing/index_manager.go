package indexing

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/marbledb/marble/catalog"
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/config"
	"github.com/marbledb/marble/storage"
)

// IndexManager instantiates and registers the physical index for every
// index definition in the catalog.
type IndexManager struct {
	registry *xsync.MapOf[common.ObjectID, Index]
	byTable  *xsync.MapOf[common.ObjectID, []Index]
}

// NewIndexManager builds the indexes declared in the catalog. Hash indexes
// get a disk-resident extendible hash table, reattached through the header
// page recorded in the catalog when one exists; btree indexes get an
// in-memory ordered tree, rebuilt from the table by the engine at open.
func NewIndexManager(cat *catalog.Catalog, provider catalog.PersistenceProvider, bpm *storage.BufferPoolManager, cfg config.Config) (*IndexManager, error) {
	im := &IndexManager{
		registry: xsync.NewMapOf[common.ObjectID, Index](),
		byTable:  xsync.NewMapOf[common.ObjectID, []Index](),
	}
	for _, table := range cat.Tables {
		for i := range table.Indexes {
			if err := im.buildIndex(cat, provider, table, &table.Indexes[i], bpm, cfg); err != nil {
				return nil, err
			}
		}
	}
	return im, nil
}

func (im *IndexManager) buildIndex(cat *catalog.Catalog, provider catalog.PersistenceProvider,
	table *catalog.Table, def *catalog.Index, bpm *storage.BufferPoolManager, cfg config.Config) error {
	keyTypes := make([]common.Type, len(def.KeyColumns))
	projection := make([]int, len(def.KeyColumns))
	for i, colName := range def.KeyColumns {
		pos := table.ColumnIndex(colName)
		common.Assert(pos >= 0, "index '%s' references unknown column '%s'", def.Name, colName)
		keyTypes[i] = table.Columns[pos].Type
		projection[i] = pos
	}
	schema := storage.NewRawTupleDesc(keyTypes)

	var (
		index Index
		err   error
	)
	switch def.Kind {
	case catalog.IndexKindHash:
		if def.HeaderPageID.IsValid() {
			index, err = OpenDiskHashIndex(def.Name, def.Oid, bpm, schema, projection,
				def.HeaderPageID, cfg.DirectoryMaxDepth, cfg.BucketMaxSize)
			if err != nil {
				return err
			}
		} else {
			hashIndex, err := NewDiskHashIndex(def.Name, def.Oid, bpm, schema, projection,
				cfg.HeaderMaxDepth, cfg.DirectoryMaxDepth, cfg.BucketMaxSize)
			if err != nil {
				return err
			}
			if err := cat.SetIndexHeaderPageID(def.Oid, hashIndex.HeaderPageID(), provider); err != nil {
				return err
			}
			index = hashIndex
		}
	case catalog.IndexKindBTree:
		index = NewMemBTreeIndex(def.Oid, schema, projection)
	default:
		return fmt.Errorf("unknown index kind '%s' for index '%s'", def.Kind, def.Name)
	}

	im.Register(def.TableOid, index)
	return nil
}

// Register adds an index to the registry.
func (im *IndexManager) Register(tableOid common.ObjectID, index Index) {
	im.registry.Store(index.Metadata().Oid, index)
	existing, _ := im.byTable.Load(tableOid)
	im.byTable.Store(tableOid, append(existing, index))
}

// GetIndex returns the index with the given ObjectID.
func (im *IndexManager) GetIndex(oid common.ObjectID) (Index, bool) {
	return im.registry.Load(oid)
}

// IndexesForTable returns every index on the given table.
func (im *IndexManager) IndexesForTable(tableOid common.ObjectID) []Index {
	indexes, _ := im.byTable.Load(tableOid)
	return indexes
}
