// Package catalog manages the database schema: tables, their columns, and
// the indexes attached to them.
//
// For simplicity the catalog is serialized as a single JSON blob. A
// production DBMS stores the catalog as ordinary database tables with the
// same ACID guarantees as user data; here every schema change rewrites the
// whole blob and the schema is reloaded on startup.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marbledb/marble/common"
)

// Column represents the basic unit of a table schema.
type Column struct {
	Name string      `json:"name"`
	Type common.Type `json:"type"`
}

// Index kinds understood by the index manager.
const (
	IndexKindHash  = "hash"
	IndexKindBTree = "btree"
)

// Index describes a physical access path used to speed up queries.
type Index struct {
	Oid      common.ObjectID `json:"oid"`
	TableOid common.ObjectID `json:"table_oid"`
	Name     string          `json:"name"`
	Kind     string          `json:"kind"` // IndexKindHash or IndexKindBTree
	// KeyColumns lists the indexed column names, in key order.
	KeyColumns []string `json:"key_columns"`
	// HeaderPageID anchors a disk-resident hash index; InvalidPageID for
	// in-memory kinds and for hash indexes not yet materialized.
	HeaderPageID common.PageID `json:"header_page_id"`
}

// Table groups columns and their associated indexes under a unique ObjectID.
// FirstPageID anchors the table's heap chain; InvalidPageID until the heap
// allocates its first page.
type Table struct {
	Oid         common.ObjectID `json:"oid"`
	Name        string          `json:"name"`
	Columns     []Column        `json:"columns"`
	Indexes     []Index         `json:"indexes"`
	FirstPageID common.PageID   `json:"first_page_id"`
}

func (t *Table) String() string {
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// ColumnTypes returns the table's schema as a type list.
func (t *Table) ColumnTypes() []common.Type {
	types := make([]common.Type, len(t.Columns))
	for i, col := range t.Columns {
		types[i] = col.Type
	}
	return types
}

// PersistenceProvider abstracts how the catalog is saved and loaded.
type PersistenceProvider interface {
	LoadCatalogState() (jsonData string, err error)
	SaveCatalogState(jsonData string) error
}

type catalogState struct {
	NextID uint32   `json:"next_id"`
	Tables []*Table `json:"tables"`
}

// Catalog holds the schema and provides fast lookups by name.
type Catalog struct {
	catalogState

	tableMap   map[string]*Table
	tableByOid map[common.ObjectID]*Table
	indexByOid map[common.ObjectID]*Index
}

func (c *Catalog) String() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

func (c *Catalog) toJSON() (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Catalog) fromJSON(jsonData string) error {
	if err := json.Unmarshal([]byte(jsonData), c); err != nil {
		return err
	}
	for _, t := range c.Tables {
		c.indexTable(t)
	}
	return nil
}

func (c *Catalog) indexTable(t *Table) {
	c.tableMap[t.Name] = t
	c.tableByOid[t.Oid] = t
	for i := range t.Indexes {
		idx := &t.Indexes[i]
		c.indexByOid[idx.Oid] = idx
	}
}

// NewCatalog initializes a catalog, loading existing state from the
// provider; with no saved state it starts empty.
func NewCatalog(provider PersistenceProvider) (*Catalog, error) {
	result := &Catalog{
		catalogState: catalogState{
			NextID: 0,
			Tables: make([]*Table, 0),
		},
		tableMap:   make(map[string]*Table),
		tableByOid: make(map[common.ObjectID]*Table),
		indexByOid: make(map[common.ObjectID]*Index),
	}

	jsonData, err := provider.LoadCatalogState()
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if err = result.fromJSON(jsonData); err != nil {
		// Parsing errors usually indicate corruption and are fatal.
		return nil, fmt.Errorf("failed to parse catalog state: %v", err)
	}
	return result, nil
}

// AddTable registers a new table, assigning it a unique ObjectID and
// persisting the updated state.
func (c *Catalog) AddTable(tableName string, columns []Column, provider PersistenceProvider) (*Table, error) {
	if _, exists := c.tableMap[tableName]; exists {
		return nil, common.EngineError{
			Code:      common.DuplicateObjectError,
			ErrString: fmt.Sprintf("table '%s' already exists", tableName),
		}
	}

	// oid 0 is reserved for INVALID
	c.NextID++
	t := &Table{
		Oid:         common.ObjectID(c.NextID),
		Name:        tableName,
		Columns:     columns,
		Indexes:     make([]Index, 0),
		FirstPageID: common.InvalidPageID,
	}

	c.Tables = append(c.Tables, t)
	c.indexTable(t)

	jsonData, err := c.toJSON()
	if err != nil {
		return nil, err
	}
	return t, provider.SaveCatalogState(jsonData)
}

// GetTableMetadata fetches the schema for a table name.
func (c *Catalog) GetTableMetadata(tableName string) (*Table, error) {
	table, exists := c.tableMap[tableName]
	if !exists {
		return nil, common.EngineError{
			Code:      common.NoSuchObjectError,
			ErrString: fmt.Sprintf("table '%s' does not exist", tableName),
		}
	}
	return table, nil
}

// GetTableByOid fetches a table by ObjectID.
func (c *Catalog) GetTableByOid(oid common.ObjectID) (*Table, error) {
	table, exists := c.tableByOid[oid]
	if !exists {
		return nil, common.EngineError{
			Code:      common.NoSuchObjectError,
			ErrString: fmt.Sprintf("table oid %d does not exist", oid),
		}
	}
	return table, nil
}

// GetIndexByOid fetches an index definition by ObjectID.
func (c *Catalog) GetIndexByOid(oid common.ObjectID) (*Index, error) {
	idx, exists := c.indexByOid[oid]
	if !exists {
		return nil, common.EngineError{
			Code:      common.NoSuchObjectError,
			ErrString: fmt.Sprintf("index oid %d does not exist", oid),
		}
	}
	return idx, nil
}

// SetFirstPageID anchors a table's heap chain and persists the state.
func (c *Catalog) SetFirstPageID(oid common.ObjectID, pid common.PageID, provider PersistenceProvider) error {
	table, err := c.GetTableByOid(oid)
	if err != nil {
		return err
	}
	table.FirstPageID = pid
	jsonData, err := c.toJSON()
	if err != nil {
		return err
	}
	return provider.SaveCatalogState(jsonData)
}

// AddIndex attaches a new index definition to a table.
func (c *Catalog) AddIndex(indexName, tableName, kind string, columnNames []string, provider PersistenceProvider) (*Index, error) {
	table, err := c.GetTableMetadata(tableName)
	if err != nil {
		return nil, err
	}

	for _, idx := range table.Indexes {
		if idx.Name == indexName {
			return nil, common.EngineError{
				Code:      common.DuplicateObjectError,
				ErrString: fmt.Sprintf("index '%s' already exists on table '%s'", indexName, tableName),
			}
		}
	}

	for _, colName := range columnNames {
		if table.ColumnIndex(colName) < 0 {
			return nil, common.EngineError{
				Code:      common.NoSuchObjectError,
				ErrString: fmt.Sprintf("column '%s' does not exist in table '%s'", colName, tableName),
			}
		}
	}

	c.NextID++
	idx := Index{
		Oid:          common.ObjectID(c.NextID),
		TableOid:     table.Oid,
		Name:         indexName,
		Kind:         kind,
		KeyColumns:   columnNames,
		HeaderPageID: common.InvalidPageID,
	}
	table.Indexes = append(table.Indexes, idx)
	// The append may have moved the slice; refresh every pointer into it.
	for i := range table.Indexes {
		c.indexByOid[table.Indexes[i].Oid] = &table.Indexes[i]
	}

	jsonData, err := c.toJSON()
	if err != nil {
		return nil, err
	}
	return &table.Indexes[len(table.Indexes)-1], provider.SaveCatalogState(jsonData)
}

// SetIndexHeaderPageID records where a disk-resident index anchored itself
// and persists the state.
func (c *Catalog) SetIndexHeaderPageID(oid common.ObjectID, pid common.PageID, provider PersistenceProvider) error {
	idx, err := c.GetIndexByOid(oid)
	if err != nil {
		return err
	}
	idx.HeaderPageID = pid
	jsonData, err := c.toJSON()
	if err != nil {
		return err
	}
	return provider.SaveCatalogState(jsonData)
}

const CatalogFileName = "catalog.json"

// DiskCatalogManager persists the catalog as a JSON file in rootPath.
type DiskCatalogManager struct {
	rootPath string
}

func NewDiskCatalogManager(rootPath string) *DiskCatalogManager {
	return &DiskCatalogManager{rootPath: rootPath}
}

// LoadCatalogState implements PersistenceProvider.
func (dcm *DiskCatalogManager) LoadCatalogState() (string, error) {
	path := filepath.Join(dcm.rootPath, CatalogFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err // callers handle os.ErrNotExist
	}
	return string(content), nil
}

// SaveCatalogState implements PersistenceProvider via an atomic rename.
func (dcm *DiskCatalogManager) SaveCatalogState(jsonData string) error {
	tmpPath := filepath.Join(dcm.rootPath, CatalogFileName+".tmp")
	finalPath := filepath.Join(dcm.rootPath, CatalogFileName)

	if err := os.WriteFile(tmpPath, []byte(jsonData), 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, finalPath)
}
