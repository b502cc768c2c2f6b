// Package catalog persists schema metadata -- table and index names, their
// B-tree root pages, and their column lists -- in a bbolt sidecar next to
// the database file, so a reopened database can find its trees again.
// Schema rows are encoded with the record package's serial-type format, the
// same codec every other row in the system uses.
package catalog

import (
	"errors"

	"go.etcd.io/bbolt"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/record"
	"github.com/leftmike/frankensqlite/sql"
)

var (
	schemaBucket = []byte{'s', 'c', 'h', 'e', 'm', 'a'}
)

// Object is one schema entry: a table or index, where its tree lives, and
// its column definitions (whose declared types fix the affinity applied to
// values on store).
type Object struct {
	Name    string
	Root    uint32
	IsTable bool
	Columns []sql.ColumnDef
}

// Catalog is an open schema store.
type Catalog struct {
	db *bbolt.DB
}

// Open opens, creating if necessary, the catalog file at path.
func Open(path string) (*Catalog, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, dberr.Wrap(dberr.IoError, err, "catalog: open %s", path)
	}

	tx, err := db.Begin(true)
	if err != nil {
		db.Close()
		return nil, err
	}
	if tx.Bucket(schemaBucket) == nil {
		_, err = tx.CreateBucket(schemaBucket)
		if err != nil {
			tx.Rollback()
			db.Close()
			return nil, err
		}
		err = tx.Commit()
		if err != nil {
			db.Close()
			return nil, err
		}
	} else {
		tx.Rollback()
	}

	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func encodeObject(obj Object) []byte {
	isTable := int64(0)
	if obj.IsTable {
		isTable = 1
	}
	vals := make([]sql.Value, 0, 2+3*len(obj.Columns))
	vals = append(vals, sql.Int64Value(obj.Root), sql.Int64Value(isTable))
	for _, col := range obj.Columns {
		notNull := int64(0)
		if col.NotNull {
			notNull = 1
		}
		vals = append(vals,
			sql.StringValue(col.Name), sql.StringValue(col.Type), sql.Int64Value(notNull))
	}
	return record.MakeRecord(vals)
}

func decodeObject(name string, buf []byte) (Object, error) {
	vals, err := record.DecodeRecord(buf)
	if err != nil {
		return Object{}, err
	}
	if len(vals) < 2 {
		return Object{}, dberr.New(dberr.Corrupt, "catalog: short schema row for %s", name)
	}
	root, ok := vals[0].(sql.Int64Value)
	if !ok {
		return Object{}, dberr.New(dberr.Corrupt, "catalog: bad root for %s", name)
	}
	isTable, ok := vals[1].(sql.Int64Value)
	if !ok {
		return Object{}, dberr.New(dberr.Corrupt, "catalog: bad kind for %s", name)
	}
	obj := Object{Name: name, Root: uint32(root), IsTable: isTable != 0}
	cols := vals[2:]
	if len(cols)%3 != 0 {
		return Object{}, dberr.New(dberr.Corrupt, "catalog: ragged column row for %s", name)
	}
	for i := 0; i < len(cols); i += 3 {
		cname, ok1 := cols[i].(sql.StringValue)
		ctype, ok2 := cols[i+1].(sql.StringValue)
		notNull, ok3 := cols[i+2].(sql.Int64Value)
		if !ok1 || !ok2 || !ok3 {
			return Object{}, dberr.New(dberr.Corrupt, "catalog: bad column for %s", name)
		}
		obj.Columns = append(obj.Columns, sql.ColumnDef{
			Name:    string(cname),
			Type:    string(ctype),
			NotNull: notNull != 0,
		})
	}
	return obj, nil
}

// Put stores or replaces obj's schema row.
func (c *Catalog) Put(obj Object) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(schemaBucket)
		if bkt == nil {
			return errors.New("catalog: missing schema bucket")
		}
		return bkt.Put([]byte(obj.Name), encodeObject(obj))
	})
}

// Get looks up name's schema row, reporting whether it exists.
func (c *Catalog) Get(name string) (Object, bool, error) {
	var obj Object
	var found bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(schemaBucket)
		if bkt == nil {
			return errors.New("catalog: missing schema bucket")
		}
		buf := bkt.Get([]byte(name))
		if buf == nil {
			return nil
		}
		var err error
		obj, err = decodeObject(name, buf)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return obj, found, err
}

// Delete removes name's schema row; deleting an absent name is not an
// error, matching DROP TABLE IF EXISTS semantics at this layer.
func (c *Catalog) Delete(name string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(schemaBucket)
		if bkt == nil {
			return errors.New("catalog: missing schema bucket")
		}
		return bkt.Delete([]byte(name))
	})
}

// List returns every schema object in name order.
func (c *Catalog) List() ([]Object, error) {
	var objs []Object
	err := c.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(schemaBucket)
		if bkt == nil {
			return errors.New("catalog: missing schema bucket")
		}
		cr := bkt.Cursor()
		for k, v := cr.First(); k != nil; k, v = cr.Next() {
			obj, err := decodeObject(string(k), v)
			if err != nil {
				return err
			}
			objs = append(objs, obj)
		}
		return nil
	})
	return objs, err
}
