package gfab

import (
	"database/sql"

	"blainsmith.com/go/seahash"
)

// nameIndexSpillThreshold is the number of entries an in-memory nameIndex
// holds before it spills additions to a backing SQLite temp table. Large
// pangenomes can have many millions of segment/path names; this bounds
// the loader's resident memory.
const nameIndexSpillThreshold = 2_000_000

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx. nameIndex is always
// handed the same *sql.Tx the loader is inserting rows through: SQLite temp
// tables are scoped to a single connection, so creating one against a
// different pool connection than the load transaction would make it
// invisible to that transaction.
type sqlExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// nameIndex maps segment or path names to the dense integer ids the loader
// assigns them. Entries hash with seahash and spill to a temp table past a
// configured cardinality so the loader doesn't OOM on name-heavy inputs.
type nameIndex struct {
	exec   sqlExecutor
	table  string
	mem    map[uint64][]nameIndexEntry
	memLen int
	spilt  bool

	insertStmt *sql.Stmt
	lookupStmt *sql.Stmt
}

type nameIndexEntry struct {
	name string
	id   int64
}

func newNameIndex(exec sqlExecutor, table string) (*nameIndex, error) {
	if _, err := exec.Exec(`CREATE TEMP TABLE ` + table + ` (hash INTEGER NOT NULL, name TEXT NOT NULL, id INTEGER NOT NULL)`); err != nil {
		return nil, Wrap(KindIO, err, "creating temp name index table %s", table)
	}
	if _, err := exec.Exec(`CREATE INDEX temp.` + table + `_hash_idx ON ` + table + `(hash)`); err != nil {
		return nil, Wrap(KindIO, err, "indexing temp name index table %s", table)
	}
	insertStmt, err := exec.Prepare(`INSERT INTO ` + table + `(hash, name, id) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, Wrap(KindIO, err, "preparing insert for %s", table)
	}
	lookupStmt, err := exec.Prepare(`SELECT id FROM ` + table + ` WHERE hash = ? AND name = ?`)
	if err != nil {
		return nil, Wrap(KindIO, err, "preparing lookup for %s", table)
	}
	return &nameIndex{
		exec: exec, table: table, mem: make(map[uint64][]nameIndexEntry),
		insertStmt: insertStmt, lookupStmt: lookupStmt,
	}, nil
}

func (idx *nameIndex) hash(name string) uint64 {
	return seahash.Sum64([]byte(name))
}

// Put records name -> id. The caller must ensure name is not already
// present (the loader enforces DUPLICATE_SEGMENT before calling Put).
func (idx *nameIndex) Put(name string, id int64) error {
	h := idx.hash(name)
	if !idx.spilt {
		idx.mem[h] = append(idx.mem[h], nameIndexEntry{name: name, id: id})
		idx.memLen++
		if idx.memLen > nameIndexSpillThreshold {
			if err := idx.spillToTable(); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := idx.insertStmt.Exec(int64(h), name, id)
	if err != nil {
		return Wrap(KindIO, err, "spilling name index entry %q", name)
	}
	return nil
}

func (idx *nameIndex) spillToTable() error {
	for h, entries := range idx.mem {
		for _, e := range entries {
			if _, err := idx.insertStmt.Exec(int64(h), e.name, e.id); err != nil {
				return Wrap(KindIO, err, "spilling name index")
			}
		}
	}
	idx.mem = nil
	idx.spilt = true
	return nil
}

// Get returns the id for name and whether it was found.
func (idx *nameIndex) Get(name string) (int64, bool, error) {
	h := idx.hash(name)
	if !idx.spilt {
		for _, e := range idx.mem[h] {
			if e.name == name {
				return e.id, true, nil
			}
		}
		return 0, false, nil
	}
	var id int64
	err := idx.lookupStmt.QueryRow(int64(h), name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, Wrap(KindIO, err, "looking up name index entry %q", name)
	}
	return id, true, nil
}

// Close releases the index's prepared statements and drops its temp table.
// It must be called before the transaction it was built on commits or
// rolls back.
func (idx *nameIndex) Close() error {
	idx.insertStmt.Close()
	idx.lookupStmt.Close()
	_, err := idx.exec.Exec(`DROP TABLE IF EXISTS ` + idx.table)
	if err != nil {
		return Wrap(KindIO, err, "dropping name index table %s", idx.table)
	}
	return nil
}
