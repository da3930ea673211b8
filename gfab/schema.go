package gfab

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql. modernc.org/sqlite is
	// a pure-Go, cgo-free SQLite implementation backing every .gfab file as
	// a transactional relational store.
	_ "modernc.org/sqlite"
)

// applicationID is the fixed SQLite application_id that identifies a file
// as a .gfab container: the big-endian bytes of "gfab".
const applicationID = 0x67616266

// schemaVersion is bumped whenever the table/index set changes in a way
// that would break an older reader.
const schemaVersion = 1

// renderSchema produces the DDL statements that define a .gfab, with
// prefix substituted in front of every table/index name. prefix is always
// one of a small, compile-time-known set ("", "input.", "output.") used to
// address the primary connection or an ATTACHed database during a
// subgraph extraction; it is never derived from untrusted input.
func renderSchema(prefix string) []string {
	t := func(name string) string { return prefix + name }
	return []string{
		fmt.Sprintf(`CREATE TABLE %s (
			tags_json TEXT
		)`, t("header")),

		fmt.Sprintf(`CREATE TABLE %s (
			segment_id INTEGER PRIMARY KEY,
			name TEXT,
			sequence_length INTEGER,
			tags_json TEXT
		)`, t("segment")),

		fmt.Sprintf(`CREATE TABLE %s (
			segment_id INTEGER PRIMARY KEY REFERENCES %s(segment_id),
			twobit BLOB NOT NULL
		)`, t("segment_sequence"), t("segment")),

		fmt.Sprintf(`CREATE TABLE %s (
			from_segment INTEGER NOT NULL REFERENCES %s(segment_id),
			from_reverse INTEGER NOT NULL,
			to_segment INTEGER NOT NULL REFERENCES %s(segment_id),
			to_reverse INTEGER NOT NULL,
			cigar TEXT,
			tags_json TEXT
		)`, t("link"), t("segment"), t("segment")),

		fmt.Sprintf(`CREATE TABLE %s (
			container_segment INTEGER NOT NULL REFERENCES %s(segment_id),
			container_reverse INTEGER NOT NULL,
			contained_segment INTEGER NOT NULL REFERENCES %s(segment_id),
			contained_reverse INTEGER NOT NULL,
			position INTEGER NOT NULL,
			cigar TEXT,
			tags_json TEXT
		)`, t("containment"), t("segment"), t("segment")),

		fmt.Sprintf(`CREATE TABLE %s (
			path_id INTEGER PRIMARY KEY,
			name TEXT,
			tags_json TEXT
		)`, t("path")),

		fmt.Sprintf(`CREATE TABLE %s (
			path_id INTEGER NOT NULL REFERENCES %s(path_id),
			ordinal INTEGER NOT NULL,
			segment_id INTEGER NOT NULL REFERENCES %s(segment_id),
			reverse INTEGER NOT NULL,
			cigar_vs_previous TEXT,
			PRIMARY KEY (path_id, ordinal)
		)`, t("path_element"), t("path"), t("segment")),

		fmt.Sprintf(`CREATE TABLE %s (
			walk_id INTEGER PRIMARY KEY,
			sample TEXT,
			hap_idx INTEGER,
			refseq_name TEXT,
			refseq_begin INTEGER,
			refseq_end INTEGER,
			min_segment_id INTEGER,
			max_segment_id INTEGER,
			steps_json TEXT NOT NULL,
			tags_json TEXT
		)`, t("walk")),

		fmt.Sprintf(`CREATE TABLE %s (
			segment_id INTEGER NOT NULL REFERENCES %s(segment_id),
			refseq_name TEXT NOT NULL,
			refseq_begin INTEGER NOT NULL,
			refseq_end INTEGER NOT NULL,
			cigar TEXT,
			tags_json TEXT
		)`, t("mapping"), t("segment")),

		fmt.Sprintf(`CREATE TABLE %s (
			segment_id INTEGER PRIMARY KEY,
			component_id INTEGER NOT NULL,
			is_cutpoint INTEGER NOT NULL
		)`, t("connectivity")),

		fmt.Sprintf(`CREATE TABLE %s (
			segment_id INTEGER NOT NULL,
			bicomponent_min INTEGER NOT NULL,
			bicomponent_max INTEGER NOT NULL
		)`, t("biconnectivity")),

		fmt.Sprintf(`CREATE TABLE %s (
			walk_id INTEGER NOT NULL REFERENCES %s(walk_id),
			component_id INTEGER NOT NULL
		)`, t("walk_connectivity"), t("walk")),

		fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING rtree(
			id,
			refseq_min, refseq_max,
			+refseq_name TEXT,
			+begin INTEGER,
			+end INTEGER,
			+segment_id INTEGER
		)`, t("mapping_rtree")),

		fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING rtree(
			id,
			refseq_min, refseq_max,
			+refseq_name TEXT,
			+begin INTEGER,
			+end INTEGER,
			+walk_id INTEGER
		)`, t("walk_rtree")),
	}
}

// renderIndexes produces the secondary indexes created after bulk load
// completes, once the final row counts are known.
func renderIndexes(prefix string) []string {
	t := func(name string) string { return prefix + name }
	return []string{
		fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s(name) WHERE name IS NOT NULL`, t("segment_name_idx"), t("segment")),
		fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s(name) WHERE name IS NOT NULL`, t("path_name_idx"), t("path")),
		fmt.Sprintf(`CREATE INDEX %s ON %s(from_segment)`, t("link_from_idx"), t("link")),
		fmt.Sprintf(`CREATE INDEX %s ON %s(to_segment)`, t("link_to_idx"), t("link")),
		fmt.Sprintf(`CREATE INDEX %s ON %s(container_segment)`, t("containment_container_idx"), t("containment")),
		fmt.Sprintf(`CREATE INDEX %s ON %s(contained_segment)`, t("containment_contained_idx"), t("containment")),
		fmt.Sprintf(`CREATE INDEX %s ON %s(segment_id)`, t("path_element_segment_idx"), t("path_element")),
		fmt.Sprintf(`CREATE INDEX %s ON %s(sample, refseq_name)`, t("walk_sample_idx"), t("walk")),
		fmt.Sprintf(`CREATE INDEX %s ON %s(segment_id)`, t("mapping_segment_idx"), t("mapping")),
	}
}

// bootstrapSchema creates a fresh .gfab's tables and marks it with the
// fixed application identifier. It does not create secondary indexes --
// callers append those after the bulk load transaction commits.
func bootstrapSchema(db *sql.DB) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
		return Wrap(KindIO, err, "setting application_id")
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return Wrap(KindIO, err, "setting user_version")
	}
	for _, stmt := range renderSchema("") {
		if _, err := db.Exec(stmt); err != nil {
			return Wrap(KindIO, err, "creating schema: %s", stmt)
		}
	}
	return nil
}

// createSecondaryIndexes creates the indexes listed by renderIndexes.
func createSecondaryIndexes(db *sql.DB) error {
	for _, stmt := range renderIndexes("") {
		if _, err := db.Exec(stmt); err != nil {
			return Wrap(KindIO, err, "creating index: %s", stmt)
		}
	}
	return nil
}

// validateApplicationID checks that db is a .gfab: a SQLite file marked
// with the fixed application_id. It returns a KindIncompatibleFile error
// otherwise.
func validateApplicationID(db *sql.DB) error {
	var id int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&id); err != nil {
		return Wrap(KindIO, err, "reading application_id")
	}
	if id != applicationID {
		return Errorf(KindIncompatibleFile, "not a .gfab file (application_id=%#x, want %#x)", id, applicationID)
	}
	return nil
}
