// Package gfab implements the .gfab file format: a compact, indexed, random
// access binary representation of a GFA1 assembly graph backed by SQLite.
// It provides the streaming GFA1 loader, the derived connectivity builder,
// the PAF mapping importer, the subgraph query resolver and selector, and
// the GFA1 text emitter that together make up gfabase.
package gfab
