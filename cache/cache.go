// Package cache is a content-addressed disk store for compiled
// CodeUnits, backed by modernc.org/sqlite (pure Go, no cgo). Spec §3.2
// leaves the CodeUnit on-disk form unspecified but explicitly permits
// serialization; this package exercises that permission so the CLI's
// `demo`/`repl` commands (cmd/plvm) can skip recompiling source text
// that hasn't changed since the last run.
package cache

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/go-perl/plvm/compiler"
)

// Store is a single sqlite-backed CodeUnit cache.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the sqlite database at path and ensures the
// cache table exists. path may be ":memory:" for a process-local cache.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS code_units (
	key        TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	source_name TEXT NOT NULL,
	created_at TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Key hashes source text together with the pragma snapshot that would
// govern its compilation, so a cache hit only ever applies to a
// byte-identical recompilation under byte-identical pragmas.
func Key(source string, pragmas compiler.PragmaSnapshot) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	fmt.Fprintf(h, "strictvars=%v strictrefs=%v package=%s", pragmas.StrictVars, pragmas.StrictRefs, pragmas.Package)
	for k, v := range pragmas.Features {
		fmt.Fprintf(h, " feature:%s=%v", k, v)
	}
	for k, v := range pragmas.Warnings {
		fmt.Fprintf(h, " warning:%s=%v", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached CodeUnit for key, or ok=false on a miss.
func (s *Store) Lookup(key string) (unit *compiler.CodeUnit, ok bool, err error) {
	var blob []byte
	row := s.db.QueryRow(`SELECT blob FROM code_units WHERE key = ?`, key)
	switch err := row.Scan(&blob); err {
	case sql.ErrNoRows:
		return nil, false, nil
	case nil:
		unit, decErr := decodeUnit(blob)
		if decErr != nil {
			return nil, false, fmt.Errorf("cache: decode %s: %w", key, decErr)
		}
		return unit, true, nil
	default:
		return nil, false, fmt.Errorf("cache: lookup %s: %w", key, err)
	}
}

// Store persists unit under key, overwriting any prior entry (a
// recompilation of identical source+pragmas always yields a CodeUnit
// that is semantically interchangeable with what is already cached).
func (s *Store) Store(key string, unit *compiler.CodeUnit) error {
	blob, err := encodeUnit(unit)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO code_units(key, blob, source_name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, created_at = excluded.created_at`,
		key, blob, unit.SourceName, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cache: store %s: %w", key, err)
	}
	return nil
}

func encodeUnit(u *compiler.CodeUnit) ([]byte, error) {
	w, err := toWireUnit(u)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeUnit(blob []byte) (*compiler.CodeUnit, error) {
	var w wireUnit
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&w); err != nil {
		return nil, err
	}
	return w.toCodeUnit(), nil
}
