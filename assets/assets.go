/*
Package assets stores the payloads received through asset transfers.

Payloads are keyed by the hex BLAKE3 digest of their content and kept
LZ4 compressed in an SQLite database. The default database lives in
memory, so nothing survives a restart.
*/
package assets

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"

	_ "github.com/mattn/go-sqlite3"
)

// Memory is the path of a database that only lives in memory
const Memory = ":memory:"

var ErrNotFound = errors.New("asset not found")

// A Handle refers to a stored asset
type Handle struct {
	Digest string
	Name   string
	Size   int
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the asset database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Every connection to :memory: is a separate database
	if path == Memory {
		db.SetMaxOpenConns(1)
	}

	sql_table := `CREATE TABLE IF NOT EXISTS assets (
		digest VARCHAR(64) PRIMARY KEY NOT NULL,
		name VARCHAR(512) NOT NULL,
		size INTEGER NOT NULL,
		data BLOB NOT NULL
	);`

	if _, err := db.Exec(sql_table); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Digest returns the key data is stored under
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func compress(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

// Put stores data under its digest
// Storing the same content twice keeps the first name
func (s *Store) Put(name string, data []byte) (Handle, error) {
	h := Handle{
		Digest: Digest(data),
		Name:   name,
		Size:   len(data),
	}

	blob, err := compress(data)
	if err != nil {
		return Handle{}, err
	}

	sql_putAsset := `INSERT INTO assets (
		digest,
		name,
		size,
		data
	) VALUES (
		?,
		?,
		?,
		?
	) ON CONFLICT(digest) DO NOTHING;`

	stmt, err := s.db.Prepare(sql_putAsset)
	if err != nil {
		return Handle{}, err
	}
	defer stmt.Close()

	if _, err := stmt.Exec(h.Digest, h.Name, h.Size, blob); err != nil {
		return Handle{}, err
	}

	return s.Stat(h.Digest)
}

// Stat returns the Handle of a stored asset
func (s *Store) Stat(digest string) (Handle, error) {
	sql_statAsset := `SELECT name, size FROM assets WHERE digest = ?;`

	h := Handle{Digest: digest}
	err := s.db.QueryRow(sql_statAsset, digest).Scan(&h.Name, &h.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Handle{}, ErrNotFound
	}
	if err != nil {
		return Handle{}, err
	}

	return h, nil
}

// Get returns the content of a stored asset
func (s *Store) Get(digest string) ([]byte, error) {
	sql_getAsset := `SELECT data FROM assets WHERE digest = ?;`

	var blob []byte
	err := s.db.QueryRow(sql_getAsset, digest).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return decompress(blob)
}

// Has reports whether an asset is stored
func (s *Store) Has(digest string) (bool, error) {
	_, err := s.Stat(digest)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Count returns the number of stored assets
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assets;`).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
