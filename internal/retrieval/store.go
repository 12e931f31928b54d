package retrieval

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store caches indexed examples and their embeddings in a local SQLite
// database so the index survives restarts.
type Store struct {
	conn *sql.DB
	path string
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS examples (
    name      TEXT PRIMARY KEY,
    source    TEXT NOT NULL,
    mtime     INTEGER NOT NULL,
    embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS index_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// OpenStore opens or creates the index database at the given path.
func OpenStore(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping index database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec(indexSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Put inserts or replaces one indexed example.
func (s *Store) Put(name, source string, mtime int64, embedding []float32) error {
	blob := encodeEmbedding(embedding)
	if blob == nil {
		return fmt.Errorf("empty embedding for %s", name)
	}
	_, err := s.conn.Exec(
		"INSERT OR REPLACE INTO examples (name, source, mtime, embedding) VALUES (?, ?, ?, ?)",
		name, source, mtime, blob,
	)
	if err != nil {
		return fmt.Errorf("store example %s: %w", name, err)
	}
	return nil
}

// Remove deletes one example by name.
func (s *Store) Remove(name string) error {
	if _, err := s.conn.Exec("DELETE FROM examples WHERE name = ?", name); err != nil {
		return fmt.Errorf("remove example %s: %w", name, err)
	}
	return nil
}

// Clear deletes every indexed example. Used when the embedder changes, since
// vectors from different models are not comparable.
func (s *Store) Clear() error {
	if _, err := s.conn.Exec("DELETE FROM examples"); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}

// Mtimes returns the stored modification time for every indexed example.
func (s *Store) Mtimes() (map[string]int64, error) {
	rows, err := s.conn.Query("SELECT name, mtime FROM examples")
	if err != nil {
		return nil, fmt.Errorf("query mtimes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var mtime int64
		if err := rows.Scan(&name, &mtime); err != nil {
			return nil, fmt.Errorf("scan mtime row: %w", err)
		}
		out[name] = mtime
	}
	return out, rows.Err()
}

type storedExample struct {
	Name      string
	Source    string
	Embedding []float32
}

// Entries returns every indexed example with its decoded embedding. Rows
// whose blob fails to decode are skipped.
func (s *Store) Entries() ([]storedExample, error) {
	rows, err := s.conn.Query("SELECT name, source, embedding FROM examples ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query examples: %w", err)
	}
	defer rows.Close()

	var out []storedExample
	for rows.Next() {
		var e storedExample
		var blob []byte
		if err := rows.Scan(&e.Name, &e.Source, &blob); err != nil {
			return nil, fmt.Errorf("scan example row: %w", err)
		}
		e.Embedding = decodeEmbedding(blob)
		if e.Embedding == nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of indexed examples.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM examples").Scan(&n); err != nil {
		return 0, fmt.Errorf("count examples: %w", err)
	}
	return n, nil
}

// Meta reads one index metadata value. Missing keys return "".
func (s *Store) Meta(key string) (string, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM index_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta writes one index metadata value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.conn.Exec("INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// encodeEmbedding packs a vector as a little-endian float32 blob.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}

// decodeEmbedding unpacks a little-endian float32 blob.
func decodeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	reader := bytes.NewReader(blob)
	if err := binary.Read(reader, binary.LittleEndian, &vec); err != nil {
		return nil
	}
	return vec
}
