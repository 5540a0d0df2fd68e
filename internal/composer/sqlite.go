package composer

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
)

// Schema of a compiled dictionary.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS core (
    key     TEXT PRIMARY KEY,
    value   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS data (
    sequence    TEXT PRIMARY KEY,
    text        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS translation (
    code        TEXT NOT NULL,
    ordinal     INTEGER NOT NULL,
    text        TEXT NOT NULL,
    PRIMARY KEY (code, ordinal)
);

CREATE TABLE IF NOT EXISTS translators (
    name    TEXT PRIMARY KEY,
    source  TEXT NOT NULL
);
`

// sqliteTranslation queries the translation table on demand; large
// lexicons never live in memory.
type sqliteTranslation struct {
	db   *sql.DB
	stmt *sql.Stmt
}

func (t *sqliteTranslation) prefix(input string) ([]Predicate, error) {
	rows, err := t.stmt.Query(utf8.RuneCountInString(input), input, MaxPredicates)
	if err != nil {
		return nil, fmt.Errorf("query translation: %w", err)
	}
	defer rows.Close()

	var out []Predicate
	for rows.Next() {
		var code, text string
		if err := rows.Scan(&code, &text); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].Code == code {
			out[n-1].Texts = append(out[n-1].Texts, text)
			continue
		}
		out = append(out, newPredicate(input, code, []string{text}))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortPredicates(out)
	return out, nil
}

// LoadSQLite opens a compiled dictionary read-only. Data sequences and
// scripts are read into memory; translations stay in the database.
func LoadSQLite(path string) (*Dictionary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_query_only=true")
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}

	d, err := readSQLite(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func readSQLite(db *sql.DB) (*Dictionary, error) {
	d := Empty()

	rows, err := db.Query(`SELECT key, value FROM core`)
	if err != nil {
		return nil, fmt.Errorf("read core: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, err
		}
		switch key {
		case "name":
			d.Name = value
		case "buffer_size":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				d.bufferSize = n
			}
		case "auto_commit":
			d.autoCommit = value == "true"
		}
	}
	rows.Close()

	rows, err = db.Query(`SELECT sequence, text FROM data`)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	for rows.Next() {
		var seq, text string
		if err := rows.Scan(&seq, &text); err != nil {
			rows.Close()
			return nil, err
		}
		d.data[seq] = text
		d.maxSeq = max(d.maxSeq, utf8.RuneCountInString(seq))
		for _, r := range seq {
			d.alphabet[r] = struct{}{}
		}
	}
	rows.Close()

	// Code runes feed Composable without loading the codes themselves.
	rows, err = db.Query(`SELECT DISTINCT code FROM translation`)
	if err != nil {
		return nil, fmt.Errorf("read translation: %w", err)
	}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, err
		}
		for _, r := range code {
			d.alphabet[r] = struct{}{}
		}
	}
	rows.Close()

	rows, err = db.Query(`SELECT name, source FROM translators ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("read translators: %w", err)
	}
	for rows.Next() {
		var s Script
		if err := rows.Scan(&s.Name, &s.Source); err != nil {
			rows.Close()
			return nil, err
		}
		d.scripts = append(d.scripts, s)
	}
	rows.Close()

	stmt, err := db.Prepare(`
		SELECT code, text FROM translation
		WHERE substr(code, 1, ?) = ?
		ORDER BY length(code), code, ordinal
		LIMIT ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare translation query: %w", err)
	}
	d.lookup = &sqliteTranslation{db: db, stmt: stmt}
	d.closeFunc = func() error {
		return errors.Join(stmt.Close(), db.Close())
	}
	return d, nil
}

// Compile writes d into a new SQLite dictionary at path, replacing any
// existing file.
func Compile(d *Dictionary, path string) error {
	mem, ok := d.lookup.(*memoryTranslation)
	if !ok {
		return errors.New("compile: dictionary is already compiled")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dictionary directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old dictionary: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	core := map[string]string{
		"name":        d.Name,
		"buffer_size": strconv.Itoa(d.bufferSize),
		"auto_commit": strconv.FormatBool(d.autoCommit),
	}
	for k, v := range core {
		if _, err := tx.Exec(`INSERT INTO core (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert core: %w", err)
		}
	}

	seqs := make([]string, 0, len(d.data))
	for s := range d.data {
		seqs = append(seqs, s)
	}
	sort.Strings(seqs)
	for _, s := range seqs {
		if _, err := tx.Exec(`INSERT INTO data (sequence, text) VALUES (?, ?)`, s, d.data[s]); err != nil {
			return fmt.Errorf("insert data: %w", err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO translation (code, ordinal, text) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare translation insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range mem.entries {
		for i, text := range e.texts {
			if _, err := stmt.Exec(e.code, i, text); err != nil {
				return fmt.Errorf("insert translation: %w", err)
			}
		}
	}

	for _, s := range d.scripts {
		if _, err := tx.Exec(`INSERT INTO translators (name, source) VALUES (?, ?)`, s.Name, s.Source); err != nil {
			return fmt.Errorf("insert translator: %w", err)
		}
	}

	return tx.Commit()
}
