// Package search indexes session journals into a SQLite FTS5 table so
// the operator can grep across past sessions by content, role, or
// session id without re-parsing every JSONL file on each query.
package search

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/unixagent/unixagent/internal/journal"
)

const schemaCore = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT,
	type TEXT,
	role TEXT,
	ts INTEGER,
	content TEXT
);
`

const schemaFTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
	content,
	role,
	type UNINDEXED,
	session_id UNINDEXED,
	tokenize = 'porter'
);
`

// Index wraps the SQLite connection backing journal search. ftsEnabled
// is false when the linked sqlite3 build lacks FTS5 support; queries
// then fall back to a plain LIKE scan over entries.
type Index struct {
	db         *sql.DB
	ftsEnabled bool
}

// Open creates or attaches to the search database at dbPath, creating
// its parent directory if missing.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("search: failed to create dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaCore); err != nil {
		db.Close()
		return nil, fmt.Errorf("search: failed to init schema: %w", err)
	}

	ftsEnabled := true
	if _, err := db.Exec(schemaFTS); err != nil {
		ftsEnabled = false
	}

	return &Index{db: db, ftsEnabled: ftsEnabled}, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

// IndexSession reads sessionPath's journal entries and replaces the
// session's indexed rows with their searchable content: every existing
// row for sessionID is deleted first, so re-indexing the same journal
// does not duplicate rows.
func (idx *Index) IndexSession(sessionID, sessionPath string) error {
	entries, err := journal.ReadAll(sessionPath)
	if err != nil {
		return err
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if idx.ftsEnabled {
		if _, err := tx.Exec(`DELETE FROM entries_fts WHERE session_id = ?`, sessionID); err != nil {
			return err
		}
	}

	for _, e := range entries {
		content, role := searchableContent(e)
		if content == "" {
			continue
		}
		res, err := tx.Exec(`INSERT INTO entries (session_id, type, role, ts, content) VALUES (?, ?, ?, ?, ?)`,
			sessionID, string(e.Type), role, e.TS.Unix(), content)
		if err != nil {
			return err
		}
		if idx.ftsEnabled {
			if _, err := tx.Exec(`INSERT INTO entries_fts (content, role, type, session_id) VALUES (?, ?, ?, ?)`,
				content, role, string(e.Type), sessionID); err != nil {
				return err
			}
		}
		_ = res
	}

	return tx.Commit()
}

func searchableContent(e journal.Entry) (content, role string) {
	switch e.Type {
	case journal.TypeInstruction:
		return e.Text, "user"
	case journal.TypeResponse:
		return e.Text, "assistant"
	case journal.TypeShellCommand:
		return e.Command + "\n" + e.Output, "shell"
	case journal.TypeCheckpoint:
		return e.Summary, "system"
	default:
		return "", ""
	}
}

// Result is one matched journal entry.
type Result struct {
	SessionID string
	Type      string
	Role      string
	Timestamp int64
	Content   string
}

// Search runs a parsed query against the index, preferring the FTS5
// table when available and falling back to a substring LIKE scan
// against the plain entries table otherwise.
func (idx *Index) Search(rawQuery string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}

	if idx.ftsEnabled {
		return idx.searchFTS(rawQuery, limit)
	}
	return idx.searchLike(rawQuery, limit)
}

func (idx *Index) searchFTS(rawQuery string, limit int) ([]Result, error) {
	query := ParseQuery(rawQuery)
	if query == "" {
		return nil, nil
	}
	rows, err := idx.db.Query(
		`SELECT session_id, type, role, content FROM entries_fts WHERE entries_fts MATCH ? ORDER BY rowid DESC LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SessionID, &r.Type, &r.Role, &r.Content); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (idx *Index) searchLike(rawQuery string, limit int) ([]Result, error) {
	rows, err := idx.db.Query(
		`SELECT session_id, type, role, ts, content FROM entries WHERE content LIKE ? ORDER BY id DESC LIMIT ?`,
		"%"+rawQuery+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SessionID, &r.Type, &r.Role, &r.Timestamp, &r.Content); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

var identTokenRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
var tokenRe = regexp.MustCompile(`[^\s"']+|"([^"]*)"|'([^']*)'`)

// ParseQuery converts operator-facing search syntax into FTS5 MATCH
// syntax: quoted phrases pass through untouched, user:/ai:/system:
// prefixes narrow by role, and bare identifier tokens longer than 3
// characters get a trailing wildcard for prefix matching.
func ParseQuery(input string) string {
	input = strings.TrimSpace(input)
	tokens := tokenRe.FindAllString(input, -1)

	var parts []string
	for _, token := range tokens {
		if strings.HasPrefix(token, `"`) || strings.HasPrefix(token, "'") {
			parts = append(parts, token)
			continue
		}

		lower := strings.ToLower(token)
		switch {
		case strings.HasPrefix(lower, "user:"):
			parts = append(parts, roleFilter("user", token[len("user:"):]))
		case strings.HasPrefix(lower, "ai:"):
			parts = append(parts, roleFilter("assistant", token[len("ai:"):]))
		case strings.HasPrefix(lower, "assistant:"):
			parts = append(parts, roleFilter("assistant", token[len("assistant:"):]))
		case strings.HasPrefix(lower, "system:"):
			parts = append(parts, roleFilter("system", token[len("system:"):]))
		default:
			if len(token) > 3 && identTokenRe.MatchString(token) {
				parts = append(parts, token+"*")
			} else {
				parts = append(parts, token)
			}
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " AND ")
}

func roleFilter(role, term string) string {
	if term == "" {
		return fmt.Sprintf("role:%s", role)
	}
	return fmt.Sprintf("(role:%s AND content:%s)", role, term)
}

// CheckFTS5 reports whether the linked sqlite3 build supports FTS5, by
// attempting to create a throwaway virtual table in memory.
func CheckFTS5() bool {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return false
	}
	defer db.Close()

	_, err = db.Exec("CREATE VIRTUAL TABLE test USING fts5(content)")
	return err == nil
}
