package gtfsgeneral

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

func sqlitexNoop(stmt *sqlite.Stmt) error { return nil }

var writePragmas = map[string]string{
	"synchronous": "OFF",
}

// WriteSQLite writes a feed into a fresh SQLite database, one all-TEXT table
// per GTFS file. An existing database at outputPath is replaced.
func WriteSQLite(feed *Feed, outputPath string) error {
	slog.Info(fmt.Sprintf("Writing database %s", outputPath))

	err := os.Remove(outputPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	db, err := sqlite.OpenConn(outputPath, 0)
	if err != nil {
		return err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	for pragma, value := range writePragmas {
		err = sqlitex.Exec(db, "PRAGMA "+pragma+" = "+value, sqlitexNoop)
		if err != nil {
			return err
		}
	}

	for _, name := range feed.TableNames() {
		if err := writeTableTo(db, feed.Table(name)); err != nil {
			return fmt.Errorf("write table %s: %w", name, err)
		}
	}

	err = db.Close()
	db = nil
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Wrote %s", outputPath))
	return nil
}

func writeTableTo(db *sqlite.Conn, t *Table) error {
	if len(t.Header) == 0 {
		return nil
	}

	var columnFragments []string
	for _, column := range t.Header {
		columnFragments = append(columnFragments, column+" TEXT")
	}
	query := fmt.Sprintf("CREATE TABLE %s (%s)", t.Name, strings.Join(columnFragments, ", "))
	if err := sqlitex.ExecTransient(db, query, sqlitexNoop); err != nil {
		return err
	}

	var argFragments []string
	for i := range t.Header {
		argFragments = append(argFragments, fmt.Sprintf("?%d", i+1))
	}
	query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(t.Header, ", "), strings.Join(argFragments, ", "))
	insertStmt, err := db.Prepare(query)
	if err != nil {
		return err
	}

	for _, row := range t.Rows {
		if err := insertStmt.Reset(); err != nil {
			return err
		}
		if err := insertStmt.ClearBindings(); err != nil {
			return err
		}

		for i := range t.Header {
			param := i + 1
			if i >= len(row) || row[i] == "" {
				insertStmt.BindNull(param)
			} else {
				insertStmt.BindText(param, row[i])
			}
		}

		for {
			rowReturned, err := insertStmt.Step()
			if err != nil {
				return err
			}
			if !rowReturned {
				break
			}
		}
	}
	slog.Info(fmt.Sprintf("Wrote %d rows to table %s", t.Len(), t.Name))

	return nil
}
