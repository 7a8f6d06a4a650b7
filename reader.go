package gtfsgeneral

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ReadFeed loads a GTFS feed from inputPath, which may be either a directory
// of .txt files or a zip archive. Schema validation happens once all tables
// are in memory.
func ReadFeed(inputPath string) (*Feed, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return readFeedFS(os.DirFS(inputPath))
	}

	archive, err := zip.OpenReader(inputPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer func() { _ = archive.Close() }()
	return readFeedFS(archive)
}

func readFeedFS(fsys fs.FS) (*Feed, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	tables := make(map[string]*Table)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			slog.Info("Skipping " + name)
			continue
		}
		table, err := readTable(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		tables[table.Name] = table
	}

	return NewFeed(tables)
}

func readTable(fsys fs.FS, filename string) (*Table, error) {
	f, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	name := strings.TrimSuffix(filename, ".txt")

	inputCSV := csv.NewReader(f)
	inputCSV.FieldsPerRecord = -1 // Allow variable numbers of fields

	header, err := inputCSV.Read()
	if errors.Is(err, io.EOF) {
		return NewTable(name, nil), nil
	} else if err != nil {
		return nil, err
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	table := NewTable(name, header)
	for {
		row, err := inputCSV.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}
	slog.Info(fmt.Sprintf("Read %d rows from %s", table.Len(), filename))

	return table, nil
}
