package gtfsgeneral

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// WriteFeed writes a feed to outputPath: a zip archive when the path ends in
// .zip, a directory of .txt files otherwise. Tables filtered down to zero
// rows are still written header-only so the output stays a complete feed.
func WriteFeed(feed *Feed, outputPath string) error {
	if strings.HasSuffix(outputPath, ".zip") {
		return writeFeedZip(feed, outputPath)
	}
	return writeFeedDir(feed, outputPath)
}

func writeFeedDir(feed *Feed, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	for _, name := range feed.TableNames() {
		outputName := filepath.Join(outputDir, name+".txt")
		outputF, err := os.Create(outputName)
		if err != nil {
			return err
		}
		err = writeTableIn(outputF, feed.Table(name))
		if closeErr := outputF.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", outputName, err)
		}
	}
	slog.Info(fmt.Sprintf("Wrote %s", outputDir))
	return nil
}

func writeFeedZip(feed *Feed, outputPath string) error {
	outputF, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	outputZip := zip.NewWriter(outputF)
	defer func() {
		_ = outputZip.Close()
		_ = outputF.Close()
	}()

	for _, name := range feed.TableNames() {
		entry, err := outputZip.Create(name + ".txt")
		if err != nil {
			return err
		}
		if err := writeTableIn(entry, feed.Table(name)); err != nil {
			return fmt.Errorf("write %s.txt: %w", name, err)
		}
	}

	if err := outputZip.Close(); err != nil {
		return err
	}
	if err := outputF.Close(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Wrote %s", outputPath))
	return nil
}

func writeTableIn(w io.Writer, t *Table) error {
	outputCSV := csv.NewWriter(w)

	if len(t.Header) > 0 {
		if err := outputCSV.Write(t.Header); err != nil {
			return err
		}
	}
	for _, row := range t.Rows {
		if err := outputCSV.Write(row); err != nil {
			return err
		}
	}
	slog.Info(fmt.Sprintf("Wrote %d rows to %s.txt", t.Len(), t.Name))

	outputCSV.Flush()
	return outputCSV.Error()
}
