package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultDelimiter is the field separator used by exported spreadsheets in
// pt-BR locales.
const DefaultDelimiter = ';'

// Options controls how tabular files are read and written.
type Options struct {
	// Delimiter is the CSV field separator (default ';').
	Delimiter rune
	// Sheet selects the XLSX worksheet (default: first sheet).
	Sheet string
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return DefaultDelimiter
	}
	return o.Delimiter
}

// ParseDelimiter converts a config value such as ";" or "\t" to a rune.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return DefaultDelimiter, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}

// ReadCSV parses delimited text. The first record is the header.
func ReadCSV(r io.Reader, opts Options) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.delimiter()
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return fromRecords(records)
}

// ReadXLSX reads a worksheet. The first row is the header.
func ReadXLSX(r io.Reader, opts Options) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return fromRecords(rows)
}

func fromRecords(records [][]string) (*Dataset, error) {
	records = dropBlankRecords(records)
	if len(records) < 2 {
		return nil, ErrEmpty
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	return New(header, records[1:])
}

func dropBlankRecords(records [][]string) [][]string {
	out := records[:0]
	for _, rec := range records {
		blank := true
		for _, v := range rec {
			if strings.TrimSpace(v) != "" {
				blank = false
				break
			}
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

// WriteCSV writes the header and every row.
func WriteCSV(w io.Writer, d *Dataset, opts Options) error {
	writer := csv.NewWriter(w)
	writer.Comma = opts.delimiter()

	if err := writer.Write(d.Columns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(d.Records()); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// WriteXLSX writes the dataset to a single-sheet workbook.
func WriteXLSX(w io.Writer, d *Dataset, opts Options) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = "Dados"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	write := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}

	if err := write(1, d.Columns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, rec := range d.Records() {
		if err := write(i+2, rec); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// LoadFile reads a .csv, .txt or .xlsx file.
func LoadFile(path string, opts Options) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Load(filepath.Base(path), data, opts)
}

// Load parses data, choosing the format from the file name extension.
func Load(name string, data []byte, opts Options) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(bytes.NewReader(data), opts)
	case ".csv", ".txt", "":
		return ReadCSV(bytes.NewReader(data), opts)
	default:
		return nil, fmt.Errorf("unsupported data file %q (want .csv or .xlsx)", name)
	}
}

// SaveFile writes the dataset, choosing the format from the extension.
func SaveFile(path string, d *Dataset, opts Options) (err error) {
	f, err := os.Create(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(f, d, opts)
	}
	return WriteCSV(f, d, opts)
}
