package roster

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
)

// accepted headers of the name column, normalized
var nameHeaders = map[string]bool{
	"studentname":  true,
	"name":         true,
	"student_name": true,
	"student name": true,
}

var (
	ErrEmptyCSV     = core.NewValidationError(errors.New("the CSV file is empty"))
	ErrNoNameColumn = core.NewValidationError(errors.New("the CSV file must have a studentname, name, student_name or Student Name column"))
)

// NameRow is one data row of an uploaded CSV. Line is 1-based and counts the header.
type NameRow struct {
	Line int
	Name string
}

// ParseNames reads a CSV with a header row and returns the value of its name column for every data row.
// Rows with a blank name are kept so that callers can report them.
func ParseNames(r io.Reader) ([]NameRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "reading CSV header"))
	}

	col := -1
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff") // BOM
		if nameHeaders[core.NormalizeName(h)] {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoNameColumn
	}

	rows := make([]NameRow, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewValidationError(errors.Wrapf(err, "reading CSV line %d", line))
		}
		var name string
		if col < len(record) {
			name = strings.Join(strings.Fields(record[col]), " ")
		}
		rows = append(rows, NameRow{Line: line, Name: name})
	}
	return rows, nil
}
