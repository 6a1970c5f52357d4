package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/peoplehub/ecsync/pkg/employee"
)

// Warning is a non-fatal issue found while reading a roster row.
type Warning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Roster is a parsed CSV export: the records in file order plus any
// per-row warnings. An export with a header but no data rows is valid and
// yields an empty record list.
type Roster struct {
	Records  []employee.Record
	Warnings []Warning
}

// UserIDs returns the roster's userid column in file order.
func (r *Roster) UserIDs() []string {
	ids := make([]string, len(r.Records))
	for i := range r.Records {
		ids[i] = r.Records[i].UserID
	}
	return ids
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeRoster sniffs the export's encoding and converts it to UTF-8.
// HR system exports arrive as UTF-8 (with or without BOM), UTF-16 with BOM,
// or Latin-1; anything that is not valid UTF-8 and carries no BOM is read
// as Latin-1.
func decodeRoster(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[3:], nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return transformBytes(data, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	case bytes.HasPrefix(data, bomUTF16BE):
		return transformBytes(data, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
	case utf8.Valid(data):
		return data, nil
	default:
		return transformBytes(data, charmap.ISO8859_1.NewDecoder())
	}
}

func transformBytes(data []byte, dec *encoding.Decoder) ([]byte, error) {
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return out, nil
}

// ReadRoster parses a CSV export into a Roster. The userid column is
// required; manager, matrix_manager, and hr columns are picked up when
// present and any other columns are ignored. Header names are matched
// case-insensitively; cell values are whitespace-trimmed but otherwise
// untouched. Rows with the wrong column count are padded or truncated with
// a warning, and unparsable rows are skipped with a warning.
func ReadRoster(r io.Reader) (*Roster, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	decoded, err := decodeRoster(data)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(decoded))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty roster: no header row")
		}
		return nil, fmt.Errorf("read roster header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idCol, ok := cols["userid"]
	if !ok {
		return nil, errors.New("roster has no userid column")
	}
	mgrCol, hasMgr := cols["manager"]
	matCol, hasMat := cols["matrix_manager"]
	hrCol, hasHR := cols["hr"]

	roster := &Roster{}
	rowNum := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			roster.Warnings = append(roster.Warnings, Warning{
				Row:     rowNum,
				Message: fmt.Sprintf("parse error: %v", err),
			})
			continue
		}

		if len(row) != len(header) {
			if len(row) < len(header) {
				roster.Warnings = append(roster.Warnings, Warning{
					Row:     rowNum,
					Message: fmt.Sprintf("row has %d columns, expected %d; padding", len(row), len(header)),
				})
				padded := make([]string, len(header))
				copy(padded, row)
				row = padded
			} else {
				roster.Warnings = append(roster.Warnings, Warning{
					Row:     rowNum,
					Message: fmt.Sprintf("row has %d columns, expected %d; truncating", len(row), len(header)),
				})
				row = row[:len(header)]
			}
		}

		rec := employee.Record{UserID: strings.TrimSpace(row[idCol])}
		if hasMgr {
			rec.Manager = strings.TrimSpace(row[mgrCol])
		}
		if hasMat {
			rec.MatrixManager = strings.TrimSpace(row[matCol])
		}
		if hasHR {
			rec.HR = strings.TrimSpace(row[hrCol])
		}
		roster.Records = append(roster.Records, rec)
	}
	return roster, nil
}
