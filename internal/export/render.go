package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeRow(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteCSV streams the table with a header row. Null cells are empty.
func WriteCSV(w io.Writer, t Table) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeRow(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellText(row[i])
			}
		}
		if err := streamer.writeRow(record); err != nil {
			return err
		}
	}
	return streamer.Flush()
}

// WriteJSON encodes the table as one JSON document.
func WriteJSON(w io.Writer, t Table) error {
	return json.NewEncoder(w).Encode(t)
}

// Render writes the table in the requested format.
func Render(w io.Writer, t Table, format Format) error {
	if format == FormatCSV {
		return WriteCSV(w, t)
	}
	return WriteJSON(w, t)
}

// ContentType returns the MIME type of a format.
func ContentType(format Format) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// FileName names a rendered export.
func FileName(t Table, format Format) string {
	return fmt.Sprintf("%s_%s.%s", t.Kind, t.Period, format)
}

// MarshalJSON writes rows as objects whose keys follow the column order.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	if err := writeJSONValue(&buf, t.Kind); err != nil {
		return nil, err
	}
	buf.WriteString(`,"period":`)
	if err := writeJSONValue(&buf, t.Period); err != nil {
		return nil, err
	}
	buf.WriteString(`,"columns":`)
	if err := writeJSONValue(&buf, t.Columns); err != nil {
		return nil, err
	}
	buf.WriteString(`,"rows":[`)
	for r, row := range t.Rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, col := range t.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONValue(&buf, col); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			var cell any
			if i < len(row) {
				cell = row[i]
			}
			if err := writeJSONValue(&buf, cell); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}

func writeJSONValue(buf *bytes.Buffer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

func cellText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}
