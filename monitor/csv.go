package monitor

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CSVSink appends readings to a CSV file, one row per poll cycle. The header
// row is written only when the file starts out empty, so restarting the
// agent keeps appending to the same log.
type CSVSink struct {
	file        *os.File
	w           *csv.Writer
	regs        []Register
	wroteHeader bool
}

// NewCSVSink opens (or creates) path for appending and prepares a sink for
// the given register set. Rows are expected to carry samples in the same
// order as regs.
func NewCSVSink(path string, regs []Register) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	return &CSVSink{
		file:        f,
		w:           csv.NewWriter(f),
		regs:        regs,
		wroteHeader: st.Size() > 0,
	}, nil
}

// Write appends one reading. Samples that failed to read leave their cell
// empty.
func (s *CSVSink) Write(r Reading) error {
	if !s.wroteHeader {
		header := make([]string, 0, len(s.regs)+1)
		header = append(header, "time")
		for _, reg := range s.regs {
			header = append(header, reg.Name)
		}
		if err := s.w.Write(header); err != nil {
			return fmt.Errorf("csv sink: %w", err)
		}
		s.wroteHeader = true
	}

	row := make([]string, 0, len(r.Samples)+1)
	row = append(row, r.Time.Format(time.RFC3339))
	for i, sample := range r.Samples {
		switch {
		case sample.Err != nil:
			row = append(row, "")
		case i < len(s.regs) && s.regs[i].Raw:
			row = append(row, strconv.Itoa(int(sample.Raw)))
		default:
			row = append(row, strconv.FormatFloat(sample.Value, 'f', 2, 64))
		}
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("csv sink: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes pending rows and closes the underlying file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
