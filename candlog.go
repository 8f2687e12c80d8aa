package shipwright

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// CandidateRecord is one entry of the candidate log: the high-level string
// plus the measurement and scoring lines written for it.
type CandidateRecord struct {
	String       string
	Measurements string
	Scoring      string
}

// CandidateLog writes candidates as fixed blocks of three lines terminated
// by a blank line. Downstream tooling consumes the file in order, so records
// are never rewritten or reordered.
type CandidateLog struct {
	w *bufio.Writer
}

func NewCandidateLog(w io.Writer) *CandidateLog {
	return &CandidateLog{w: bufio.NewWriter(w)}
}

func (l *CandidateLog) Write(cs *CandidateSolution) error {
	m := cs.Measurements()
	if m == nil {
		m = &Measurements{}
	}
	lines := []string{
		cs.String,
		fmt.Sprintf("blocks=%d functional=%d volume=%d dims=%s",
			m.TotalBlocks, m.FunctionalBlocks, m.OccupiedVolume, m.Dims.String()),
		fmt.Sprintf("fitness=%.6f feasible=%v ncv=%d", cs.CFitness, cs.Feasible, cs.NCV),
	}
	for _, line := range lines {
		if strings.ContainsRune(line, '\n') {
			return fmt.Errorf("candidate log line contains a newline: %q", line)
		}
		if _, err := l.w.WriteString(line); err != nil {
			return err
		}
		if err := l.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

// ReadCandidateLog scans records back in write order. A truncated trailing
// block is an error; a missing final blank line is tolerated.
func ReadCandidateLog(r io.Reader) ([]CandidateRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var records []CandidateRecord
	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if len(block) != 3 {
			return fmt.Errorf("malformed candidate record at entry %d: %d lines", len(records)+1, len(block))
		}
		records = append(records, CandidateRecord{
			String:       block[0],
			Measurements: block[1],
			Scoring:      block[2],
		})
		block = block[:0]
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return records, nil
}
