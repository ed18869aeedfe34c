// Package fasta handles the reference files staged for a run: counting and
// renaming records and concatenating several references into one.
package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Record is one FASTA entry.
type Record struct {
	ID          string
	Description string
	Seq         []byte
}

// Header renders the record header line without the trailing newline.
func (r Record) Header() string {
	if r.Description == "" {
		return ">" + r.ID
	}
	return ">" + r.ID + " " + r.Description
}

// parseHeader splits a header line (with or without '>') into ID and description.
func parseHeader(line string) (id, desc string) {
	line = strings.TrimPrefix(strings.TrimRight(line, "\r\n"), ">")
	line = strings.TrimLeft(line, " \t")
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// ReadRecords parses every record from r.
func ReadRecords(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	var (
		records []Record
		cur     *Record
	)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimRight(line, "\r\n")
			switch {
			case len(trimmed) > 0 && trimmed[0] == '>':
				id, desc := parseHeader(string(trimmed))
				records = append(records, Record{ID: id, Description: desc})
				cur = &records[len(records)-1]
			case len(trimmed) == 0:
			case cur == nil:
				return nil, &ParseError{Message: "sequence data before first header"}
			default:
				cur.Seq = append(cur.Seq, bytes.TrimSpace(trimmed)...)
			}
		}
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, &ParseError{Message: "read failed", Cause: err}
		}
	}
}

// ReadFile parses every record of a file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecords(f)
}

// CountRecords counts header lines in a file without buffering sequences.
func CountRecords(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		if line := sc.Bytes(); len(line) > 0 && line[0] == '>' {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, &ParseError{Message: fmt.Sprintf("failed to scan %s", filepath.Base(path)), Cause: err}
	}
	return n, nil
}

// Concatenate writes every source file into dst in order, inserting a newline
// between files that lack a trailing one, and returns the total record count.
func Concatenate(dst string, srcs []string) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := bufio.NewWriter(tmp)
	total := 0
	for _, src := range srcs {
		n, err := appendFile(w, src)
		if err != nil {
			tmp.Close() //nolint:errcheck
			return 0, err
		}
		total += n
	}
	if err := w.Flush(); err != nil {
		tmp.Close() //nolint:errcheck
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, err
	}
	return total, nil
}

func appendFile(w *bufio.Writer, src string) (int, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	count := 0
	var last byte = '\n'
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if line[0] == '>' {
				count++
			}
			if _, werr := w.Write(line); werr != nil {
				return 0, werr
			}
			last = line[len(line)-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		if err := w.WriteByte('\n'); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// RewriteHeaders replaces the ID of every record in path with rename(id),
// keeping descriptions and sequence lines untouched. It reports how many IDs changed.
func RewriteHeaders(path string, rename func(id string) string) (int, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	br := bufio.NewReader(src)
	w := bufio.NewWriter(tmp)
	changed := 0
	for {
		line, rerr := br.ReadBytes('\n')
		if len(line) > 0 {
			if line[0] == '>' {
				id, desc := parseHeader(string(line))
				if next := rename(id); next != id {
					changed++
					id = next
				}
				eol := line[len(bytes.TrimRight(line, "\r\n")):]
				line = append([]byte(Record{ID: id, Description: desc}.Header()), eol...)
			}
			if _, err := w.Write(line); err != nil {
				tmp.Close() //nolint:errcheck
				return 0, err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close() //nolint:errcheck
			return 0, rerr
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close() //nolint:errcheck
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if changed == 0 {
		return 0, nil
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return changed, nil
}
