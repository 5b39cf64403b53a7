package ioengine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fstransform/fsremap/internal/extent"
)

// ReadExtentFile parses the wire format the job directory and the test
// backend share: a "length <total>" header, a "physical\tlogical\tlength\ttag"
// column header, then one tab-separated quadruple per extent (grounded on
// ff_read_extents_file / ff_write_extents_file in
// _examples/original_source/src/io/extent_file.cc).
func ReadExtentFile(r io.Reader) (extent.Vector, uint64, error) {
	scanner := bufio.NewScanner(r)
	var fileLength uint64
	var out extent.Vector
	lineNo := 0
	nonBlank := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		nonBlank++
		if nonBlank == 1 {
			fields := strings.Fields(line)
			if len(fields) != 2 || fields[0] != "length" {
				return nil, 0, fmt.Errorf("extent file: malformed header %q", line)
			}
			n, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return nil, 0, fmt.Errorf("extent file: bad length %q: %w", fields[1], err)
			}
			fileLength = n
			continue
		}
		if nonBlank == 2 {
			// column header, e.g. "physical\tlogical\tlength\tuser_data"
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 4 {
			return nil, 0, fmt.Errorf("extent file line %d: expected 4 tab-separated columns, got %d", lineNo, len(cols))
		}
		physical, err := strconv.ParseUint(cols[0], 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("extent file line %d: bad physical %q: %w", lineNo, cols[0], err)
		}
		logical, err := strconv.ParseUint(cols[1], 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("extent file line %d: bad logical %q: %w", lineNo, cols[1], err)
		}
		length, err := strconv.ParseUint(cols[2], 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("extent file line %d: bad length %q: %w", lineNo, cols[2], err)
		}
		tag, err := strconv.ParseUint(cols[3], 10, 8)
		if err != nil {
			return nil, 0, fmt.Errorf("extent file line %d: bad tag %q: %w", lineNo, cols[3], err)
		}
		out = append(out, extent.Extent{
			Physical: physical,
			Logical:  logical,
			Length:   length,
			Tag:      extent.Tag(tag),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("extent file: %w", err)
	}
	return out, fileLength, nil
}

// WriteExtentFile serializes v in the same wire format ReadExtentFile parses.
// v must already be sorted (by physical or logical); the header's length is
// derived from the last entry only, as max(Physical, Logical) + Length,
// matching the original's derivation.
func WriteExtentFile(w io.Writer, v extent.Vector) error {
	var fileLength uint64
	if len(v) > 0 {
		last := v[len(v)-1]
		end := last.Physical
		if last.Logical > end {
			end = last.Logical
		}
		fileLength = end + last.Length
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "length %d\n", fileLength); err != nil {
		return err
	}
	if _, err := bw.WriteString("physical\tlogical\tlength\tuser_data\n"); err != nil {
		return err
	}
	for _, e := range v {
		if _, err := fmt.Fprintf(bw, "%d\t%d\t%d\t%d\n", e.Physical, e.Logical, e.Length, e.Tag); err != nil {
			return err
		}
	}
	return bw.Flush()
}
