package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseEntries reads a .cat index from r. Lines may be LF or
// CRLF-terminated. Each line carries four space-separated fields, but
// only the trailing three are fixed-width concepts: the path itself
// may contain spaces, so parsing splits from the right three times.
// Blank and comment lines are rejected, matching the format's lack of
// any header/footer/comment convention.
func parseEntries(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)

	var entries []Entry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: reading index: %w", err)
	}
	return entries, nil
}

func parseLine(line string) (Entry, error) {
	if strings.TrimSpace(line) == "" {
		return Entry{}, fmt.Errorf("%w: blank line", ErrMalformedLine)
	}

	i3 := strings.LastIndexByte(line, ' ')
	if i3 < 0 {
		return Entry{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	md5hex := line[i3+1:]
	rest := line[:i3]

	i2 := strings.LastIndexByte(rest, ' ')
	if i2 < 0 {
		return Entry{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	tsStr := rest[i2+1:]
	rest = rest[:i2]

	i1 := strings.LastIndexByte(rest, ' ')
	if i1 < 0 {
		return Entry{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	lenStr := rest[i1+1:]
	path := rest[:i1]

	if path == "" {
		return Entry{}, fmt.Errorf("%w: empty path in %q", ErrMalformedLine, line)
	}

	length, err := strconv.ParseInt(lenStr, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad length %q: %v", ErrMalformedLine, lenStr, err)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad timestamp %q: %v", ErrMalformedLine, tsStr, err)
	}
	sum, err := parseMD5Hex(md5hex)
	if err != nil {
		return Entry{}, err
	}

	return Entry{Path: path, Length: length, Timestamp: ts, MD5: sum}, nil
}

// formatLine renders an entry back into its .cat line form, without
// the terminating LF (the caller appends the newline).
func formatLine(e Entry) string {
	return fmt.Sprintf("%s %d %d %s", e.Path, e.Length, e.Timestamp, e.MD5Hex())
}
