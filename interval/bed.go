package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// ReadEntries loads the first three columns of every line of a BED file.
// Unlike a BED union, entries are returned in file order and are not merged:
// each one becomes a separate query.  Header ("track", "browser") and comment
// lines are skipped.
func ReadEntries(reader io.Reader) (entries []Entry, err error) {
	scanner := bufio.NewScanner(reader)
	var tokens [3][]byte
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		first := gunsafe.BytesToString(tokens[0])
		if first[0] == '#' || first == "track" || first == "browser" {
			continue
		}
		if nToken != 3 {
			err = fmt.Errorf("interval.ReadEntries: line %d has fewer tokens than expected", lineIdx)
			return
		}
		var start, end int
		if start, err = strconv.Atoi(gunsafe.BytesToString(tokens[1])); err != nil {
			return
		}
		if end, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
			return
		}
		if start < 0 || end <= start || end >= PosTypeMax {
			err = fmt.Errorf("interval.ReadEntries: invalid coordinate pair on line %d", lineIdx)
			return
		}
		entries = append(entries, Entry{
			// Must copy, since tokens[0] points into the scanner's buffer.
			RefName: string(tokens[0]),
			Start0:  PosType(start),
			End:     PosType(end),
		})
	}
	err = scanner.Err()
	return
}

// LoadEntries is a wrapper for ReadEntries that takes a path instead of an
// io.Reader.  Gzipped BED files are recognized by their suffix.
func LoadEntries(ctx context.Context, path string) (entries []Entry, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	if entries, err = ReadEntries(reader); err != nil {
		return
	}
	log.Printf("interval.LoadEntries: %d region(s) loaded from %s", len(entries), path)
	return
}
