package fasta

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex writes a samtools-compatible index (*.fai) for the FASTA
// data in "in".  Every sequence must use one line width, except for its last
// line.
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	var (
		w       = tsv.NewWriter(out)
		r       = bufio.NewReader(in)
		name    string
		start   int64 // byte offset of the current sequence's first base
		nBases  int
		lineLen int // bases per line
		lineW   int // bytes per line, including the terminator
		short   bool
		pos     int64
		eof     bool
	)
	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	flush := func() {
		if name == "" {
			return
		}
		w.WriteString(name)
		w.WriteInt64(int64(nBases))
		w.WriteInt64(start)
		w.WriteInt64(int64(lineLen))
		w.WriteInt64(int64(lineW))
		setErr(w.EndLine())
	}
	for !eof && err == nil {
		full, e := r.ReadBytes('\n')
		if e == io.EOF {
			eof = true
		} else if e != nil {
			setErr(e)
			break
		}
		pos += int64(len(full))
		line := bytes.TrimRight(full, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			name = strings.Split(string(line[1:]), " ")[0]
			if name == "" {
				setErr(errors.E(errors.Invalid, "malformed FASTA file: empty sequence name"))
			}
			start, nBases, lineLen, lineW, short = pos, 0, 0, 0, false
			continue
		}
		if name == "" {
			setErr(errors.E(errors.Invalid, "malformed FASTA file: bases before the first sequence name"))
			break
		}
		switch {
		case lineW == 0:
			lineW, lineLen = len(full), len(line)
		case short || len(line) > lineLen:
			setErr(errors.E(errors.Invalid, "FASTA sequence", name, "has uneven line lengths"))
		case len(line) < lineLen:
			short = true
		}
		nBases += len(line)
	}
	if err == nil {
		flush()
	}
	setErr(w.Flush())
	if pos == 0 {
		setErr(errors.E(errors.Invalid, "empty FASTA file"))
	}
	return
}
