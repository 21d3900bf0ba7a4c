package fasta

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Open opens the FASTA file at path, which may be any path grailbio/base/file
// understands.  If path+".fai" exists, bases are read on demand through the
// index; otherwise the whole file is loaded into memory, decompressing it
// first when it is gzipped.  The returned closer releases the underlying
// file.
func Open(ctx context.Context, path string) (Fasta, io.Closer, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	closer := &fileCloser{ctx: ctx, f: in}
	if idx, err := file.Open(ctx, path+".fai"); err == nil {
		defer idx.Close(ctx) // nolint: errcheck
		fa, err := NewIndexed(in.Reader(ctx), idx.Reader(ctx))
		if err != nil {
			closer.Close() // nolint: errcheck
			return nil, nil, errors.Wrapf(err, "read index %s.fai", path)
		}
		log.Debug.Printf("fasta: using index %s.fai", path)
		return fa, closer, nil
	}
	var r io.Reader = in.Reader(ctx)
	if fileio.DetermineType(path) == fileio.Gzip || strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			closer.Close() // nolint: errcheck
			return nil, nil, errors.Wrapf(err, "gunzip %s", path)
		}
		r = gz
	}
	fa, err := New(r)
	if err != nil {
		closer.Close() // nolint: errcheck
		return nil, nil, errors.Wrapf(err, "read %s", path)
	}
	log.Printf("fasta: loaded %d sequences from %s", len(fa.SeqNames()), path)
	return fa, closer, nil
}

type fileCloser struct {
	ctx context.Context
	f   file.File
}

func (c *fileCloser) Close() error {
	return c.f.Close(c.ctx)
}
