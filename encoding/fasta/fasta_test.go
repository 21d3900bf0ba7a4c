package fasta_test

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/readview/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const (
	fastaData  = ">seq1\n" + "ACGTA\nCGTAC\nGT\n" + ">seq2 A viral sequence\n" + "acgt\n" + "ACGT\n"
	fastaIndex = "seq1\t12\t6\t5\t6\n" + "seq2\t8\t44\t4\t5\n"
)

func newFastas(t *testing.T) map[string]fasta.Fasta {
	unindexed, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	indexed, err := fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader(fastaIndex))
	assert.NoError(t, err)
	return map[string]fasta.Fasta{"unindexed": unindexed, "indexed": indexed}
}

func TestGet(t *testing.T) {
	tests := []struct {
		seq        string
		start, end uint64
		want       string
		err        bool
	}{
		{"seq1", 1, 2, "C", false},
		{"seq1", 1, 6, "CGTAC", false},
		{"seq1", 0, 12, "ACGTACGTACGT", false},
		{"seq1", 10, 12, "GT", false},
		{"seq2", 0, 8, "acgtACGT", false},
		{"seq2", 2, 5, "gtA", false},
		{"seq0", 0, 1, "", true},
		{"seq1", 10, 13, "", true},
		{"seq1", 4, 3, "", true},
	}
	for name, fa := range newFastas(t) {
		for _, tt := range tests {
			got, err := fa.Get(tt.seq, tt.start, tt.end)
			msg := fmt.Sprintf("%s: %s[%d,%d)", name, tt.seq, tt.start, tt.end)
			expect.EQ(t, err != nil, tt.err, msg)
			expect.EQ(t, got, tt.want, msg)
		}
	}
}

func TestWindow(t *testing.T) {
	for name, fa := range newFastas(t) {
		s, err := fasta.Window(fa, "seq2", 2, 6)
		assert.NoError(t, err, name)
		expect.EQ(t, s, "CGTAC", name)

		_, err = fasta.Window(fa, "seq2", 0, 6)
		expect.True(t, err != nil, name)

		s, start, err := fasta.ClippedWindow(fa, "seq1", -3, 3)
		assert.NoError(t, err, name)
		expect.EQ(t, start, 1, name)
		expect.EQ(t, s, "ACG", name)

		s, start, err = fasta.ClippedWindow(fa, "seq1", 11, 40)
		assert.NoError(t, err, name)
		expect.EQ(t, start, 11, name)
		expect.EQ(t, s, "GT", name)

		s, _, err = fasta.ClippedWindow(fa, "seq1", 13, 40)
		assert.NoError(t, err, name)
		expect.EQ(t, s, "", name)
	}
}

func TestLenAndNames(t *testing.T) {
	for name, fa := range newFastas(t) {
		n, err := fa.Len("seq1")
		assert.NoError(t, err, name)
		expect.EQ(t, n, uint64(12), name)
		n, err = fa.Len("seq2")
		assert.NoError(t, err, name)
		expect.EQ(t, n, uint64(8), name)
		_, err = fa.Len("seq0")
		expect.True(t, err != nil, name)
		expect.EQ(t, fa.SeqNames(), []string{"seq1", "seq2"}, name)
	}
	lengths, err := fasta.FaiToReferenceLengths(strings.NewReader(fastaIndex))
	assert.NoError(t, err)
	expect.EQ(t, lengths, map[string]uint64{"seq1": 12, "seq2": 8})
}

func TestMalformed(t *testing.T) {
	for _, data := range []string{"ACGT\n>seq1\nACGT\n", ">\nACGT\n", ">a\nAC\n>a\nGT\n"} {
		_, err := fasta.New(strings.NewReader(data))
		expect.True(t, err != nil, data)
	}
	_, err := fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader("seq1\t12\n"))
	expect.True(t, err != nil)
}

func TestGenerateIndex(t *testing.T) {
	var out bytes.Buffer
	assert.NoError(t, fasta.GenerateIndex(&out, strings.NewReader(fastaData)))
	expect.EQ(t, out.String(), fastaIndex)

	out.Reset()
	expect.True(t, fasta.GenerateIndex(&out, strings.NewReader("")) != nil)
	out.Reset()
	expect.True(t, fasta.GenerateIndex(&out, strings.NewReader(">a\nAC\nACGT\n")) != nil)
}

func TestOpen(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	write := func(path string, data []byte) {
		f, err := file.Create(ctx, path)
		assert.NoError(t, err)
		_, err = f.Writer(ctx).Write(data)
		assert.NoError(t, err)
		assert.NoError(t, f.Close(ctx))
	}
	plain := filepath.Join(tmpDir, "ref.fa")
	write(plain, []byte(fastaData))
	indexed := filepath.Join(tmpDir, "indexed.fa")
	write(indexed, []byte(fastaData))
	write(indexed+".fai", []byte(fastaIndex))
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(fastaData))
	assert.NoError(t, err)
	assert.NoError(t, zw.Close())
	compressed := filepath.Join(tmpDir, "ref.fa.gz")
	write(compressed, gz.Bytes())

	for _, path := range []string{plain, indexed, compressed} {
		fa, closer, err := fasta.Open(ctx, path)
		assert.NoError(t, err, path)
		s, err := fasta.Window(fa, "seq1", 5, 7)
		assert.NoError(t, err, path)
		expect.EQ(t, s, "ACG", path)
		assert.NoError(t, closer.Close())
	}
	_, _, err = fasta.Open(ctx, filepath.Join(tmpDir, "missing.fa"))
	expect.True(t, err != nil)
}
