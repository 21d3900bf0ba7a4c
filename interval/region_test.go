package interval

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region  string
		refName string
		start0  PosType
		end     PosType
	}{
		{
			"chr1:1-1000",
			"chr1",
			0,
			1000,
		},
		{
			"chr1:1000",
			"chr1",
			999,
			1000,
		},
		{
			"chr1:1,000-2,000",
			"chr1",
			999,
			2000,
		},
		{
			"chr1:7-7",
			"chr1",
			6,
			7,
		},
		{
			"chr1",
			"chr1",
			0,
			math.MaxInt32 - 1,
		},
	}

	for _, tt := range tests {
		result, err := ParseRegionString(tt.region)
		expect.NoError(t, err)
		expect.EQ(t, result.RefName, tt.refName)
		expect.EQ(t, result.Start0, tt.start0)
		expect.EQ(t, result.End, tt.end)
	}
}

func TestParseRegionStringErrors(t *testing.T) {
	for _, region := range []string{"", ":1-5", "chr1:0-5", "chr1:10-5", "chr1:x-5", "chr1:-3"} {
		_, err := ParseRegionString(region)
		expect.NotNil(t, err, "region %q", region)
	}
}

func TestEntryBounds(t *testing.T) {
	e, err := ParseRegionString("chr2:100-200")
	assert.NoError(t, err)
	expect.EQ(t, e.Left(), PosType(100))
	expect.EQ(t, e.Right(), PosType(200))
	expect.EQ(t, e.String(), "chr2:100-200")
}

func TestReadEntries(t *testing.T) {
	bed := "track name=x\n# comment\nchr1\t10\t20\n\nchr1\t15\t30\tname\nchr2\t0\t5\n"
	entries, err := ReadEntries(strings.NewReader(bed))
	assert.NoError(t, err)
	expect.EQ(t, entries, []Entry{
		{RefName: "chr1", Start0: 10, End: 20},
		{RefName: "chr1", Start0: 15, End: 30},
		{RefName: "chr2", Start0: 0, End: 5},
	})

	_, err = ReadEntries(strings.NewReader("chr1\t20\t10\n"))
	expect.NotNil(t, err)
	_, err = ReadEntries(strings.NewReader("chr1\t20\n"))
	expect.NotNil(t, err)
}

func TestLoadEntriesGzip(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	ctx := vcontext.Background()
	path := filepath.Join(tmpdir, "regions.bed.gz")
	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	gz := gzip.NewWriter(out.Writer(ctx))
	_, err = gz.Write([]byte("chr3\t99\t200\n"))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	assert.NoError(t, out.Close(ctx))

	entries, err := LoadEntries(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, entries, []Entry{{RefName: "chr3", Start0: 99, End: 200}})
}
