package seqio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastq(id, seq string) string {
	return "@" + id + " runid=abc\n" + seq + "\n+\n" + strings.Repeat("I", len(seq)) + "\n"
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	writeFile(t, path, buf.String())
}

func TestFASTQReader(t *testing.T) {
	input := fastq("r1", "ACGT") + "\n" + fastq("r2", "GG")
	fr := NewFASTQReader(strings.NewReader(input))

	r, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "r1 runid=abc", r.Header)
	assert.Equal(t, "r1", r.ID())
	assert.Equal(t, "ACGT", r.Seq)

	r, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "GG", r.Seq)

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFASTQReader_Malformed(t *testing.T) {
	_, err := NewFASTQReader(strings.NewReader("r1\nACGT\n+\nIIII\n")).Next()
	assert.ErrorContains(t, err, "expected '@'")

	_, err = NewFASTQReader(strings.NewReader("@r1\nACGT\n")).Next()
	assert.ErrorContains(t, err, "truncated")
}

func TestMergeFASTQ(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "barcode01")
	writeFile(t, filepath.Join(in, "b.fastq"), fastq("b1", "AAAAAA")+fastq("b2", "AA"))
	writeGzip(t, filepath.Join(in, "a.fastq.gz"), fastq("a1", "CCCCCCC"))
	writeFile(t, filepath.Join(in, "notes.txt"), "ignored")
	out := filepath.Join(dir, "merged.P.01.fastq")

	stats, err := MergeFASTQ(in, out, 5)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Files: 2, Reads: 3, Kept: 2}, stats)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		"@a1 runid=abc\nCCCCCCC\n+\nIIIIIII\n@b1 runid=abc\nAAAAAA\n+\nIIIIII\n",
		string(data))

	leftovers, err := filepath.Glob(out + ".tmp-*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestMergeFASTQ_NoReads(t *testing.T) {
	dir := t.TempDir()
	_, err := MergeFASTQ(dir, filepath.Join(dir, "merged.fastq"), 0)
	assert.ErrorContains(t, err, "no fastq files")

	_, err = MergeFASTQ(filepath.Join(dir, "missing"), filepath.Join(dir, "merged.fastq"), 0)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "merged.fastq"))
}

func TestFASTAReader_MultiLine(t *testing.T) {
	input := ">chrI desc\nACGT\nAC\n\n>chrII\nGGG\n>empty\n"
	fr := NewFASTAReader(strings.NewReader(input))

	var got []Record
	for {
		rec, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "chrI", got[0].Name())
	assert.Equal(t, "ACGTAC", got[0].Seq)
	assert.Equal(t, "GGG", got[1].Seq)
	assert.Equal(t, "", got[2].Seq)
}

func TestFASTAReader_RejectsMissingHeader(t *testing.T) {
	_, err := NewFASTAReader(strings.NewReader("ACGT\n")).Next()
	assert.Error(t, err)
}

func TestFASTQToFASTAAndCount(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "merged.P.01.fastq")
	writeFile(t, in, fastq("r1", "ACGT")+fastq("r2", "TTTT")+fastq("r3", "GGGG"))
	out := filepath.Join(dir, "merged.P.01.fasta")

	n, err := FASTQToFASTA(in, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := CountFASTA(out)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), ">r1 runid=abc\nACGT\n"))
}

func TestReadLengths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "X.fa")
	writeFile(t, path, ">chrI\nACGTACGT\nAC\n>chrmt\nAAA\n")

	lengths, err := ReadLengths(path)
	require.NoError(t, err)
	assert.Equal(t, []SeqLength{{"chrI", 10}, {"chrmt", 3}}, lengths)
	assert.Equal(t, 13, TotalLength(lengths))
}

func TestPositiveTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "RCC.P.01.X.positive")
	recs := []SequenceRecord{
		{RepeatSize: 120, FullID: "0f3c2a91-aaaa", Sequence: "ACGT"},
		{RepeatSize: 7, FullID: "0f3c2a91-bbbb", Sequence: "GG"},
	}
	require.NoError(t, WritePositive(path, recs))

	got, err := ReadPositive(path)
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	n, err := CountPositive(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPositiveTable_HeaderOnlyAndMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.positive")
	require.NoError(t, WritePositive(path, nil))

	got, err := ReadPositive(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := CountPositive(filepath.Join(dir, "missing.positive"))
	require.NoError(t, err)
	assert.Zero(t, n)

	writeFile(t, path, PositiveHeader+"\nnot-a-number\tr1\tACGT\n")
	_, err = ReadPositive(path)
	assert.ErrorContains(t, err, "bad repeat size")
}
