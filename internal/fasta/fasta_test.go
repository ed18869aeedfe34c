package fasta

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRecords(t *testing.T) {
	input := ">p1 pUC19 backbone\nACGT\nacgt\n\n>p2\r\nTTTT\r\n"
	records, err := ReadRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "p1", records[0].ID)
	assert.Equal(t, "pUC19 backbone", records[0].Description)
	assert.Equal(t, "ACGTacgt", string(records[0].Seq))
	assert.Equal(t, "p2", records[1].ID)
	assert.Equal(t, "TTTT", string(records[1].Seq))
}

func TestReadRecords_DataBeforeHeader(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("ACGT\n>p1\nAC\n"))
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestConcatenate_PreservesRecordOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.fasta", ">a1\nAAAA\n>a2\nCCCC")
	b := writeFile(t, dir, "b.fasta", ">b1\nGG\n>b2\nTT\n>b3\nAC\n")
	out := filepath.Join(dir, "combined_ref_seqs.fasta")

	n, err := Concatenate(out, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	records, err := ReadFile(out)
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "b2", "b3"}, ids)
	assert.Equal(t, "CCCC", string(records[1].Seq), "missing trailing newline does not merge files")

	count, err := CountRecords(out)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestConcatenate_MissingSource(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "combined.fasta")
	_, err := Concatenate(out, []string{filepath.Join(dir, "nope.fasta")})
	assert.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRewriteHeaders(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ref_1.fasta", ">ref some description\nACGT\n>other\nGG\n")

	changed, err := RewriteHeaders(path, func(id string) string {
		if id == "ref" {
			return "ref_1"
		}
		return id
	})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ">ref_1 some description\nACGT\n>other\nGG\n", string(data))
}

func TestRewriteHeaders_NoChangeLeavesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ref.fasta", ">ref\nACGT\n")
	before, err := os.Stat(path)
	require.NoError(t, err)

	changed, err := RewriteHeaders(path, func(id string) string { return id })
	require.NoError(t, err)
	assert.Zero(t, changed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is cleaned up")
}
