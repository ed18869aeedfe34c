package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "plasmid_a.fasta", NormalizeName("plasmid a.fasta"))
	assert.Equal(t, "a__b.fq", NormalizeName("a \tb.fq"))
	assert.Equal(t, "clean.fasta", NormalizeName("clean.fasta"))
}

func TestSuffixedName(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		expected string
	}{
		{name: "a.fasta", n: 1, expected: "a_1.fasta"},
		{name: "seq.fasta.gz", n: 1, expected: "seq_1.fasta.gz"},
		{name: "seq.fq.gzip", n: 2, expected: "seq_2.fq.gzip"},
		{name: "seq.gz", n: 1, expected: "seq_1.gz"},
		{name: "README", n: 3, expected: "README_3"},
		{name: ".hidden", n: 1, expected: ".hidden_1"},
		{name: "my.plasmid.v2.fasta", n: 1, expected: "my.plasmid.v2_1.fasta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SuffixedName(tt.name, tt.n))
		})
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		incoming string
		expected string
	}{
		{name: "no clash", existing: []string{"a.fasta"}, incoming: "b.fasta", expected: "b.fasta"},
		{name: "clash", existing: []string{"a.fasta"}, incoming: "a.fasta", expected: "a_1.fasta"},
		{name: "smallest free suffix", existing: []string{"a.fasta", "a_1.fasta", "a_3.fasta"}, incoming: "a.fasta", expected: "a_2.fasta"},
		{name: "whitespace only", existing: nil, incoming: "my ref.fasta", expected: "my_ref.fasta"},
		{name: "whitespace then clash", existing: []string{"plasmid_a.fasta"}, incoming: "plasmid a.fasta", expected: "plasmid_a_1.fasta"},
		{name: "compressed", existing: []string{"seq.fasta.gz"}, incoming: "seq.fasta.gz", expected: "seq_1.fasta.gz"},
		{name: "compressed next to plain", existing: []string{"seq.fasta"}, incoming: "seq.fasta.gz", expected: "seq_1.fasta.gz"},
		{name: "plain next to compressed", existing: []string{"seq.fasta.gz"}, incoming: "seq.fasta", expected: "seq_1.fasta"},
		{name: "decompressed suffix taken", existing: []string{"seq.fasta", "seq_1.fasta"}, incoming: "seq.fasta.gz", expected: "seq_2.fasta.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Add(tt.existing, tt.incoming)
			assert.Equal(t, tt.incoming, res.Original)
			assert.Equal(t, tt.expected, res.Name)
			assert.Equal(t, tt.expected != tt.incoming, res.Renamed())
		})
	}
}

func TestReconcileSet_WhitespaceCollision(t *testing.T) {
	final, renames := ReconcileSet([]string{"plasmid a.fasta", "plasmid_a.fasta"})

	assert.Equal(t, []string{"plasmid_a_1.fasta", "plasmid_a.fasta"}, final)
	assert.Equal(t, types.RenameMap{"plasmid_a_1.fasta": "plasmid a.fasta"}, renames)
}

func TestReconcileSet_PlainDuplicatesKeepFirst(t *testing.T) {
	final, renames := ReconcileSet([]string{"a.fasta", "b.fasta", "a.fasta", "a.fasta"})

	assert.Equal(t, []string{"a.fasta", "b.fasta", "a_1.fasta", "a_2.fasta"}, final)
	assert.Equal(t, types.RenameMap{"a_1.fasta": "a.fasta", "a_2.fasta": "a.fasta"}, renames)
}

func TestReconcileSet_SuffixAvoidsExistingNames(t *testing.T) {
	final, _ := ReconcileSet([]string{"a.fasta", "a.fasta", "a_1.fasta"})
	assert.Equal(t, []string{"a.fasta", "a_2.fasta", "a_1.fasta"}, final)
}

func TestReconcileSet_CompressedDuplicates(t *testing.T) {
	final, renames := ReconcileSet([]string{"seq.fasta.gz", "seq.fasta.gz"})
	assert.Equal(t, []string{"seq.fasta.gz", "seq_1.fasta.gz"}, final)
	assert.Equal(t, types.RenameMap{"seq_1.fasta.gz": "seq.fasta.gz"}, renames)
}

func TestReconcileSet_NoChanges(t *testing.T) {
	final, renames := ReconcileSet([]string{"a.fasta", "b.fasta"})
	assert.Equal(t, []string{"a.fasta", "b.fasta"}, final)
	assert.Empty(t, renames)

	final, renames = ReconcileSet(nil)
	assert.Empty(t, final)
	assert.Empty(t, renames)
}
