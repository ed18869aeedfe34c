// Package upload decides the final on-disk names of files added to a session.
//
// Two rules apply, in order. Whitespace in a name becomes an underscore. A name
// that then duplicates another name in the session gets a _<n> suffix before its
// extension, n being the smallest positive integer that yields a free name.
// Compressed names keep the suffix ahead of the full extension, so seq.fasta.gz
// becomes seq_1.fasta.gz. A compressed name also clashes with the plain name it
// decompresses to, so seq.fasta.gz next to seq.fasta becomes seq_1.fasta.gz.
package upload

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/jonathan/bulk-plasmid-seq/internal/compress"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

// Result is the outcome of adding one file.
type Result struct {
	Original string `json:"original"`
	Name     string `json:"name"`
}

// Renamed reports whether the file ends up under a different name.
func (r Result) Renamed() bool {
	return r.Original != r.Name
}

// NormalizeName replaces every whitespace character with an underscore.
func NormalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
}

// splitExtension returns the root and the extension including its leading dot.
// A .gz or .gzip suffix pulls the preceding extension along with it.
func splitExtension(name string) (root, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	switch strings.ToLower(name[idx+1:]) {
	case "gz", "gzip":
		if j := strings.LastIndex(name[:idx], "."); j > 0 {
			idx = j
		}
	}
	return name[:idx], name[idx:]
}

// SuffixedName inserts _<n> between the root and the extension of name.
func SuffixedName(name string, n int) string {
	root, ext := splitExtension(name)
	return root + "_" + strconv.Itoa(n) + ext
}

// NextFreeName returns the first SuffixedName(name, n) for n = 1, 2, ... that is not taken.
func NextFreeName(name string, taken func(string) bool) string {
	for n := 1; ; n++ {
		candidate := SuffixedName(name, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// Add decides the name of one incoming file given the names already accepted
// into the session. Existing files are never renamed. Names are compared after
// decompression, so the result never overwrites another file once gzip inputs
// are expanded.
func Add(existing []string, incoming string) Result {
	keys := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		keys[compress.StripCompression(name)] = struct{}{}
	}
	taken := func(s string) bool {
		_, ok := keys[compress.StripCompression(s)]
		return ok
	}
	name := NormalizeName(incoming)
	if taken(name) {
		name = NextFreeName(name, taken)
	}
	return Result{Original: incoming, Name: name}
}

// ReconcileSet renames a whole batch of names in upload order and returns the
// final names (index-aligned with names) and the RenameMap.
//
// Duplicates that were identical on arrival keep the first occurrence and
// renumber later ones. Groups that only collide because whitespace was
// normalized renumber every member except the last, in array order.
func ReconcileSet(names []string) ([]string, types.RenameMap) {
	final := make([]string, len(names))
	counts := make(map[string]int, len(names))
	groups := make(map[string][]int)
	for i, name := range names {
		final[i] = NormalizeName(name)
		counts[final[i]]++
		groups[final[i]] = append(groups[final[i]], i)
	}

	rename := make([]bool, len(names))
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		if identicalOriginals(names, members) {
			for _, i := range members[1:] {
				rename[i] = true
			}
			continue
		}
		for _, i := range members[:len(members)-1] {
			rename[i] = true
		}
	}

	taken := func(s string) bool { return counts[s] > 0 }
	for i := range names {
		if !rename[i] {
			continue
		}
		next := NextFreeName(final[i], taken)
		counts[final[i]]--
		counts[next]++
		final[i] = next
	}

	renames := make(types.RenameMap)
	for i, name := range names {
		if final[i] != name {
			renames[final[i]] = name
		}
	}
	return final, renames
}

func identicalOriginals(names []string, members []int) bool {
	first := names[members[0]]
	for _, i := range members[1:] {
		if names[i] != first {
			return false
		}
	}
	return true
}
