package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/compress"
	"github.com/jonathan/bulk-plasmid-seq/internal/fasta"
	"github.com/jonathan/bulk-plasmid-seq/internal/options"
	"github.com/jonathan/bulk-plasmid-seq/internal/types"
	"github.com/jonathan/bulk-plasmid-seq/internal/upload"
)

// ContentRenamer rewrites sequence record names inside renamed reference files
// so records from colliding uploads stay distinguishable.
type ContentRenamer interface {
	RenameContent(ctx context.Context, refDir string, renamed types.RenameMap) error
}

// FastaRenamer rewrites FASTA headers in place.
type FastaRenamer struct{}

// RenameContent renames records of every renamed FASTA file present in refDir.
// A record named after the file's original stem takes the new stem; any other
// record gets the same numeric suffix the file received. Running it again with
// the same map leaves the files unchanged.
func (FastaRenamer) RenameContent(ctx context.Context, refDir string, renamed types.RenameMap) error {
	names := make([]string, 0, len(renamed))
	for name := range renamed {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isReadFile(name) {
			continue
		}
		path := filepath.Join(refDir, compress.StripCompression(name))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		rename := RecordRenamer(renamed[name], name)
		n, err := fasta.RewriteHeaders(path, rename)
		if err != nil {
			return err
		}
		log.Debug(ctx, log.KV{K: "msg", V: "renamed records"},
			log.KV{K: "file", V: name}, log.KV{K: "records", V: n})
	}
	return nil
}

// RecordRenamer returns the record-ID mapping for a file renamed from original to renamed.
// A file whose name only changed by whitespace normalization gets no suffix, so
// only records named after the old stem change. IDs that already carry the
// suffix are left alone, which makes rewriting the same file twice a no-op.
func RecordRenamer(original, renamed string) func(id string) string {
	oldStem := options.StripReferenceName(original)
	normStem := upload.NormalizeName(oldStem)
	newStem := options.StripReferenceName(renamed)

	var suffix string
	switch {
	case newStem == normStem:
	case strings.HasPrefix(newStem, normStem):
		suffix = newStem[len(normStem):]
	default:
		suffix = "_" + newStem
	}

	return func(id string) string {
		switch {
		case id == oldStem || id == normStem || id == newStem:
			return newStem
		case suffix == "" || strings.HasSuffix(id, suffix):
			return id
		}
		return id + suffix
	}
}

func isReadFile(name string) bool {
	switch strings.ToLower(filepath.Ext(compress.StripCompression(name))) {
	case ".fastq", ".fq", ".fast5", ".bam":
		return true
	}
	return false
}

// ScriptRenamer delegates content renaming to an external script invoked as
// <script> <refDir> <renamed JSON>.
type ScriptRenamer struct {
	Runner Runner
	Python string
	Args   []string
	Script string
}

// RenameContent runs the rename script.
func (s ScriptRenamer) RenameContent(ctx context.Context, refDir string, renamed types.RenameMap) error {
	payload, err := json.Marshal(renamed)
	if err != nil {
		return err
	}
	args := append(append([]string{}, s.Args...), s.Script, dirArg(refDir), string(payload))
	_, err = s.Runner.Run(ctx, Command{Name: s.Python, Args: args})
	return err
}
