// Package compress decompresses gzip inputs in a session directory so the
// external pipeline only ever sees plain files.
package compress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"goa.design/clue/log"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
)

// DefaultParallelism bounds concurrent decompressions within one call.
const DefaultParallelism = 4

var suffixes = []string{".gz", ".gzip"}

// IsCompressed reports whether name carries a gzip suffix.
func IsCompressed(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) && len(name) > len(s) {
			return true
		}
	}
	return false
}

// StripCompression removes a trailing .gz or .gzip suffix.
func StripCompression(name string) string {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) && len(name) > len(s) {
			return name[:len(name)-len(s)]
		}
	}
	return name
}

// ExpectedNames maps names to their post-decompression form without touching disk.
func ExpectedNames(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = StripCompression(n)
	}
	return out
}

// Normalizer decompresses gzip files in place.
type Normalizer struct {
	Parallelism int
}

// NewNormalizer returns a Normalizer with the default parallelism.
func NewNormalizer() *Normalizer {
	return &Normalizer{Parallelism: DefaultParallelism}
}

// Normalize decompresses every compressed name in dir and returns the names
// with compression suffixes removed, in input order. It returns only after all
// decompression has finished, so callers may read the files immediately.
//
// A compressed file that is already gone while its plain counterpart exists is
// treated as decompressed by an earlier call. Decompression never replaces a
// different file: two names that expand to the same output, or a gzip whose
// content differs from an existing plain file of the same name, are rejected.
func (n *Normalizer) Normalize(ctx context.Context, dir string, names []string) ([]string, error) {
	out := ExpectedNames(names)
	seen := make(map[string]string, len(out))
	for i, name := range out {
		if prev, dup := seen[name]; dup {
			return nil, failure.Validationf("%s and %s both decompress to %s", prev, names[i], name)
		}
		seen[name] = names[i]
	}

	limit := n.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, name := range names {
		if !IsCompressed(name) {
			continue
		}
		src := filepath.Join(dir, name)
		dst := filepath.Join(dir, out[i])
		g.Go(func() error {
			return decompressFile(gctx, src, dst)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func decompressFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		if _, statErr := os.Stat(dst); statErr == nil {
			log.Debugf(ctx, "already decompressed: %s", filepath.Base(dst))
			return nil
		}
		return failure.NotFoundf("compressed file %s not found", filepath.Base(src))
	}
	if err != nil {
		return failure.Storage(err, "failed to open %s", filepath.Base(src))
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return failure.Storage(err, "%s is not valid gzip", filepath.Base(src))
	}
	defer zr.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return failure.Storage(err, "failed to stage %s", filepath.Base(dst))
	}
	_, err = io.Copy(tmp, &ctxReader{ctx: ctx, r: zr})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.Storage(err, "failed to decompress %s", filepath.Base(src))
	}
	if _, statErr := os.Stat(dst); statErr == nil {
		same, err := sameContent(tmp.Name(), dst)
		if err != nil || !same {
			_ = os.Remove(tmp.Name())
			if err != nil {
				return failure.Storage(err, "failed to compare %s", filepath.Base(dst))
			}
			return failure.Validationf("decompressing %s would overwrite existing %s", filepath.Base(src), filepath.Base(dst))
		}
		_ = os.Remove(tmp.Name())
		if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warnf(ctx, "could not remove %s after decompression: %v", filepath.Base(src), err)
		}
		log.Debugf(ctx, "already decompressed: %s", filepath.Base(dst))
		return nil
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return failure.Storage(err, "failed to place %s", filepath.Base(dst))
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf(ctx, "could not remove %s after decompression: %v", filepath.Base(src), err)
	}
	log.Info(ctx, log.KV{K: "msg", V: "decompressed"}, log.KV{K: "file", V: filepath.Base(dst)})
	return nil
}

// sameContent reports whether the files at a and b hold identical bytes.
func sameContent(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	sa, err := fa.Stat()
	if err != nil {
		return false, err
	}
	sb, err := fb.Stat()
	if err != nil {
		return false, err
	}
	if sa.Size() != sb.Size() {
		return false, nil
	}

	bufA := make([]byte, 32*1024)
	bufB := make([]byte, 32*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}
		if doneA || doneB {
			return doneA && doneB, nil
		}
	}
}

// ctxReader stops a long copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
