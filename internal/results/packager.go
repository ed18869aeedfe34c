package results

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/session"
)

// DefaultLabel prefixes archive names.
const DefaultLabel = "bulkPlasmidSeq"

// Archive identifies a packaged results archive.
type Archive struct {
	ServerID string `json:"serverId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Entries  int    `json:"entries"`
}

// Packager archives result sessions into fresh sessions.
type Packager struct {
	store *session.Store
	label string
}

// NewPackager creates a packager; an empty label uses DefaultLabel.
func NewPackager(store *session.Store, label string) *Packager {
	if label == "" {
		label = DefaultLabel
	}
	return &Packager{store: store, label: label}
}

// ArchiveName returns the archive file name for a result session.
func (p *Packager) ArchiveName(resultID string) string {
	return fmt.Sprintf("%s_%s_results.tar.gz", p.label, resultID)
}

// Package writes every file of the result session into a gzip-compressed tar
// inside a newly created session. The source session is never modified.
func (p *Packager) Package(ctx context.Context, resultID string) (*Archive, error) {
	if err := session.ValidateID(resultID); err != nil {
		return nil, err
	}
	srcDir, err := p.store.Dir(resultID)
	if err != nil {
		return nil, err
	}
	if !p.store.Exists(resultID) {
		return nil, failure.NotFoundf("result session %s not found", resultID)
	}

	archiveID, err := p.store.Create()
	if err != nil {
		return nil, err
	}
	unlock := p.store.Lock(resultID, archiveID)
	defer unlock()

	name := p.ArchiveName(resultID)
	dst, err := p.store.Path(archiveID, name)
	if err != nil {
		return nil, err
	}

	entries, size, err := writeArchive(ctx, dst, srcDir, resultID)
	if err != nil {
		if rmErr := p.store.Remove(archiveID, ""); rmErr != nil {
			log.Warnf(ctx, "failed to remove incomplete archive session %s: %v", archiveID, rmErr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.Storage(err, "error preparing results archive")
	}

	log.Info(ctx, log.KV{K: "msg", V: "results packaged"},
		log.KV{K: "session_id", V: resultID}, log.KV{K: "archive_session", V: archiveID},
		log.KV{K: "entries", V: entries}, log.KV{K: "bytes", V: size})

	return &Archive{ServerID: archiveID, FileName: name, Size: size, Entries: entries}, nil
}

// writeArchive tars srcDir under the prefix directory into dst.
func writeArchive(ctx context.Context, dst, srcDir, prefix string) (int, int64, error) {
	tmp := dst + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, 0, &ArchiveError{Message: "failed to create archive", Path: tmp, Cause: err}
	}
	defer func() { _ = os.Remove(tmp) }()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	entries := 0
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		entries++
		if info.IsDir() {
			return nil
		}
		return copyFile(tw, path)
	})

	closeErr := tw.Close()
	if err := gz.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if err := f.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if walkErr != nil {
		return 0, 0, &ArchiveError{Message: "failed to archive result session", Path: srcDir, Cause: walkErr}
	}
	if closeErr != nil {
		return 0, 0, &ArchiveError{Message: "failed to finish archive", Path: tmp, Cause: closeErr}
	}

	st, err := os.Stat(tmp)
	if err != nil {
		return 0, 0, &ArchiveError{Message: "failed to stat archive", Path: tmp, Cause: err}
	}
	if err := os.Rename(tmp, dst); err != nil {
		return 0, 0, &ArchiveError{Message: "failed to move archive into place", Path: dst, Cause: err}
	}
	return entries, st.Size(), nil
}

func copyFile(w io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}
