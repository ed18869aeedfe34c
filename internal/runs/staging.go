package runs

import (
	"bufio"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
	"github.com/jonathan/bulk-plasmid-seq/internal/session"
	"github.com/jonathan/bulk-plasmid-seq/internal/upload"
)

// Staged describes one accepted upload.
type Staged struct {
	ServerID string `json:"serverId"`
	FileName string `json:"fileName"`
	// Original is set when the file was stored under a different name.
	Original string `json:"renamed,omitempty"`
}

// Stage stores r in the session serverID, creating a fresh session when
// serverID is empty. The name is reconciled against the files already in the
// session, so whitespace and duplicates never reach the disk.
//
// Uploads arrive one at a time and files already stored are never renamed, so
// the later arrival of a clashing pair is the one that gets a suffix. Uploading
// "plasmid a.fasta" before "plasmid_a.fasta" stores them as plasmid_a.fasta and
// plasmid_a_1.fasta. Whole batches known up front go through
// upload.ReconcileSet instead, which renumbers whitespace clashes before the
// name that needed no normalization.
func (s *Service) Stage(ctx context.Context, serverID, name string, r io.Reader) (*Staged, error) {
	if strings.TrimSpace(name) == "" {
		return nil, failure.Validationf("no file was uploaded")
	}
	base := filepath.Base(name)
	if base != name {
		return nil, failure.Validationf("invalid file name %q", name)
	}

	if serverID == "" {
		id, err := s.store.Create()
		if err != nil {
			return nil, err
		}
		serverID = id
	} else if err := s.store.Ensure(serverID); err != nil {
		return nil, err
	}

	unlock := s.store.Lock(serverID)
	defer unlock()

	existing, err := s.store.List(serverID)
	if err != nil {
		return nil, err
	}
	res := upload.Add(existing, name)
	if err := session.ValidateName(res.Name); err != nil {
		return nil, err
	}
	n, err := s.store.Save(serverID, res.Name, r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if rmErr := s.store.Remove(serverID, res.Name); rmErr != nil {
			log.Warnf(ctx, "failed to remove empty upload %s: %v", res.Name, rmErr)
		}
		return nil, failure.Validationf("uploaded file %q is empty", name)
	}

	staged := &Staged{ServerID: serverID, FileName: res.Name}
	if res.Renamed() {
		staged.Original = res.Original
	}
	log.Info(ctx, log.KV{K: "msg", V: "file staged"}, log.KV{K: "session_id", V: serverID},
		log.KV{K: "file", V: res.Name}, log.KV{K: "bytes", V: n})
	return staged, nil
}

// Delete removes one staged file, or the whole session when name is empty.
// Failures are logged and never reported.
func (s *Service) Delete(ctx context.Context, serverID, name string) {
	if err := session.ValidateID(serverID); err != nil {
		log.Warnf(ctx, "ignoring delete of invalid session %q", serverID)
		return
	}
	unlock := s.store.Lock(serverID)
	defer unlock()
	if err := s.store.Remove(serverID, name); err != nil {
		log.Warn(ctx, log.KV{K: "msg", V: "delete failed"}, log.KV{K: "session_id", V: serverID},
			log.KV{K: "file", V: name}, log.KV{K: "err", V: err.Error()})
	}
}

// CheckFormat reports whether a staged .fastq/.fq file really holds FASTQ,
// i.e. starts with '@'. Other extensions are accepted unchecked.
func (s *Service) CheckFormat(serverID, name string) (bool, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".fastq" && ext != ".fq" {
		if _, err := s.store.Path(serverID, name); err != nil {
			return false, err
		}
		return true, nil
	}
	f, err := s.store.Open(serverID, name)
	if err != nil {
		return false, err
	}
	defer f.Close()

	first, err := bufio.NewReader(f).ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, failure.Storage(err, "failed to read %s", name)
	}
	return first == '@', nil
}
