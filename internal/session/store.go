// Package session maps opaque session identifiers to directories of staged files.
// All access to staged files goes through a Store.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
)

const (
	idLow      = 1000000000
	idSpan     = 9000000000
	maxCreates = 16
)

// Store owns the session root directory.
type Store struct {
	root  string
	newID func() (string, error)

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates the root directory if needed and returns a Store over it.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, &StoreError{Message: "session root is empty"}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &StoreError{Message: fmt.Sprintf("failed to create session root %s", root), Cause: err}
	}
	return &Store{
		root:  root,
		newID: randomID,
		locks: make(map[string]*sessionLock),
	}, nil
}

// Root returns the session root directory.
func (s *Store) Root() string {
	return s.root
}

// randomID returns a 10-digit decimal identifier.
func randomID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(idSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+idLow), nil
}

// Create allocates a fresh session. Identifiers are checked against existing
// directories: os.Mkdir fails on an existing path, so a collision draws again.
func (s *Store) Create() (string, error) {
	for range maxCreates {
		id, err := s.newID()
		if err != nil {
			return "", failure.Storage(err, "failed to draw session id")
		}
		err = os.Mkdir(filepath.Join(s.root, id), 0o755)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", failure.Storage(err, "failed to create session %s", id)
		}
	}
	return "", failure.New(failure.KindStorage, "could not allocate a unique session id")
}

// Ensure creates the directory for a caller-supplied session id if missing.
func (s *Store) Ensure(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.root, id), 0o755); err != nil {
		return failure.Storage(err, "failed to create session %s", id)
	}
	return nil
}

// Exists reports whether the session directory is present.
func (s *Store) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(s.root, id))
	return err == nil && info.IsDir()
}

// Dir returns the directory of a session.
func (s *Store) Dir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

// Path returns the path of a file inside a session.
func (s *Store) Path(id, name string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id, name), nil
}

// List returns the regular file names in a session, sorted.
func (s *Store) List(id string) ([]string, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failure.NotFoundf("session %s not found", id)
		}
		return nil, failure.Storage(err, "failed to list session %s", id)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Save streams r into a file of the session, replacing any existing file.
func (s *Store) Save(id, name string, r io.Reader) (int64, error) {
	path, err := s.Path(id, name)
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".*.part")
	if err != nil {
		return 0, failure.Storage(err, "failed to stage %s", name)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, failure.Storage(err, "failed to write %s", name)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, failure.Storage(err, "failed to store %s", name)
	}
	return n, nil
}

// Open opens a file of the session for reading.
func (s *Store) Open(id, name string) (*os.File, error) {
	path, err := s.Path(id, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, failure.NotFoundf("file %s not found in session %s", name, id)
		}
		return nil, failure.Storage(err, "failed to open %s", name)
	}
	return f, nil
}

// Remove deletes one file, or the whole session when name is empty.
// Removing something that is already gone is not an error.
func (s *Store) Remove(id, name string) error {
	var (
		path string
		err  error
	)
	if name == "" {
		path, err = s.Dir(id)
	} else {
		path, err = s.Path(id, name)
	}
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return failure.Storage(err, "failed to remove %s", path)
	}
	return nil
}

// Lock takes the single-writer lock of every listed session and returns the
// release function. Locks are acquired in sorted order so two callers locking
// overlapping sets cannot deadlock.
func (s *Store) Lock(ids ...string) func() {
	uniq := make(map[string]struct{}, len(ids))
	ordered := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := uniq[id]; ok || id == "" {
			continue
		}
		uniq[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	held := make([]*sessionLock, 0, len(ordered))
	for _, id := range ordered {
		l := s.acquire(id)
		l.mu.Lock()
		held = append(held, l)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				s.release(ordered[i])
			}
		})
	}
}

func (s *Store) acquire(id string) *sessionLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	return l
}

func (s *Store) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
}

// ValidateID checks that id is a 10-digit decimal session identifier.
func ValidateID(id string) error {
	if len(id) != 10 {
		return failure.Validationf("invalid session id %q", id)
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return failure.Validationf("invalid session id %q", id)
		}
	}
	return nil
}

// ValidateName rejects names that could escape the session directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return failure.Validationf("invalid file name %q", name)
	}
	return nil
}
