package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewStore_EmptyRoot(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}

func TestCreate_TenDigitID(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Create()
	require.NoError(t, err)
	assert.Len(t, id, 10)
	assert.NoError(t, ValidateID(id))
	assert.True(t, store.Exists(id))
}

func TestCreate_RetriesOnCollision(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.Mkdir(filepath.Join(store.Root(), "1111111111"), 0o755))

	draws := []string{"1111111111", "1111111111", "2222222222"}
	store.newID = func() (string, error) {
		id := draws[0]
		draws = draws[1:]
		return id, nil
	}

	id, err := store.Create()
	require.NoError(t, err)
	assert.Equal(t, "2222222222", id)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.Mkdir(filepath.Join(store.Root(), "1111111111"), 0o755))
	store.newID = func() (string, error) { return "1111111111", nil }

	_, err := store.Create()
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindStorage))
}

func TestSaveListOpen(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create()
	require.NoError(t, err)

	_, err = store.Save(id, "b.fasta", strings.NewReader(">b\nACGT\n"))
	require.NoError(t, err)
	n, err := store.Save(id, "a.fasta", strings.NewReader(">a\nAC\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	names, err := store.List(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.fasta", "b.fasta"}, names)

	f, err := store.Open(id, "a.fasta")
	require.NoError(t, err)
	defer f.Close()

	_, err = store.Open(id, "missing.fasta")
	assert.True(t, failure.Is(err, failure.KindNotFound))
}

func TestList_MissingSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.List("1234567890")
	assert.True(t, failure.Is(err, failure.KindNotFound))
}

func TestRemove_BestEffort(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create()
	require.NoError(t, err)
	_, err = store.Save(id, "reads.fastq", strings.NewReader("@r\nA\n+\n!\n"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(id, "reads.fastq"))
	assert.NoError(t, store.Remove(id, "reads.fastq"), "removing a missing file is not an error")

	require.NoError(t, store.Remove(id, ""))
	assert.False(t, store.Exists(id))
	assert.NoError(t, store.Remove(id, ""))
}

func TestValidation(t *testing.T) {
	for _, id := range []string{"", "123", "12345678901", "12345abcde", "../../etc"} {
		assert.Error(t, ValidateID(id), id)
	}
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "../x"} {
		assert.Error(t, ValidateName(name), name)
	}
	assert.NoError(t, ValidateName("plasmid_a.fasta.gz"))

	store := newTestStore(t)
	_, err := store.Path("1234567890", "../escape")
	assert.True(t, failure.Is(err, failure.KindValidation))
}

func TestLock_SerializesWriters(t *testing.T) {
	store := newTestStore(t)

	unlock := store.Lock("1111111111", "2222222222")

	acquired := make(chan struct{})
	go func() {
		release := store.Lock("2222222222", "3333333333")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released")
	}
}

func TestLock_ConcurrentDisjoint(t *testing.T) {
	store := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := store.Lock("1111111111", "1111111111", "")
			release()
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.locks)
}
