package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"subledger/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestCheckpointRestoreDiscardsMutations(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	kept := crypto.Keccak256([]byte("kept"))
	dropped := crypto.Keccak256([]byte("dropped"))
	require.NoError(t, tr.Update(kept, []byte("a")))

	cp := tr.Checkpoint()
	before := tr.Hash()
	require.NoError(t, tr.Update(dropped, []byte("b")))
	require.NoError(t, tr.Update(kept, []byte("changed")))
	require.NotEqual(t, before, tr.Hash())

	tr.Restore(cp)
	require.Equal(t, before, tr.Hash())

	got, err := tr.Get(kept)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), got)
	got, err = tr.Get(dropped)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDeleteRemovesValue(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	key := crypto.Keccak256([]byte("gone"))
	require.NoError(t, tr.Update(key, []byte("x")))
	require.NoError(t, tr.Delete(key))
	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResetReloadsCommittedRoot(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	key := crypto.Keccak256([]byte("balance"))
	require.NoError(t, tr.Update(key, []byte("committed")))
	root, err := tr.Commit(tr.Root(), 1)
	require.NoError(t, err)

	require.NoError(t, tr.Update(key, []byte("pending")))
	require.NotEqual(t, root, tr.Hash())

	require.NoError(t, tr.Reset(root))
	require.Equal(t, root, tr.Hash())
	require.Equal(t, root, tr.Root())
	got, err := tr.Get(key)
	require.NoError(t, err)
	require.Equal(t, []byte("committed"), got)
}
