package sessionstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmynofan/blum-farming-bot/internal/domain/model"
)

func TestListMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"))
	phones, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, phones)
}

func TestSaveLoadList(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save("+628111", Record{Telegram: Telegram{Username: "alice", Token: "tg"}}))
	require.NoError(t, s.Save("628000", Record{WebAppData: "query_id=1"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	phones, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"628000", "628111"}, phones)

	rec, err := s.Load("628111")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Telegram.Username)
	_, ok := rec.Credential()
	assert.False(t, ok)
}

func TestLoadMissing(t *testing.T) {
	_, err := New(t.TempDir()).Load("1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveCredentialKeepsOtherFields(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Save("1", Record{Telegram: Telegram{Username: "bob"}, WebAppData: "wad"}))

	require.NoError(t, s.SaveCredential("1", model.Credential{Access: "a", Refresh: "r"}))
	rec, err := s.Load("1")
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Telegram.Username)
	assert.Equal(t, "wad", rec.WebAppData)
	cred, ok := rec.Credential()
	require.True(t, ok)
	assert.Equal(t, model.Credential{Access: "a", Refresh: "r"}, cred)

	assert.Error(t, s.SaveCredential("1", model.Credential{Access: "only"}))
	assert.ErrorIs(t, s.SaveCredential("2", model.Credential{Access: "a", Refresh: "r"}), ErrNotFound)
}
