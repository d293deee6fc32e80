package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	repo, err := git.PlainOpen(dir)
	if err != nil {
		repo, err = git.PlainInit(dir, false)
		require.NoError(t, err)
	}
	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err = wt.Add(name)
	require.NoError(t, err)

	hash, err := wt.Commit("commit "+name, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "tester",
			Email: "tester@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestGitRevisionReader_CurrentRevision(t *testing.T) {
	t.Run("success - returns the hash HEAD points at", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		first := commitFile(t, dir, "a.txt", "a")

		// act
		reader := NewGitRevisionReader()
		revision, err := reader.CurrentRevision(dir)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, first, revision)

		// a new commit moves the revision
		second := commitFile(t, dir, "b.txt", "b")
		revision, err = reader.CurrentRevision(dir)
		assert.NoError(t, err)
		assert.Equal(t, second, revision)
		assert.NotEqual(t, first, second)
	})

	t.Run("fail - not a repository", func(t *testing.T) {
		// act
		reader := NewGitRevisionReader()
		_, err := reader.CurrentRevision(t.TempDir())

		// assert
		assert.Error(t, err)
	})

	t.Run("fail - repository with no commits", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		_, err := git.PlainInit(dir, false)
		require.NoError(t, err)

		// act
		reader := NewGitRevisionReader()
		_, err = reader.CurrentRevision(dir)

		// assert
		assert.Error(t, err)
	})
}
