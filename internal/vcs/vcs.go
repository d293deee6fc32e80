// Package vcs resolves the current revision of a local working copy.
package vcs

import (
	"github.com/go-git/go-git/v5"
)

type RevisionReader interface {
	CurrentRevision(path string) (string, error)
}

type GitRevisionReader struct{}

func NewGitRevisionReader() *GitRevisionReader {
	return &GitRevisionReader{}
}

// CurrentRevision returns the hash HEAD points at. An unborn HEAD (fresh
// repository with no commits) is reported as an error by go-git and is
// treated like any other VCS failure by the caller.
func (g *GitRevisionReader) CurrentRevision(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}
