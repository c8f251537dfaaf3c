package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	gconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/MrSnakeDoc/s1lag/internal/errs"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/utils"
)

// Git commits the record to a branch of a local repository without touching the
// worktree. The version is the branch head commit. With a Remote, reads fetch it
// first and writes push; a rejected non-fast-forward push is a version conflict.
type Git struct {
	Dir         string
	Branch      string
	Path        string
	Remote      string
	AuthorName  string
	AuthorEmail string

	mu   sync.Mutex
	repo *git.Repository
}

func OpenGit(dir, branch, filePath, remote, authorName, authorEmail string) (*Git, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errs.New(errs.StoreUnavailable, "open git "+dir, err)
	}
	return &Git{
		Dir:         dir,
		Branch:      branch,
		Path:        strings.Trim(path.Clean("/"+filePath), "/"),
		Remote:      remote,
		AuthorName:  authorName,
		AuthorEmail: authorEmail,
		repo:        repo,
	}, nil
}

// CloneGit works against url through an in-memory repository with "origin"
// pointing at it. Nothing is written to disk.
func CloneGit(url, branch, filePath, authorName, authorEmail string) (*Git, error) {
	repo, err := git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		return nil, errs.New(errs.StoreUnavailable, "init in-memory repository", err)
	}
	if _, err := repo.CreateRemote(&gconfig.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{url}}); err != nil {
		return nil, errs.New(errs.StoreUnavailable, "add remote "+url, err)
	}
	return &Git{
		Dir:         url,
		Branch:      branch,
		Path:        strings.Trim(path.Clean("/"+filePath), "/"),
		Remote:      git.DefaultRemoteName,
		AuthorName:  authorName,
		AuthorEmail: authorEmail,
		repo:        repo,
	}, nil
}

func (g *Git) Describe() string { return fmt.Sprintf("git:%s@%s:%s", g.Dir, g.Branch, g.Path) }

func (g *Git) branchRef() plumbing.ReferenceName { return plumbing.NewBranchReferenceName(g.Branch) }

func (g *Git) remoteRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(g.Remote, g.Branch)
}

// head returns the commit the record is read from: the remote-tracking branch
// when a remote is configured, the local branch otherwise. nil means no branch yet.
func (g *Git) head(ctx context.Context) (*plumbing.Reference, error) {
	name := g.branchRef()
	if g.Remote != "" {
		spec := gconfig.RefSpec(fmt.Sprintf("+%s:%s", g.branchRef(), g.remoteRef()))
		err := g.repo.FetchContext(ctx, &git.FetchOptions{RemoteName: g.Remote, RefSpecs: []gconfig.RefSpec{spec}})
		switch {
		case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		case errors.Is(err, git.NoMatchingRefSpecError{}), errors.Is(err, transport.ErrEmptyRemoteRepository):
			logger.Debug("remote %s has no branch %s yet", g.Remote, g.Branch)
		default:
			return nil, errs.New(errs.StoreUnavailable, "fetch "+g.Remote, err)
		}
		name = g.remoteRef()
	}

	ref, err := g.repo.Reference(name, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	return ref, nil
}

func (g *Git) Get(ctx context.Context) ([]byte, Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ref, err := g.head(ctx)
	if err != nil {
		return nil, NoVersion, err
	}
	if ref == nil {
		return nil, NoVersion, errs.Newf(errs.NotFound, g.Describe(), "branch %s does not exist", g.Branch)
	}

	commit, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	f, err := commit.File(g.Path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, NoVersion, errs.Newf(errs.NotFound, g.Describe(), "%s not in %s", g.Path, ref.Hash())
	}
	if err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}

	r, err := f.Reader()
	if err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	defer utils.Close(r)
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	return data, Version(ref.Hash().String()), nil
}

func (g *Git) Put(ctx context.Context, data []byte, expected Version, message string) (Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ref, err := g.head(ctx)
	if err != nil {
		return NoVersion, err
	}

	var (
		parents    []plumbing.Hash
		parentTree *object.Tree
		current    = NoVersion
	)
	if ref != nil {
		current = Version(ref.Hash().String())
		// A branch without the record file still has a version; creating the file
		// must then name it.
		commit, err := g.repo.CommitObject(ref.Hash())
		if err != nil {
			return NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
		}
		if parentTree, err = commit.Tree(); err != nil {
			return NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
		}
		parents = []plumbing.Hash{ref.Hash()}
		if _, ferr := commit.File(g.Path); errors.Is(ferr, object.ErrFileNotFound) && expected == NoVersion {
			expected = current
		}
	}
	if current != expected {
		return NoVersion, errs.Newf(errs.VersionConflict, g.Describe(), "expected %s, branch is at %s", expected.Short(), current.Short())
	}

	blob, err := g.writeBlob(data)
	if err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}
	tree, err := g.writeTree(parentTree, strings.Split(g.Path, "/"), blob)
	if err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}

	sig := object.Signature{Name: g.AuthorName, Email: g.AuthorEmail, When: time.Now()}
	commitHash, err := g.storeObject(&object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	})
	if err != nil {
		return NoVersion, errs.New(errs.StoreUnavailable, g.Describe(), err)
	}

	if err := g.advance(ctx, commitHash, ref); err != nil {
		return NoVersion, err
	}
	return Version(commitHash.String()), nil
}

// advance moves the branch to hash: compare-and-swap on the local ref, then push.
func (g *Git) advance(ctx context.Context, hash plumbing.Hash, parent *plumbing.Reference) error {
	next := plumbing.NewHashReference(g.branchRef(), hash)

	if g.Remote == "" {
		var old *plumbing.Reference
		if parent != nil {
			old = plumbing.NewHashReference(g.branchRef(), parent.Hash())
		}
		if err := g.repo.Storer.CheckAndSetReference(next, old); err != nil {
			if errors.Is(err, storage.ErrReferenceHasChanged) {
				return errs.New(errs.VersionConflict, g.Describe(), err)
			}
			return errs.New(errs.StoreUnavailable, g.Describe(), err)
		}
		return nil
	}

	prevLocal, _ := g.repo.Reference(g.branchRef(), true)
	if err := g.repo.Storer.SetReference(next); err != nil {
		return errs.New(errs.StoreUnavailable, g.Describe(), err)
	}

	spec := gconfig.RefSpec(fmt.Sprintf("%s:%s", g.branchRef(), g.branchRef()))
	err := g.repo.PushContext(ctx, &git.PushOptions{RemoteName: g.Remote, RefSpecs: []gconfig.RefSpec{spec}})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return g.repo.Storer.SetReference(plumbing.NewHashReference(g.remoteRef(), hash))
	}

	// the push failed: put the local branch back where it was
	if prevLocal != nil {
		_ = g.repo.Storer.SetReference(prevLocal)
	} else {
		_ = g.repo.Storer.RemoveReference(g.branchRef())
	}
	if errors.Is(err, git.ErrNonFastForwardUpdate) {
		return errs.New(errs.VersionConflict, "push "+g.Remote, err)
	}
	return errs.New(errs.StoreUnavailable, "push "+g.Remote, err)
}

func (g *Git) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := g.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return g.repo.Storer.SetEncodedObject(obj)
}

type encodable interface {
	Encode(plumbing.EncodedObject) error
}

func (g *Git) storeObject(o encodable) (plumbing.Hash, error) {
	obj := g.repo.Storer.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return g.repo.Storer.SetEncodedObject(obj)
}

// writeTree copies parent (may be nil) with parts replaced by blob, creating
// intermediate directories as needed.
func (g *Git) writeTree(parent *object.Tree, parts []string, blob plumbing.Hash) (plumbing.Hash, error) {
	name := parts[0]
	var entries []object.TreeEntry
	var existing *object.TreeEntry
	if parent != nil {
		for i := range parent.Entries {
			if parent.Entries[i].Name == name {
				existing = &parent.Entries[i]
				continue
			}
			entries = append(entries, parent.Entries[i])
		}
	}

	if len(parts) == 1 {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blob})
	} else {
		var sub *object.Tree
		if existing != nil && existing.Mode == filemode.Dir {
			t, err := g.repo.TreeObject(existing.Hash)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			sub = t
		}
		h, err := g.writeTree(sub, parts[1:], blob)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}

	// git orders tree entries as if directory names ended with '/'
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return key(entries[i]) < key(entries[j]) })

	return g.storeObject(&object.Tree{Entries: entries})
}
