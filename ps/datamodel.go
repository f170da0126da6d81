package ps

import (
	"context"
	"io"
	"os"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
	"github.com/go-git/go-git/v6/plumbing/transport/ssh"
	"github.com/go-git/go-git/v6/storage/memory"
	"github.com/nickyhof/TenantDB/core"
	"github.com/pkg/errors"
)

// DefaultDatamodelFile is read from a repository when no file is named.
const DefaultDatamodelFile = "datamodel.json"

// AuthType defines the type of authentication
type AuthType string

const (
	AuthTypeNone  AuthType = "none"
	AuthTypeToken AuthType = "token"
	AuthTypeSSH   AuthType = "ssh"
	AuthTypeBasic AuthType = "basic"
)

// RemoteAuth holds authentication for fetching a datamodel repository.
type RemoteAuth struct {
	Type       AuthType
	Token      string // For token auth
	KeyPath    string // For SSH key auth
	Passphrase string // For SSH key with passphrase
	Username   string // For basic auth
	Password   string // For basic auth
}

func (auth *RemoteAuth) authMethod() (transport.AuthMethod, error) {
	if auth == nil {
		return nil, nil
	}

	switch auth.Type {
	case AuthTypeNone, "":
		return nil, nil

	case AuthTypeToken:
		// Token auth uses username "git" or any non-empty string
		return &http.BasicAuth{
			Username: "git",
			Password: auth.Token,
		}, nil

	case AuthTypeSSH:
		keyPath := auth.KeyPath
		if keyPath == "" {
			home, _ := os.UserHomeDir()
			keyPath = home + "/.ssh/id_rsa"
		}
		return ssh.NewPublicKeysFromFile("git", keyPath, auth.Passphrase)

	case AuthTypeBasic:
		return &http.BasicAuth{
			Username: auth.Username,
			Password: auth.Password,
		}, nil

	default:
		return nil, errors.Errorf("unknown auth type: %s", auth.Type)
	}
}

// LoadDatamodelFile parses a datamodel from a local JSON file.
func LoadDatamodelFile(path string) (*core.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read datamodel")
	}
	schema, err := core.ParseDatamodel(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse datamodel %s", path)
	}
	return schema, nil
}

// LoadDatamodelGit clones url into memory and parses file from it. ref is a
// branch or tag name; empty means the remote HEAD.
func LoadDatamodelGit(ctx context.Context, url, ref, file string, auth *RemoteAuth) (*core.Schema, error) {
	if file == "" {
		file = DefaultDatamodelFile
	}
	method, err := auth.authMethod()
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure auth")
	}

	var candidates []plumbing.ReferenceName
	if ref == "" {
		candidates = []plumbing.ReferenceName{""}
	} else {
		candidates = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(ref),
			plumbing.NewTagReferenceName(ref),
		}
	}

	var lastErr error
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wt := memfs.New()
		_, err := git.Clone(memory.NewStorage(), wt, &git.CloneOptions{
			URL:           url,
			Auth:          method,
			ReferenceName: name,
			SingleBranch:  name != "",
		})
		if err != nil {
			lastErr = err
			continue
		}

		f, err := wt.Open(file)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s in %s", file, url)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s in %s", file, url)
		}
		schema, err := core.ParseDatamodel(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parse datamodel %s", file)
		}
		return schema, nil
	}
	return nil, errors.Wrapf(lastErr, "failed to clone datamodel repository '%s'", url)
}
