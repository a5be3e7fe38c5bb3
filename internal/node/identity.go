// Package node implements the cluster node registry: durable identity,
// self-registration, gauge emission and the liveness view of the cluster.
package node

import (
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// IdentityFileName is the name of the identity file inside the data directory.
const IdentityFileName = "node_id"

// Identity is the durable identifier of the local node. The zero value is not
// a valid identity; use ResolveIdentity to obtain one.
type Identity struct {
	id uuid.UUID
}

// UUID returns the underlying identifier.
func (i Identity) UUID() uuid.UUID { return i.id }

func (i Identity) String() string { return i.id.String() }

// IsZero reports whether the identity was never resolved.
func (i Identity) IsZero() bool { return i.id == uuid.Nil }

// ResolveIdentity reads the identity stored at path, or mints and persists a new
// one when the file does not exist. An unparseable file is never overwritten.
func ResolveIdentity(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id, parseErr := uuid.Parse(strings.TrimSpace(string(data)))
		if parseErr != nil {
			return Identity{}, errors.Wrapf(ErrCorruptIdentity, "%s: %v", path, parseErr)
		}
		log.Debug().Str("path", path).Str("node_id", id.String()).Msg("Node ID file exists")
		return Identity{id: id}, nil
	case errors.Is(err, os.ErrNotExist):
		return createIdentity(path)
	default:
		return Identity{}, errors.Wrapf(err, "could not read node ID file at %s", path)
	}
}

func createIdentity(path string) (Identity, error) {
	id := uuid.New()
	if err := writeIdentityFile(path, id); err != nil {
		return Identity{}, err
	}
	log.Info().Str("path", path).Str("node_id", id.String()).Msg("Created node ID")
	return Identity{id: id}, nil
}

func writeIdentityFile(path string, id uuid.UUID) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return errors.Wrap(ErrIdentityWriteConflict, path)
		}
		return errors.Wrapf(err, "could not write node ID file at %s", path)
	}
	if _, err := f.WriteString(id.String()); err != nil {
		f.Close()
		return errors.Wrapf(err, "could not write node ID file at %s", path)
	}
	return errors.Wrapf(f.Close(), "could not close node ID file at %s", path)
}

// IdentityFile resolves the identity at Path once and returns the same result
// for the rest of the process lifetime.
type IdentityFile struct {
	Path string

	once sync.Once
	id   Identity
	err  error
}

// Resolve returns the cached identity, resolving it on first use.
func (f *IdentityFile) Resolve() (Identity, error) {
	f.once.Do(func() {
		f.id, f.err = ResolveIdentity(f.Path)
	})
	return f.id, f.err
}
