package node

import "github.com/pkg/errors"

var (
	// ErrCorruptIdentity is returned when the identity file exists but does not hold a UUID.
	ErrCorruptIdentity = errors.New("node identity file is corrupt")
	// ErrIdentityWriteConflict is returned when the identity file appeared while we were creating it.
	ErrIdentityWriteConflict = errors.New("node identity file was created concurrently")
	// ErrNotInitialized is returned when registration is set up without a resolved identity.
	ErrNotInitialized = errors.New("node identity not initialized")
	// ErrStoreUnavailable wraps any failure talking to the shared registry store.
	ErrStoreUnavailable = errors.New("node store unavailable")
)

func storeError(err error, op string) error {
	return errors.Wrapf(ErrStoreUnavailable, "%s: %v", op, err)
}
