package repository

import (
	"context"
	"time"

	"github.com/splax/sitepress/internal/domain"
)

// Key namespaces of the persisted state layout.
const (
	PrefixBusiness  = "business:"
	PrefixSubdomain = "subdomain:"
	PrefixArtifact  = "artifact:"
)

// BusinessKey returns the document key for a business id.
func BusinessKey(id string) string { return PrefixBusiness + id }

// SubdomainKey returns the reverse index key for a subdomain.
func SubdomainKey(name string) string { return PrefixSubdomain + name }

// ArtifactKey returns the key of the current artifact for a business id.
func ArtifactKey(id string) string { return PrefixArtifact + id }

// Entry is a stored key/value pair.
type Entry struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// KV is the persistence boundary for pipeline state. Values are whole
// documents; there are no partial updates.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent stores value only when key is unset and reports whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// ArtifactArchive keeps immutable copies of every artifact version.
type ArtifactArchive interface {
	Archive(ctx context.Context, artifact domain.SiteArtifact) error
}
