// Package status persists business documents, artifacts and the subdomain
// reverse index, and publishes every status change to subscribers.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/repository"
)

// Publisher receives the status view of every stored business document.
type Publisher interface {
	Publish(businessID string, v any)
}

// Store is the status store backed by a repository.KV.
type Store struct {
	kv        repository.KV
	publisher Publisher
	locks     *KeyedMutex
	retries   uint64
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Store. retries bounds the extra attempts of each write;
// publisher may be nil.
func New(kv repository.KV, publisher Publisher, retries int, logger *slog.Logger) *Store {
	if retries < 0 {
		retries = 0
	}
	return &Store{
		kv:        kv,
		publisher: publisher,
		locks:     NewKeyedMutex(),
		retries:   uint64(retries),
		interval:  50 * time.Millisecond,
		logger:    logger.With("component", "status"),
		now:       time.Now,
	}
}

// Get loads the document of a business.
func (s *Store) Get(ctx context.Context, businessID string) (domain.BusinessDocument, error) {
	var doc domain.BusinessDocument
	if err := s.getJSON(ctx, repository.BusinessKey(businessID), &doc); err != nil {
		return domain.BusinessDocument{}, err
	}
	return doc, nil
}

// Put replaces the document of a business and publishes its view.
func (s *Store) Put(ctx context.Context, doc domain.BusinessDocument) error {
	unlock := s.locks.Lock(repository.BusinessKey(doc.Business.ID))
	defer unlock()
	return s.put(ctx, doc)
}

// Update loads, mutates and writes back a business document under the
// business key lock. Mutations returning an error abort the write.
func (s *Store) Update(ctx context.Context, businessID string, mutate func(*domain.BusinessDocument) error) (domain.BusinessDocument, error) {
	unlock := s.locks.Lock(repository.BusinessKey(businessID))
	defer unlock()

	doc, err := s.Get(ctx, businessID)
	if err != nil {
		return domain.BusinessDocument{}, err
	}
	if err := mutate(&doc); err != nil {
		return domain.BusinessDocument{}, err
	}
	if err := s.put(ctx, doc); err != nil {
		return domain.BusinessDocument{}, err
	}
	return doc, nil
}

func (s *Store) put(ctx context.Context, doc domain.BusinessDocument) error {
	if doc.Business.ID == "" {
		return errors.New("business id required")
	}
	now := s.now().UTC()
	doc.Deployment.BusinessID = doc.Business.ID
	doc.Deployment.UpdatedAt = now
	if doc.Deployment.CreatedAt.IsZero() {
		doc.Deployment.CreatedAt = now
	}
	if err := s.putJSON(ctx, repository.BusinessKey(doc.Business.ID), doc); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.Publish(doc.Business.ID, Project(doc, now))
	}
	return nil
}

// GetBySubdomain resolves a subdomain through the reverse index.
func (s *Store) GetBySubdomain(ctx context.Context, subdomain string) (domain.BusinessDocument, error) {
	owner, err := s.SubdomainOwner(ctx, subdomain)
	if err != nil {
		return domain.BusinessDocument{}, err
	}
	if owner == "" {
		return domain.BusinessDocument{}, repository.ErrNotFound
	}
	return s.Get(ctx, owner)
}

// SubdomainOwner returns the business holding subdomain, or "" when it is free.
func (s *Store) SubdomainOwner(ctx context.Context, subdomain string) (string, error) {
	var owner string
	err := s.getJSON(ctx, repository.SubdomainKey(subdomain), &owner)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	return owner, err
}

// ClaimSubdomain reserves subdomain for businessID. It reports false when
// another business holds it; re-claiming an owned name succeeds.
func (s *Store) ClaimSubdomain(ctx context.Context, subdomain, businessID string) (bool, error) {
	key := repository.SubdomainKey(subdomain)
	value, err := json.Marshal(businessID)
	if err != nil {
		return false, err
	}
	var stored bool
	err = s.retry(ctx, func() error {
		var err error
		stored, err = s.kv.PutIfAbsent(ctx, key, value)
		return err
	})
	if err != nil {
		return false, &domain.PersistenceError{Key: key, Err: err}
	}
	if stored {
		return true, nil
	}
	owner, err := s.SubdomainOwner(ctx, subdomain)
	if err != nil {
		return false, err
	}
	return owner == businessID, nil
}

// ReleaseSubdomain drops the reverse index entry when businessID owns it.
func (s *Store) ReleaseSubdomain(ctx context.Context, subdomain, businessID string) error {
	owner, err := s.SubdomainOwner(ctx, subdomain)
	if err != nil || owner != businessID {
		return err
	}
	key := repository.SubdomainKey(subdomain)
	if err := s.retry(ctx, func() error { return s.kv.Delete(ctx, key) }); err != nil {
		return &domain.PersistenceError{Key: key, Err: err}
	}
	return nil
}

// GetArtifact loads the current artifact of a business.
func (s *Store) GetArtifact(ctx context.Context, businessID string) (domain.SiteArtifact, error) {
	var artifact domain.SiteArtifact
	if err := s.getJSON(ctx, repository.ArtifactKey(businessID), &artifact); err != nil {
		return domain.SiteArtifact{}, err
	}
	return artifact, nil
}

// PutArtifact replaces the current artifact of a business.
func (s *Store) PutArtifact(ctx context.Context, artifact domain.SiteArtifact) error {
	if artifact.BusinessID == "" {
		return errors.New("business id required")
	}
	return s.putJSON(ctx, repository.ArtifactKey(artifact.BusinessID), artifact)
}

// ListByStatus returns every business document currently in status.
func (s *Store) ListByStatus(ctx context.Context, status string) ([]domain.BusinessDocument, error) {
	entries, err := s.kv.List(ctx, repository.PrefixBusiness)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	docs := make([]domain.BusinessDocument, 0)
	for _, entry := range entries {
		var doc domain.BusinessDocument
		if err := json.Unmarshal(entry.Value, &doc); err != nil {
			s.logger.Warn("skipping unreadable document", "key", entry.Key, "error", err)
			continue
		}
		if doc.Deployment.Status == status {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.retry(ctx, func() error { return s.kv.Put(ctx, key, raw) }); err != nil {
		s.logger.Error("status write failed", "key", key, "error", err)
		return &domain.PersistenceError{Key: key, Err: err}
	}
	return nil
}

func (s *Store) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.interval
	policy.MaxInterval = 20 * s.interval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, s.retries), ctx))
}
