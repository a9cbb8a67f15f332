package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/exp/slog"
)

// ObjectRef identifies a remote object. The ID is opaque and
// assigned by the backend.
type ObjectRef struct {
	ID        string
	Name      string
	Container string
}

// Backend is a remote file store. Implementations classify their
// failures with Kind (auth, transient, not found).
type Backend interface {
	// Find returns the first non-trashed object called name in
	// container. A missing object is a KindNotFound error.
	Find(ctx context.Context, container, name string) (ObjectRef, error)
	Create(ctx context.Context, container, name string, r io.Reader, mimeType string) (ObjectRef, error)
	Update(ctx context.Context, ref ObjectRef, r io.Reader, mimeType string) (ObjectRef, error)
	GrantRead(ctx context.Context, ref ObjectRef, recipient string) error
	ShareLink(ctx context.Context, ref ObjectRef) (string, error)
	Download(ctx context.Context, ref ObjectRef) ([]byte, error)
	Shutdown() error
}

// StorageClient is the authenticated session against a Backend,
// bound to one container. It is built once at startup and shared.
type StorageClient struct {
	backend   Backend
	container string
	logger    *slog.Logger
}

func NewStorageClient(b Backend, container string, logger *slog.Logger) (*StorageClient, error) {
	if b == nil {
		return nil, errors.New("storage backend is nil")
	}
	if container == "" {
		return nil, ErrMissingName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageClient{
		backend:   b,
		container: container,
		logger:    logger.With(slog.String("container", container)),
	}, nil
}

func (s *StorageClient) Container() string {
	return s.container
}

func (s *StorageClient) FindByName(ctx context.Context, name string) (ObjectRef, error) {
	return s.backend.Find(ctx, s.container, name)
}

// CreateOrUpdate overwrites the content of the first object called
// name or creates it when none exists. The lookup and the create are
// two calls, so concurrent writers in different processes can still
// end up with two objects of the same name.
func (s *StorageClient) CreateOrUpdate(ctx context.Context, name string, r io.Reader, mimeType string) (ObjectRef, error) {
	ref, err := s.backend.Find(ctx, s.container, name)
	switch {
	case err == nil:
		ref, err = s.backend.Update(ctx, ref, r, mimeType)
		if err != nil {
			return ObjectRef{}, fmt.Errorf("update %s: %w", name, err)
		}
		s.logger.Info("object updated", slog.String("name", name), slog.String("id", ref.ID))
		return ref, nil
	case IsNotFound(err):
		ref, err = s.backend.Create(ctx, s.container, name, r, mimeType)
		if err != nil {
			return ObjectRef{}, fmt.Errorf("create %s: %w", name, err)
		}
		s.logger.Info("object created", slog.String("name", name), slog.String("id", ref.ID))
		return ref, nil
	default:
		return ObjectRef{}, fmt.Errorf("lookup %s: %w", name, err)
	}
}

func (s *StorageClient) GrantRead(ctx context.Context, ref ObjectRef, recipient string) error {
	return s.backend.GrantRead(ctx, ref, recipient)
}

func (s *StorageClient) ShareLink(ctx context.Context, ref ObjectRef) (string, error) {
	return s.backend.ShareLink(ctx, ref)
}

// Download returns the complete content of ref. Failures are
// reported as KindDownload unless the object vanished.
func (s *StorageClient) Download(ctx context.Context, ref ObjectRef) ([]byte, error) {
	data, err := s.backend.Download(ctx, ref)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, E(KindDownload, "download "+ref.Name, err)
	}
	return data, nil
}

// Close shuts the backend down.
func (s *StorageClient) Close() error {
	return s.backend.Shutdown()
}
