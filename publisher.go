package relay

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/exp/slog"
)

type PublisherOptions struct {
	// ObjectName is the remote name of the query object.
	// Default: the base name of the query file.
	ObjectName string
	// MimeType of the uploaded query. Default: derived
	// from the file extension, text/plain otherwise.
	MimeType string
	// Recipient is granted read access on every publish.
	// No grant is issued if empty.
	Recipient string
}

// Publication is the outcome of a publish.
type Publication struct {
	ObjectID  string
	ShareLink string
}

// Publisher uploads the local query file into the container and
// shares it. Publishes run one at a time so the lookup and the
// create of the same name never interleave within this process.
type Publisher struct {
	mu       sync.Mutex
	storage  *StorageClient
	queries  *QueryWriter
	name     string
	mimeType string
	to       string
	logger   *slog.Logger
}

func NewPublisher(s *StorageClient, q *QueryWriter, opts PublisherOptions, logger *slog.Logger) *Publisher {
	name := opts.ObjectName
	if name == "" {
		name = filepath.Base(q.Path())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		storage:  s,
		queries:  q,
		name:     name,
		mimeType: contentType(name, opts.MimeType),
		to:       opts.Recipient,
		logger:   logger,
	}
}

func (p *Publisher) Publish(ctx context.Context) (Publication, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.queries.Read()
	if err != nil {
		return Publication{}, E(KindInternal, "read query", err)
	}
	ref, err := p.storage.CreateOrUpdate(ctx, p.name, bytes.NewReader(data), p.mimeType)
	if err != nil {
		return Publication{}, fmt.Errorf("publish: %w", err)
	}
	if p.to != "" {
		// the backend may reject a repeated grant
		if err := p.storage.GrantRead(ctx, ref, p.to); err != nil {
			p.logger.Warn("grant read failed",
				slog.String("id", ref.ID),
				slog.String("recipient", p.to),
				slog.String("msg", err.Error()),
			)
		}
	}
	link, err := p.storage.ShareLink(ctx, ref)
	if err != nil {
		return Publication{}, fmt.Errorf("publish: %w", err)
	}
	p.logger.Info("query published", slog.String("id", ref.ID), slog.String("link", link))
	return Publication{ObjectID: ref.ID, ShareLink: link}, nil
}
