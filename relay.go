package relay

import (
	"context"
	"strings"

	"golang.org/x/exp/slog"
)

type Options struct {
	// QueryPath is the local query file. Default: queries.txt
	QueryPath string
	Publisher PublisherOptions
	Poller    PollerOptions
}

func DefaultOptions() Options {
	return Options{
		QueryPath: "queries.txt",
		Poller:    DefaultPollerOptions(),
	}
}

// SpeechResult is the outcome of a speech relay. ResponseText is nil
// if no answer could be fetched, ResponseStatus tells why.
type SpeechResult struct {
	RecognizedText string
	ObjectID       string
	ShareLink      string
	ResponseText   *string
	ResponseStatus ResponseStatus
}

// Relay is the entry point of the two relay operations. Speech
// relays are processed one at a time from writing the query to
// fetching the answer.
type Relay struct {
	storage   *StorageClient
	chat      Completer
	queries   *QueryWriter
	publisher *Publisher
	poller    *Poller
	// slot is a one element semaphore serializing speech relays
	slot   chan struct{}
	logger *slog.Logger
}

// New builds a relay on top of storage. chat may be nil, in which
// case ChatCompletion fails.
func New(storage *StorageClient, chat Completer, opts Options, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QueryPath == "" {
		opts.QueryPath = DefaultOptions().QueryPath
	}
	queries, err := NewQueryWriter(opts.QueryPath)
	if err != nil {
		return nil, err
	}
	return &Relay{
		storage:   storage,
		chat:      chat,
		queries:   queries,
		publisher: NewPublisher(storage, queries, opts.Publisher, logger),
		poller:    NewPoller(storage, opts.Poller, logger),
		slot:      make(chan struct{}, 1),
		logger:    logger,
	}, nil
}

func (r *Relay) Storage() *StorageClient {
	return r.storage
}

func (r *Relay) Queries() *QueryWriter {
	return r.queries
}

func (r *Relay) Publisher() *Publisher {
	return r.publisher
}

func (r *Relay) Poller() *Poller {
	return r.poller
}

// ChatCompletion passes message straight to the chat completer.
func (r *Relay) ChatCompletion(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", E(KindValidation, "chat", ErrEmptyMessage)
	}
	if r.chat == nil {
		return "", E(KindInternal, "chat", ErrChatNotConfigured)
	}
	return r.chat.Complete(ctx, message)
}

// SpeechRelay writes message to the query file, publishes it, waits
// for the external producer and fetches its answer. A blank message
// fails before anything is written. Once the query is published only
// cancellation of ctx fails the call, an answer that could not be
// fetched leaves ResponseText nil.
func (r *Relay) SpeechRelay(ctx context.Context, message string) (SpeechResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return SpeechResult{}, E(KindValidation, "speech relay", ErrEmptyMessage)
	}

	select {
	case r.slot <- struct{}{}:
	case <-ctx.Done():
		return SpeechResult{}, E(KindTransient, "speech relay", ctx.Err())
	}
	defer func() { <-r.slot }()

	if err := r.queries.Write(message); err != nil {
		return SpeechResult{}, E(KindInternal, "write query", err)
	}
	pub, err := r.publisher.Publish(ctx)
	if err != nil {
		return SpeechResult{}, err
	}
	res := SpeechResult{
		RecognizedText: message,
		ObjectID:       pub.ObjectID,
		ShareLink:      pub.ShareLink,
	}
	resp, err := r.poller.Await(ctx)
	if err != nil {
		return SpeechResult{}, err
	}
	res.ResponseStatus = resp.Status
	if resp.Found() {
		text := resp.Text
		res.ResponseText = &text
	}
	return res, nil
}

// Close shuts the storage backend down.
func (r *Relay) Close() error {
	return r.storage.Close()
}
