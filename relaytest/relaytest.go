// Package relaytest provides a relay served over HTTP on top of an
// in-memory bucket, for tests of packages using the relay.
package relaytest

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/naivary/relay"
	"golang.org/x/exp/slog"
)

type Env struct {
	Bucket  *relay.Bucket
	Storage *relay.StorageClient
	Relay   *relay.Relay
	Handler *relay.HTTPHandler
	Server  *httptest.Server
	Chat    *Chat

	dir string
}

// NewEnv starts a relay with a short response wait. Options left
// empty in opts are filled with values suitable for tests.
func NewEnv(opts relay.Options) (*Env, error) {
	dir, err := os.MkdirTemp("", "relaytest")
	if err != nil {
		return nil, err
	}
	b, err := relay.NewBucket(relay.NewInMemoryBucketOptions())
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	logger := Logger()
	s, err := relay.NewStorageClient(b, uuid.NewString(), logger)
	if err != nil {
		b.Shutdown()
		os.RemoveAll(dir)
		return nil, err
	}
	if opts.QueryPath == "" {
		opts.QueryPath = filepath.Join(dir, "queries.txt")
	}
	if opts.Poller.Wait == 0 {
		opts.Poller.Wait = 10 * time.Millisecond
	}
	chat := &Chat{}
	rl, err := relay.New(s, chat, opts, logger)
	if err != nil {
		b.Shutdown()
		os.RemoveAll(dir)
		return nil, err
	}
	hopts := relay.DefaultHTTPHandlerOptions()
	hopts.Bucket = b
	hopts.Logger = logger
	h := relay.NewHTTPHandler(rl, hopts)
	return &Env{
		Bucket:  b,
		Storage: s,
		Relay:   rl,
		Handler: h,
		Server:  httptest.NewServer(h),
		Chat:    chat,
		dir:     dir,
	}, nil
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// PutResponse stores content as the response object
// the relay is waiting for.
func (e Env) PutResponse(content string) (relay.ObjectRef, error) {
	name := relay.DefaultPollerOptions().ObjectName
	return e.Storage.CreateOrUpdate(context.Background(), name, strings.NewReader(content), "text/plain")
}

// Content returns the content of the first object called name.
func (e Env) Content(name string) (string, error) {
	ctx := context.Background()
	ref, err := e.Storage.FindByName(ctx, name)
	if err != nil {
		return "", err
	}
	data, err := e.Storage.Download(ctx, ref)
	return string(data), err
}

func (e Env) Destroy() error {
	e.Server.Close()
	return errors.Join(e.Relay.Close(), os.RemoveAll(e.dir))
}

// Chat is a relay.Completer echoing the message
// prefixed with Answer, or failing with Err.
type Chat struct {
	mu       sync.Mutex
	Answer   string
	Err      error
	messages []string
}

func (c *Chat) Complete(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	if c.Err != nil {
		return "", c.Err
	}
	return c.Answer + message, nil
}

// Messages returns every message the chat received.
func (c *Chat) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}
