package relay

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/exp/slog"
)

type ResponseStatus string

const (
	StatusReady          ResponseStatus = "ready"
	StatusMissing        ResponseStatus = "missing"
	StatusEmpty          ResponseStatus = "empty"
	StatusDownloadFailed ResponseStatus = "download_failed"
	StatusLookupFailed   ResponseStatus = "lookup_failed"
)

// Response is the outcome of waiting for the external producer.
// Text is only set if Status is StatusReady, Err only if Status
// is StatusDownloadFailed or StatusLookupFailed.
type Response struct {
	Text     string
	Status   ResponseStatus
	ObjectID string
	Err      error
}

func (r Response) Found() bool {
	return r.Status == StatusReady
}

type PollerOptions struct {
	// ObjectName is the remote name of the response object.
	// Default: response.txt
	ObjectName string
	// Wait is the blind delay before the first lookup. The
	// lookup happens after Wait even if the response exists
	// earlier. Zero means no wait, DefaultPollerOptions uses 5s.
	Wait time.Duration
	// Attempts is the number of lookups. With the default of 1
	// a single lookup follows Wait.
	Attempts int
	// Interval between two lookups if Attempts > 1.
	// Default: 2s.
	Interval time.Duration
}

func DefaultPollerOptions() PollerOptions {
	return PollerOptions{
		ObjectName: "response.txt",
		Wait:       5 * time.Second,
		Attempts:   1,
		Interval:   2 * time.Second,
	}
}

// Poller fetches the response object produced by an external
// process after a query was published.
type Poller struct {
	storage *StorageClient
	opts    PollerOptions
	logger  *slog.Logger
}

func NewPoller(s *StorageClient, opts PollerOptions, logger *slog.Logger) *Poller {
	def := DefaultPollerOptions()
	if opts.ObjectName == "" {
		opts.ObjectName = def.ObjectName
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{storage: s, opts: opts, logger: logger}
}

// Await blocks for the configured wait and then looks the response
// up. A missing, blank or unreachable response is not an error, the
// returned status tells them apart. Only cancellation of ctx is
// returned as an error.
func (p *Poller) Await(ctx context.Context) (Response, error) {
	if err := sleep(ctx, p.opts.Wait); err != nil {
		return Response{}, err
	}
	var res Response
	for attempt := 1; ; attempt++ {
		var err error
		res, err = p.Fetch(ctx)
		if err != nil {
			return Response{}, err
		}
		if res.Status == StatusReady || res.Err != nil || attempt >= p.opts.Attempts {
			return res, nil
		}
		p.logger.Debug("response not ready",
			slog.Int("attempt", attempt),
			slog.String("status", string(res.Status)),
		)
		if err := sleep(ctx, p.opts.Interval); err != nil {
			return Response{}, err
		}
	}
}

// Fetch does a single lookup and download of the response
// object without waiting. It only fails if ctx is done.
func (p *Poller) Fetch(ctx context.Context) (Response, error) {
	ref, err := p.storage.FindByName(ctx, p.opts.ObjectName)
	if IsNotFound(err) {
		return Response{Status: StatusMissing}, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		p.logger.Error("looking up response failed",
			slog.String("name", p.opts.ObjectName),
			slog.String("kind", KindOf(err).String()),
			slog.String("msg", err.Error()),
		)
		return Response{Status: StatusLookupFailed, Err: err}, nil
	}
	data, err := p.storage.Download(ctx, ref)
	if IsNotFound(err) {
		return Response{Status: StatusMissing}, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		p.logger.Error("fetching response failed",
			slog.String("id", ref.ID),
			slog.String("msg", err.Error()),
		)
		return Response{Status: StatusDownloadFailed, ObjectID: ref.ID, Err: err}, nil
	}
	text := strings.TrimSpace(strings.ToValidUTF8(string(data), string(utf8.RuneError)))
	if text == "" {
		return Response{Status: StatusEmpty, ObjectID: ref.ID}, nil
	}
	p.logger.Info("fetched response", slog.String("id", ref.ID), slog.String("preview", preview(text, 50)))
	return Response{Text: text, Status: StatusReady, ObjectID: ref.ID}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
