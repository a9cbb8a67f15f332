// Package drive implements the relay storage backend on Google Drive.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/naivary/relay"
	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type Options struct {
	// CredentialsFile is the path of the service account key.
	CredentialsFile string
	// ClientOptions are appended to the options derived
	// from CredentialsFile.
	ClientOptions []option.ClientOption
}

// Backend is a relay.Backend storing objects as files in Drive
// folders. Containers are folder ids.
type Backend struct {
	srv *drivev3.Service
}

var _ relay.Backend = (*Backend)(nil)

// New authenticates with the service account of opts. The session
// is meant to be reused for the lifetime of the process.
func New(ctx context.Context, opts Options) (*Backend, error) {
	copts := make([]option.ClientOption, 0, len(opts.ClientOptions)+2)
	if opts.CredentialsFile != "" {
		copts = append(copts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	copts = append(copts, option.WithScopes(drivev3.DriveScope))
	copts = append(copts, opts.ClientOptions...)
	srv, err := drivev3.NewService(ctx, copts...)
	if err != nil {
		return nil, relay.E(relay.KindAuth, "drive service", err)
	}
	return &Backend{srv: srv}, nil
}

func (b *Backend) Find(ctx context.Context, container, name string) (relay.ObjectRef, error) {
	res, err := b.srv.Files.List().
		Q(searchQuery(container, name)).
		Spaces("drive").
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return relay.ObjectRef{}, classify("find "+name, err)
	}
	if len(res.Files) == 0 {
		return relay.ObjectRef{}, relay.E(relay.KindNotFound, "find "+name, relay.ErrObjectNotFound)
	}
	f := res.Files[0]
	return relay.ObjectRef{ID: f.Id, Name: f.Name, Container: container}, nil
}

func (b *Backend) Create(ctx context.Context, container, name string, r io.Reader, mimeType string) (relay.ObjectRef, error) {
	meta := &drivev3.File{Name: name, Parents: []string{container}}
	f, err := b.srv.Files.Create(meta).
		Media(r, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return relay.ObjectRef{}, classify("create "+name, err)
	}
	return relay.ObjectRef{ID: f.Id, Name: name, Container: container}, nil
}

func (b *Backend) Update(ctx context.Context, ref relay.ObjectRef, r io.Reader, mimeType string) (relay.ObjectRef, error) {
	_, err := b.srv.Files.Update(ref.ID, &drivev3.File{}).
		Media(r, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return relay.ObjectRef{}, classify("update "+ref.Name, err)
	}
	return ref, nil
}

func (b *Backend) GrantRead(ctx context.Context, ref relay.ObjectRef, recipient string) error {
	perm := &drivev3.Permission{
		Type:         "user",
		Role:         "reader",
		EmailAddress: recipient,
	}
	_, err := b.srv.Permissions.Create(ref.ID, perm).
		Fields("id").
		Context(ctx).
		Do()
	return classify("grant read", err)
}

func (b *Backend) ShareLink(ctx context.Context, ref relay.ObjectRef) (string, error) {
	f, err := b.srv.Files.Get(ref.ID).
		Fields("webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("share link", err)
	}
	return f.WebViewLink, nil
}

// Download reads the whole media of ref. The transfer itself is
// streamed by the client library.
func (b *Backend) Download(ctx context.Context, ref relay.ObjectRef) ([]byte, error) {
	res, err := b.srv.Files.Get(ref.ID).Context(ctx).Download()
	if err != nil {
		return nil, classify("download "+ref.Name, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, relay.E(relay.KindTransient, "download "+ref.Name, err)
	}
	return data, nil
}

// Shutdown is a no-op, the service holds no resources
// beyond its HTTP client.
func (b *Backend) Shutdown() error {
	return nil
}

// searchQuery builds the Drive search for non-trashed files
// called name directly inside the folder container.
func searchQuery(container, name string) string {
	return fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		escapeQuery(container), escapeQuery(name))
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// classify maps Drive API failures to relay kinds. Rejected
// credentials are auth errors, unknown files not found errors
// and everything else is considered transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return relay.E(relay.KindAuth, op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return relay.E(relay.KindAuth, op, err)
		case http.StatusNotFound:
			return relay.E(relay.KindNotFound, op, err)
		}
	}
	return relay.E(relay.KindTransient, op, err)
}
