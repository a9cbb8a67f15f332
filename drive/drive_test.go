package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/naivary/relay"
	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const testFolder = "folder-1"

type file struct {
	name    string
	parent  string
	content []byte
	readers []string
}

// fakeDrive serves the subset of the Drive v3 API the backend uses.
type fakeDrive struct {
	mu     sync.Mutex
	files  map[string]*file
	nextID int
	// reject answers every request with this status if set
	reject int
}

func newFakeDrive(t *testing.T) (*fakeDrive, *Backend) {
	fd := &fakeDrive{files: map[string]*file{}}
	r := chi.NewRouter()
	r.Use(fd.rejecting)
	r.Get("/drive/v3/files", fd.list)
	r.Get("/drive/v3/files/{id}", fd.get)
	r.Post("/upload/drive/v3/files", fd.create)
	r.Patch("/upload/drive/v3/files/{id}", fd.update)
	r.Post("/drive/v3/files/{id}/permissions", fd.permit)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	b, err := New(context.Background(), Options{
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(ts.URL + "/drive/v3/"),
			option.WithHTTPClient(ts.Client()),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return fd, b
}

func (fd *fakeDrive) rejecting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		status := fd.reject
		fd.mu.Unlock()
		if status != 0 {
			writeAPIError(w, status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fd *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	q := r.URL.Query().Get("q")
	res := drivev3.FileList{}
	for i := 1; i <= fd.nextID; i++ {
		id := fmt.Sprintf("file-%d", i)
		f, ok := fd.files[id]
		if ok && searchQuery(f.parent, f.name) == q {
			res.Files = append(res.Files, &drivev3.File{Id: id, Name: f.name})
		}
	}
	json.NewEncoder(w).Encode(&res)
}

func (fd *fakeDrive) get(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	id := chi.URLParam(r, "id")
	f, ok := fd.files[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound)
		return
	}
	if r.URL.Query().Get("alt") == "media" {
		w.Write(f.content)
		return
	}
	json.NewEncoder(w).Encode(&drivev3.File{Id: id, WebViewLink: "https://drive.example/file/d/" + id + "/view"})
}

func (fd *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	meta, content, err := readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.nextID++
	id := fmt.Sprintf("file-%d", fd.nextID)
	fd.files[id] = &file{name: meta.Name, parent: meta.Parents[0], content: content}
	json.NewEncoder(w).Encode(&drivev3.File{Id: id})
}

func (fd *fakeDrive) update(w http.ResponseWriter, r *http.Request) {
	_, content, err := readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	id := chi.URLParam(r, "id")
	f, ok := fd.files[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound)
		return
	}
	f.content = content
	json.NewEncoder(w).Encode(&drivev3.File{Id: id})
}

func (fd *fakeDrive) permit(w http.ResponseWriter, r *http.Request) {
	perm := drivev3.Permission{}
	if err := json.NewDecoder(r.Body).Decode(&perm); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	f, ok := fd.files[chi.URLParam(r, "id")]
	if !ok {
		writeAPIError(w, http.StatusNotFound)
		return
	}
	if perm.Role != "reader" || perm.Type != "user" {
		http.Error(w, "unexpected permission", http.StatusBadRequest)
		return
	}
	f.readers = append(f.readers, perm.EmailAddress)
	json.NewEncoder(w).Encode(&drivev3.Permission{Id: "perm-1"})
}

func (fd *fakeDrive) file(id string) *file {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.files[id]
}

// readUpload splits a multipart upload into the file metadata and the media.
func readUpload(r *http.Request) (*drivev3.File, []byte, error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	meta := &drivev3.File{}
	if err := json.NewDecoder(part).Decode(meta); err != nil {
		return nil, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return nil, nil, err
	}
	content, err := io.ReadAll(part)
	return meta, content, err
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s"}}`, status, http.StatusText(status))
}

func TestSearchQuery(t *testing.T) {
	got := searchQuery("folder", "it's a \\ name.txt")
	want := `'folder' in parents and name = 'it\'s a \\ name.txt' and trashed = false`
	if got != want {
		t.Fatalf("Got: %s. Expected: %s", got, want)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want relay.Kind
	}{
		{name: "token", err: &oauth2.RetrieveError{Response: &http.Response{Status: "401 Unauthorized"}}, want: relay.KindAuth},
		{name: "unauthorized", err: &googleapi.Error{Code: http.StatusUnauthorized}, want: relay.KindAuth},
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden}, want: relay.KindAuth},
		{name: "not found", err: &googleapi.Error{Code: http.StatusNotFound}, want: relay.KindNotFound},
		{name: "server", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: relay.KindTransient},
		{name: "network", err: errors.New("connection reset"), want: relay.KindTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := relay.KindOf(classify("op", tc.err)); got != tc.want {
				t.Fatalf("Got: %s. Expected: %s", got, tc.want)
			}
		})
	}
	if err := classify("op", nil); err != nil {
		t.Fatalf("nil should stay nil. Got: %v", err)
	}
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	fd, b := newFakeDrive(t)
	if _, err := b.Find(ctx, testFolder, "queries.txt"); !relay.IsNotFound(err) {
		t.Fatalf("expected a not found error. Got: %v", err)
	}
	ref, err := b.Create(ctx, testFolder, "queries.txt", strings.NewReader("hello"), "text/plain")
	if err != nil {
		t.Error(err)
		return
	}
	found, err := b.Find(ctx, testFolder, "queries.txt")
	if err != nil {
		t.Error(err)
		return
	}
	if found != ref {
		t.Fatalf("found another file. Got: %v. Expected: %v", found, ref)
	}
	if f := fd.file(ref.ID); f == nil || string(f.content) != "hello" || f.parent != testFolder {
		t.Fatalf("file not stored as expected. Got: %+v", f)
	}
}

func TestUpdateAndDownload(t *testing.T) {
	ctx := context.Background()
	_, b := newFakeDrive(t)
	ref, err := b.Create(ctx, testFolder, "response.txt", strings.NewReader("old"), "text/plain")
	if err != nil {
		t.Error(err)
		return
	}
	if _, err := b.Update(ctx, ref, strings.NewReader("new"), "text/plain"); err != nil {
		t.Error(err)
		return
	}
	data, err := b.Download(ctx, ref)
	if err != nil {
		t.Error(err)
		return
	}
	if string(data) != "new" {
		t.Fatalf("Got: %s. Expected: new", data)
	}
}

func TestGrantReadAndShareLink(t *testing.T) {
	ctx := context.Background()
	fd, b := newFakeDrive(t)
	ref, err := b.Create(ctx, testFolder, "queries.txt", strings.NewReader("hello"), "text/plain")
	if err != nil {
		t.Error(err)
		return
	}
	if err := b.GrantRead(ctx, ref, "reader@example.com"); err != nil {
		t.Error(err)
		return
	}
	if f := fd.file(ref.ID); len(f.readers) != 1 || f.readers[0] != "reader@example.com" {
		t.Fatalf("reader not granted. Got: %v", f.readers)
	}
	link, err := b.ShareLink(ctx, ref)
	if err != nil {
		t.Error(err)
		return
	}
	if link != "https://drive.example/file/d/"+ref.ID+"/view" {
		t.Fatalf("unexpected link. Got: %s", link)
	}
}

func TestDownloadUnknown(t *testing.T) {
	_, b := newFakeDrive(t)
	_, err := b.Download(context.Background(), relay.ObjectRef{ID: "missing", Name: "response.txt"})
	if !relay.IsNotFound(err) {
		t.Fatalf("expected a not found error. Got: %v", err)
	}
}

func TestRejectedCredentials(t *testing.T) {
	fd, b := newFakeDrive(t)
	fd.mu.Lock()
	fd.reject = http.StatusUnauthorized
	fd.mu.Unlock()
	_, err := b.Find(context.Background(), testFolder, "queries.txt")
	if relay.KindOf(err) != relay.KindAuth {
		t.Fatalf("expected an auth error. Got: %v", err)
	}
}

func TestStorageClient(t *testing.T) {
	ctx := context.Background()
	fd, b := newFakeDrive(t)
	s, err := relay.NewStorageClient(b, testFolder, nil)
	if err != nil {
		t.Error(err)
		return
	}
	first, err := s.CreateOrUpdate(ctx, "queries.txt", strings.NewReader("A"), "text/plain")
	if err != nil {
		t.Error(err)
		return
	}
	second, err := s.CreateOrUpdate(ctx, "queries.txt", strings.NewReader("B"), "text/plain")
	if err != nil {
		t.Error(err)
		return
	}
	if first.ID != second.ID {
		t.Fatalf("second write should update the file. Got: %s. Expected: %s", second.ID, first.ID)
	}
	if f := fd.file(first.ID); string(f.content) != "B" {
		t.Fatalf("Got: %s. Expected: B", f.content)
	}
}
