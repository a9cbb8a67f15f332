package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/exp/slog"
)

const (
	payloadDir = "payload"
	nameDir    = "name"

	nameKeySep = "\x00"
)

// Bucket is a local Backend on top of badger. It mirrors the
// semantics of the remote file store: names are not unique per
// container, trashed objects stay stored but are not found by name.
type Bucket struct {
	// payload persists the objects keyed by id.
	payload *badger.DB
	// names is the index container/name/id -> id. Iterating
	// the container/name prefix yields every object carrying
	// that name in id order.
	names *badger.DB

	linkBase string

	// BasePath is the directory the databases live in.
	// Empty for in-memory buckets.
	BasePath string

	stop     chan struct{}
	stopOnce sync.Once
}

var _ Backend = (*Bucket)(nil)

func NewBucket(opts BucketOptions) (*Bucket, error) {
	payload, err := badger.Open(opts.toBadgerOpts(payloadDir))
	if err != nil {
		return nil, err
	}
	names, err := badger.Open(opts.toBadgerOpts(nameDir))
	if err != nil {
		payload.Close()
		return nil, err
	}
	b := &Bucket{
		payload:  payload,
		names:    names,
		linkBase: opts.LinkBase,
		stop:     make(chan struct{}),
	}
	if !opts.InMemory {
		b.BasePath = opts.Dir
	}
	if opts.GCInterval > 0 && !opts.InMemory {
		go b.gc(opts.GCInterval)
	}
	return b, nil
}

func (b *Bucket) Find(ctx context.Context, container, name string) (ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return ObjectRef{}, E(KindTransient, "find", err)
	}
	ids, err := b.idsByName(container, name)
	if err != nil {
		return ObjectRef{}, E(KindTransient, "find", err)
	}
	for _, id := range ids {
		obj, err := b.GetByID(id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return ObjectRef{}, E(KindTransient, "find", err)
		}
		if obj.IsTrashed() {
			continue
		}
		return obj.Ref(), nil
	}
	return ObjectRef{}, E(KindNotFound, "find "+name, ErrObjectNotFound)
}

func (b *Bucket) Create(ctx context.Context, container, name string, r io.Reader, mimeType string) (ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return ObjectRef{}, E(KindTransient, "create", err)
	}
	obj, err := NewObject(name, container)
	if err != nil {
		return ObjectRef{}, E(KindValidation, "create", err)
	}
	if _, err := obj.ReadFrom(r); err != nil {
		return ObjectRef{}, E(KindTransient, "create", err)
	}
	obj.SetContentType(mimeType)
	if err := b.put(obj); err != nil {
		return ObjectRef{}, err
	}
	if err := b.insertName(obj); err != nil {
		return ObjectRef{}, E(KindTransient, "create", err)
	}
	return obj.Ref(), nil
}

func (b *Bucket) Update(ctx context.Context, ref ObjectRef, r io.Reader, mimeType string) (ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return ObjectRef{}, E(KindTransient, "update", err)
	}
	obj, err := b.get("update", ref.ID)
	if err != nil {
		return ObjectRef{}, err
	}
	if err := obj.replace(r); err != nil {
		return ObjectRef{}, E(KindTransient, "update", err)
	}
	if mimeType != "" {
		obj.SetContentType(mimeType)
	}
	if err := b.put(obj); err != nil {
		return ObjectRef{}, err
	}
	return obj.Ref(), nil
}

// GrantRead adds recipient to the readers of ref. Granting
// twice is a no-op.
func (b *Bucket) GrantRead(ctx context.Context, ref ObjectRef, recipient string) error {
	if err := ctx.Err(); err != nil {
		return E(KindTransient, "grant", err)
	}
	obj, err := b.get("grant", ref.ID)
	if err != nil {
		return err
	}
	if !obj.grant(recipient) {
		return nil
	}
	return b.put(obj)
}

func (b *Bucket) ShareLink(ctx context.Context, ref ObjectRef) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", E(KindTransient, "share link", err)
	}
	if _, err := b.get("share link", ref.ID); err != nil {
		return "", err
	}
	link, err := url.JoinPath(b.linkBase, "objects", ref.ID, "content")
	if err != nil {
		return "", E(KindInternal, "share link", err)
	}
	return link, nil
}

func (b *Bucket) Download(ctx context.Context, ref ObjectRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, E(KindTransient, "download", err)
	}
	obj, err := b.get("download", ref.ID)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(obj.Payload()), nil
}

func (b *Bucket) GetByID(id string) (*Object, error) {
	var obj Object
	err := b.payload.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return obj.Unmarshal(data)
	})
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// Trash marks the object as trashed. It keeps its
// payload but won't be found by name anymore.
func (b *Bucket) Trash(id string) error {
	obj, err := b.get("trash", id)
	if err != nil {
		return err
	}
	obj.trashed = true
	obj.touch()
	return b.put(obj)
}

func (b *Bucket) Shutdown() error {
	b.stopOnce.Do(func() { close(b.stop) })
	if err := b.payload.Close(); err != nil {
		return err
	}
	return b.names.Close()
}

func (b *Bucket) get(op, id string) (*Object, error) {
	obj, err := b.GetByID(id)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, E(KindNotFound, op+" "+id, ErrObjectNotFound)
	}
	if err != nil {
		return nil, E(KindTransient, op, err)
	}
	return obj, nil
}

func (b *Bucket) put(obj *Object) error {
	data, err := obj.Marshal()
	if err != nil {
		return E(KindValidation, "store "+obj.Name(), err)
	}
	err = b.payload.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(obj.ID()), data))
	})
	return E(KindTransient, "store "+obj.Name(), err)
}

func (b *Bucket) insertName(obj *Object) error {
	key := b.namePrefix(obj.Container(), obj.Name()) + obj.ID()
	return b.names.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(obj.ID()))
	})
}

func (b *Bucket) idsByName(container, name string) ([]string, error) {
	prefix := []byte(b.namePrefix(container, name))
	ids := make([]string, 0, 1)
	err := b.names.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(val))
		}
		return nil
	})
	return ids, err
}

func (b *Bucket) namePrefix(container, name string) string {
	return container + nameKeySep + name + nameKeySep
}

// gc runs the value log garbage collection of
// the payload db every interval until Shutdown.
func (b *Bucket) gc(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			err := b.payload.RunValueLogGC(0.7)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Error("value log gc failed", slog.String("msg", err.Error()))
			}
		}
	}
}
