package relay

import (
	"bytes"
	"encoding/gob"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/naivary/relay/models"
	"golang.org/x/exp/slices"
)

const (
	objectNamePattern = "^[a-zA-Z0-9_.-]+$"

	contentTypeMetaKey  = "contentType"
	createdAtMetaKey    = "createdAt"
	lastModifiedMetaKey = "lastModified"
)

// Object is a named blob inside a container as persisted
// by the Bucket. Names are not unique within a container,
// the id is.
type Object struct {
	// unique object identifier
	id string
	// alias of the object. Multiple live
	// objects may share the same name.
	name string
	// container (folder) the object lives in
	container string
	// metadata of the object. The naming of the
	// keys follow the golang conventions (e.g. camelCase).
	meta url.Values
	// payload of the object
	pl *bytes.Buffer
	// addresses allowed to read the object
	readers []string
	// trashed objects are invisible to name lookups
	trashed bool
}

func NewObject(name, container string) (*Object, error) {
	if name == "" || container == "" {
		return nil, ErrMissingName
	}
	o := &Object{
		id:        uuid.NewString(),
		name:      name,
		container: container,
		meta:      url.Values{},
		pl:        new(bytes.Buffer),
	}
	o.setDefaultMetadata()
	return o, nil
}

func (o Object) ID() string {
	return o.id
}

func (o Object) Name() string {
	return o.name
}

func (o Object) Container() string {
	return o.container
}

func (o Object) Payload() []byte {
	return o.pl.Bytes()
}

func (o Object) Readers() []string {
	return slices.Clone(o.readers)
}

func (o Object) IsTrashed() bool {
	return o.trashed
}

func (o Object) ContentType() string {
	return o.meta.Get(contentTypeMetaKey)
}

func (o Object) Ref() ObjectRef {
	return ObjectRef{ID: o.id, Name: o.name, Container: o.container}
}

func (o *Object) SetContentType(ct string) {
	o.meta.Set(contentTypeMetaKey, ct)
}

// Meta returns the value of the metadata key k.
func (o Object) Meta(k string) string {
	return o.meta.Get(k)
}

// Write appends p to the payload.
func (o *Object) Write(p []byte) (int, error) {
	return o.pl.Write(p)
}

func (o *Object) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(o.Payload()).WriteTo(w)
}

func (o *Object) ReadFrom(r io.Reader) (int64, error) {
	return o.pl.ReadFrom(r)
}

// replace swaps the payload with the content of r and
// bumps the lastModified timestamp.
func (o *Object) replace(r io.Reader) error {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	o.pl = buf
	o.touch()
	return nil
}

// grant adds addr to the readers. It reports
// whether the list changed.
func (o *Object) grant(addr string) bool {
	if slices.Contains(o.readers, addr) {
		return false
	}
	o.readers = append(o.readers, addr)
	return true
}

// ToModel returns a object which only
// contains primitiv value types for serialization.
func (o *Object) ToModel() *models.Object {
	return &models.Object{
		ID:        o.id,
		Name:      o.name,
		Container: o.container,
		Meta:      o.meta,
		Readers:   o.Readers(),
		Trashed:   o.trashed,
		Payload:   o.Payload(),
	}
}

func (o *Object) fromModel(m *models.Object) {
	o.id = m.ID
	o.name = m.Name
	o.container = m.Container
	o.meta = m.Meta
	if o.meta == nil {
		o.meta = url.Values{}
	}
	o.readers = m.Readers
	o.trashed = m.Trashed
	o.pl = bytes.NewBuffer(m.Payload)
}

func (o *Object) Marshal() ([]byte, error) {
	if err := o.isValid(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(o.ToModel()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Object) Unmarshal(data []byte) error {
	m := models.Object{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return err
	}
	o.fromModel(&m)
	return nil
}

func (o Object) isValid() error {
	if !o.meta.Has(contentTypeMetaKey) {
		return ErrContentTypeNotSet
	}
	if !isValidObjectName(o.name) {
		return ErrInvalidNamePattern
	}
	return nil
}

func (o *Object) setDefaultMetadata() {
	t := strconv.FormatInt(time.Now().Unix(), 10)
	o.meta.Set(createdAtMetaKey, t)
	o.meta.Set(lastModifiedMetaKey, t)
}

func (o *Object) touch() {
	o.meta.Set(lastModifiedMetaKey, strconv.FormatInt(time.Now().Unix(), 10))
}
