package relay

import (
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type BucketOptions struct {
	badger.Options

	// LinkBase is the public base URL share links are built on.
	// Default: http://localhost:5000
	LinkBase string

	// GCInterval is the period of the value log garbage
	// collection. Zero disables it. Default: 10 minutes.
	GCInterval time.Duration
}

// NewDefaultBucketOptions returns options persisting the bucket under dir.
func NewDefaultBucketOptions(dir string) BucketOptions {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return BucketOptions{
		Options:    opts,
		LinkBase:   "http://localhost:5000",
		GCInterval: 10 * time.Minute,
	}
}

// NewInMemoryBucketOptions returns options for a bucket which
// lives only as long as the process.
func NewInMemoryBucketOptions() BucketOptions {
	opts := NewDefaultBucketOptions("")
	opts.Options = opts.Options.WithInMemory(true)
	opts.GCInterval = 0
	return opts
}

// toBadgerOpts returns the options of the database stored in sub.
func (b BucketOptions) toBadgerOpts(sub string) badger.Options {
	opts := b.Options
	if opts.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
		return opts
	}
	dir := filepath.Join(b.Dir, sub)
	opts.Dir = dir
	opts.ValueDir = dir
	return opts
}
