package storage

import "context"

// Initer is implemented by documents that need defaults (nil maps and the
// like) filled in after decoding, or when nothing has been saved yet.
type Initer interface {
	Init()
}

// Store is a single document on disk, shared between processes through a
// lock.Locker. D is the decoded document type.
//
// With, Update and Purge take the lock themselves. Read and Write do not:
// they are for callers that already hold it, such as a GC cycle that locked
// every module up front.
type Store[D any] interface {
	// With hands fn the current document. Changes made by fn are discarded.
	With(ctx context.Context, fn func(*D) error) error
	// Update hands fn the current document and saves it if fn returns nil.
	Update(ctx context.Context, fn func(*D) error) error
	// Purge removes the paths in dependents and then the document itself,
	// all under one lock acquisition. Missing paths are not an error.
	Purge(ctx context.Context, dependents ...string) error

	Read(fn func(*D) error) error
	Write(fn func(*D) error) error
}
