// Package publish copies a finished run to MinIO or any S3-compatible store.
//
// Objects are named {prefix}/{basename}. Chunks are uploaded concurrently
// and the index is uploaded only after every chunk succeeded, so readers
// that discover the index can rely on its chunks being present.
package publish
