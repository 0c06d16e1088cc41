// Package source reads line-delimited record files with random access.
//
// Open memory-maps a file and builds its line-offset table once, so any
// line can be fetched without rescanning:
//
//	src, err := source.Open("wiki.jsonl")
//	rec, err := src.Record(41) // decodes {"text": ...} on line 41
//
// Cache keeps a bounded set of opened sources (one by default) and closes
// the oldest on eviction. Stage inflates .zst and .gz inputs into a
// staging directory before they are mapped.
package source
