// Package index persists and reads the global offset index of a run.
//
// The index file is line-delimited JSON. Line 1 is the summary:
//
//	{"max_items_per_file":4,"file_names":[...],"chunk_global_offsets":[0,4,8],
//	 "chunk_items":[4,4,2],"record_global_offsets":[0,2,4,8,9],
//	 "total_items":10,"total_records":5}
//
// Line k+2 is [chunk_id, local_offset] for record k, where chunk_id is
// 1-based into file_names and local_offset counts units from the start of
// that chunk file.
//
// Reader maps the file and reads record lines on demand:
//
//	r, err := index.Open("out/index.jsonl")
//	loc, err := r.Locate(41)   // chunk, file, offsets
//	units, err := r.Record(41) // the record's units, sentinel first
//	err = r.Verify()           // invariants plus offset round trip
package index
