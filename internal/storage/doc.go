// Package storage persists the post collection.
//
// The whole collection lives in one JSON document:
//
//	{ "posts": [ { "id": "...", "text": "...", ... } ] }
//
// Every Save rewrites the document through a temp file in the same directory
// followed by os.Rename, so a reader never observes a truncated file.
// Writers hold an exclusive flock on "<path>.lock" across their
// load-modify-save cycle.
package storage
