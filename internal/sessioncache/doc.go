// Package sessioncache persists search sessions on disk and keeps the store
// within its age, count and size bounds.
//
// Each session lives in <dir>/search_<id> as results.json plus meta.json.
// results.json is written first and meta.json second, so a directory without
// meta.json is an uncommitted entry: Load reports it as not found and List
// skips it. Session ids are never reused because NextID counts uncommitted
// directories too.
//
// Eviction ranks sessions by the latest mtime or atime of their files. Load
// refreshes results.json so recently viewed searches survive longer.
package sessioncache
