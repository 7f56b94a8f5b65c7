// Package httpapi serves BookSearcher over HTTP for automation and remote
// clients.
//
// Routes:
//
//	GET  /health              liveness, never authenticated
//	POST /api/search          {query, media_type, protocol}
//	POST /api/grab            {session_id, position} or {guid, indexer_id}
//	GET  /api/sessions        cached searches
//	GET  /api/sessions/{id}   one cached search with its results
//	GET  /api/stats           searcher, cache, client and history counters
//	GET  /metrics             Prometheus exposition
//
// When a token is configured every /api route requires
// "Authorization: Bearer <token>". Each request carries a correlation id
// taken from X-Request-Id or generated, and echoed back in the response.
// A lock file keeps one server per state directory.
package httpapi
