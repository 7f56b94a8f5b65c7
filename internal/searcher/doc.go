// Package searcher ties the Prowlarr client to the session cache.
//
// A Searcher resolves the media tags once per search, queries Prowlarr,
// and saves the filtered results as a numbered session. Grab loads a
// session and sends the chosen result to the download client. Every call
// returns a Run whose History lists the states it passed through:
//
//	idle -> tags_resolved -> searching -> persisted -> displayed -> idle
//
// A run that finds nothing goes from searching straight back to idle, and
// one that fails ends in failed.
package searcher
