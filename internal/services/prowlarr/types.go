package prowlarr

import (
	"fmt"
	"strings"
	"time"

	"booksearcher/internal/services"
)

const (
	ProtocolTorrent = "torrent"
	ProtocolUsenet  = "usenet"
)

// NormalizeProtocol maps user input (tor, torrent, nzb, usenet) to the
// upstream protocol name. Empty input means no protocol filter.
func NormalizeProtocol(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case "tor", "torrent":
		return ProtocolTorrent, nil
	case "nzb", "usenet":
		return ProtocolUsenet, nil
	default:
		return "", services.Wrap(services.ErrValidation, "prowlarr", "protocol", fmt.Sprintf("unknown protocol %q (want tor or nzb)", value), nil)
	}
}

// Tag is an upstream label used to scope indexers.
type Tag struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Indexer is an upstream search source.
type Indexer struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Enable   bool   `json:"enable"`
	Protocol string `json:"protocol"`
	Tags     []int  `json:"tags"`
}

// Release is one search hit.
type Release struct {
	GUID        string    `json:"guid"`
	IndexerID   int       `json:"indexerId"`
	Indexer     string    `json:"indexer"`
	Title       string    `json:"title"`
	Size        int64     `json:"size"`
	Protocol    string    `json:"protocol"`
	PublishDate time.Time `json:"publishDate"`
	Grabs       int       `json:"grabs"`
	Seeders     int       `json:"seeders"`
	Leechers    int       `json:"leechers"`
	InfoURL     string    `json:"infoUrl"`
}

// MediaTags holds the tag ids for the two media kinds.
type MediaTags struct {
	Audiobooks int `json:"audiobooks"`
	Ebooks     int `json:"ebooks"`
}

// GrabConfirmation is the upstream acknowledgement of a download request.
type GrabConfirmation struct {
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	IndexerID int    `json:"indexerId"`
	Indexer   string `json:"indexer"`
}
