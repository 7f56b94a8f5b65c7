package sessioncache

import "time"

// Kind selects which media tags a search covered.
type Kind string

const (
	KindAudiobooks Kind = "audiobooks"
	KindEbooks     Kind = "ebooks"
	KindBoth       Kind = "both"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAudiobooks, KindEbooks, KindBoth:
		return true
	}
	return false
}

// Mode records how the search was presented.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeHeadless    Mode = "headless"
)

// Result is one stored release. Field names follow the upstream payload so a
// results.json file reads like the response it came from.
type Result struct {
	GUID        string    `json:"guid"`
	IndexerID   int       `json:"indexerId"`
	Title       string    `json:"title"`
	Size        int64     `json:"size"`
	Protocol    string    `json:"protocol"`
	PublishDate time.Time `json:"publishDate"`
	Indexer     string    `json:"indexer"`
	Grabs       int       `json:"grabs,omitempty"`
	Seeders     int       `json:"seeders,omitempty"`
}

// Session is a persisted search.
type Session struct {
	ID         int       `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Query      string    `json:"query"`
	Kind       Kind      `json:"kind"`
	Protocol   string    `json:"protocol,omitempty"`
	Mode       Mode      `json:"mode"`
	Results    []Result  `json:"results"`
	LastAccess time.Time `json:"last_access"`
}

// Summary describes a session without its result list.
type Summary struct {
	ID          int       `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Query       string    `json:"query"`
	Kind        Kind      `json:"kind"`
	Protocol    string    `json:"protocol,omitempty"`
	Mode        Mode      `json:"mode"`
	ResultCount int       `json:"result_count"`
	SizeBytes   int64     `json:"size_bytes"`
	LastAccess  time.Time `json:"last_access"`
}

// EvictReport lists what an eviction pass removed.
type EvictReport struct {
	ExpiredIDs   []int `json:"expired_ids,omitempty"`
	OverCountIDs []int `json:"over_count_ids,omitempty"`
	OverSizeIDs  []int `json:"over_size_ids,omitempty"`
	FailedIDs    []int `json:"failed_ids,omitempty"`
	FreedBytes   int64 `json:"freed_bytes"`
	Remaining    int   `json:"remaining"`
}

// Removed returns the number of sessions deleted across all passes.
func (r EvictReport) Removed() int {
	return len(r.ExpiredIDs) + len(r.OverCountIDs) + len(r.OverSizeIDs)
}

// Stats summarizes cache usage for the stats command and API.
type Stats struct {
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"total_bytes"`
	MaxBytes   int64  `json:"max_bytes"`
	MaxEntries int    `json:"max_entries"`
	MaxAge     string `json:"max_age"`
	FreeBytes  uint64 `json:"free_bytes"`
	FSBytes    uint64 `json:"fs_bytes"`
}

// meta mirrors meta.json.
type meta struct {
	Timestamp  stamp   `json:"timestamp"`
	SearchTerm string  `json:"search_term"`
	Kind       Kind    `json:"kind"`
	Protocol   *string `json:"protocol"`
	Mode       Mode    `json:"mode"`
}
