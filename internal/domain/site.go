package domain

import "time"

// SiteDescriptor identifies one aggregator. It comes from the site database
// and is never modified.
type SiteDescriptor struct {
	// Name is the display name of the aggregator.
	Name string

	// APIEndpoint is the listing API URL.
	// Example: https://api.example-zy.com/api.php/provide/vod/
	APIEndpoint string
}

// SiteReport summarizes what one run learned about one site.
type SiteReport struct {
	Site       string    `json:"site"`
	Endpoint   string    `json:"endpoint"`
	Attempts   int       `json:"attempts"`
	Failures   int       `json:"failures"`
	Productive bool      `json:"productive"` // at least one attempt yielded a playback host
	Hosts      []string  `json:"hosts,omitempty"`
	Keywords   []string  `json:"keywords,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`

	// FailureStreak counts consecutive unproductive runs. It is maintained
	// by the observation ledger.
	FailureStreak int `json:"failure_streak"`
}
