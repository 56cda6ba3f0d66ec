package models

// BuildProperties describes the running binary.
type BuildProperties struct {
	Version   string `json:"build.version"`
	GoVersion string `json:"build.go.version"`
	Revision  string `json:"vcs.revision,omitempty"`
	Time      string `json:"vcs.time,omitempty"`
	Dirty     bool   `json:"vcs.modified"`
}

// ConfigModel is the public view of the service configuration. Secrets
// never appear here.
type ConfigModel struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	BuildProperties BuildProperties `json:"buildProperties"`
	Timezone        string          `json:"timezone"`
	Modes           []string        `json:"modes"`
	BusFeeds        bool            `json:"busFeeds"`
	Scoring         any             `json:"scoring"`
	DemandPeriods   any             `json:"demandPeriods"`
}
