package models

// VolumeScore is one selected volume and its relevance score.
type VolumeScore struct {
	Name   string  `json:"name"`
	Number string  `json:"number,omitempty"`
	Score  float64 `json:"score"`
}

// QueryResponse is the answer to a QueryRequest with the nodes it was grounded on.
type QueryResponse struct {
	Query     string        `json:"query"`
	Kind      IndexKind     `json:"kind"`
	Answer    string        `json:"answer"`
	Volumes   []VolumeScore `json:"volumes,omitempty"`
	Sources   []*ScoredNode `json:"sources"`
	QueryTime int64         `json:"query_time_ms"`
}
