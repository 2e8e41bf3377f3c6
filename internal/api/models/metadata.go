package models

// ParameterInfo describes one sensor parameter.
type ParameterInfo struct {
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// HistoryInfo describes the loaded reading history.
type HistoryInfo struct {
	Loaded   bool       `json:"loaded"`
	Readings int        `json:"readings"`
	First    *Timestamp `json:"first,omitempty"`
	Last     *Timestamp `json:"last,omitempty"`
	LoadedAt *Timestamp `json:"loadedAt,omitempty"`
	Stale    bool       `json:"stale"`
}

// ParametersMetadata is the GET /v1/metadata/parameters body.
type ParametersMetadata struct {
	Parameters []ParameterInfo `json:"parameters"`
	Location   string          `json:"location"`
	History    HistoryInfo     `json:"history"`
	Cadences   []string        `json:"cadences"`
	Methods    []string        `json:"methods"`
}

// ModelMetadata is the GET /v1/metadata/model body.
type ModelMetadata struct {
	Loaded    bool       `json:"loaded"`
	ModelName string     `json:"modelName,omitempty"`
	Source    string     `json:"source,omitempty"`
	LoadedAt  *Timestamp `json:"loadedAt,omitempty"`
	Features  []string   `json:"features,omitempty"`
	Scaled    bool       `json:"scaled"`
}
