package model

// ContentType classifies a result payload for display/export decisions.
// It never drives control flow.
type ContentType string

const (
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentText  ContentType = "text"
	ContentData  ContentType = "data"
)

// ResultMetadata carries counts and sizes extracted alongside the payload.
type ResultMetadata struct {
	CreatedAt   int64  `json:"created_at"`
	ProcessedAt int64  `json:"processed_at"`
	NodeType    string `json:"node_type"`
	OutputSize  int    `json:"output_size"`
	OutputCount int    `json:"output_count"`
	DurationMs  int64  `json:"duration_ms"`
}

// ProcessedResult is the normalized form of a raw remote payload. A parse
// failure produces a ProcessedResult with Success=false rather than an error,
// so one malformed payload cannot take down the polling loop.
type ProcessedResult struct {
	TaskID   string         `json:"task_id"`
	Success  bool           `json:"success"`
	Data     interface{}    `json:"data"`
	Metadata ResultMetadata `json:"metadata"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ResultFilter narrows result searches.
type ResultFilter struct {
	NodeType    string
	ContentType ContentType
	OnlySuccess bool
}
