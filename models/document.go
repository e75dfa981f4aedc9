package models

// Format is the declared type of an ingested document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Chunk is a span of document text sized for embedding and retrieval.
type Chunk struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	SourceHash string `json:"source_hash,omitempty"`
	Format     Format `json:"format,omitempty"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
}

// SearchResult is one chunk returned by a similarity search. For cosine the
// score is a similarity (higher is better); for l2 it is a distance.
type SearchResult struct {
	ChunkID string  `json:"chunk_id"`
	Source  string  `json:"source,omitempty"`
	Ordinal int     `json:"ordinal"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}
