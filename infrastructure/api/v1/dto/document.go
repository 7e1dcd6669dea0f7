// Package dto holds the request bodies accepted by the v1 API.
package dto

// DocumentAttributes are the attributes of a document registration.
type DocumentAttributes struct {
	ProjectID string `json:"project_id" validate:"required,max=255"`
	Title     string `json:"title" validate:"required,max=1024"`
	Type      string `json:"type" validate:"required,max=255"`
	Text      string `json:"text" validate:"required"`
}

// DocumentData represents document request data in JSON:API format.
type DocumentData struct {
	Type       string             `json:"type" validate:"omitempty,eq=document"`
	Attributes DocumentAttributes `json:"attributes"`
}

// DocumentCreateRequest registers a document with its extracted text.
type DocumentCreateRequest struct {
	Data DocumentData `json:"data"`
}

// IngestAttributes are the optional processing parameters of an ingestion.
type IngestAttributes struct {
	Model     string `json:"model,omitempty" validate:"omitempty,max=255"`
	Strategy  string `json:"strategy,omitempty" validate:"omitempty,oneof=fixed sentence-boundary hybrid"`
	ChunkSize int    `json:"chunk_size,omitempty" validate:"gte=0,lte=100000"`
	Overlap   *int   `json:"overlap,omitempty" validate:"omitempty,gte=0"`
}

// IngestData represents ingestion request data in JSON:API format.
type IngestData struct {
	Type       string           `json:"type" validate:"omitempty,eq=ingestion_job"`
	Attributes IngestAttributes `json:"attributes"`
}

// IngestRequest starts an ingestion job. An empty body uses the defaults.
type IngestRequest struct {
	Data IngestData `json:"data"`
}
