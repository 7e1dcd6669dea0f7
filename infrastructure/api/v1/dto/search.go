package dto

// SearchAttributes represents search request attributes in JSON:API format.
type SearchAttributes struct {
	Query     string   `json:"query" validate:"required"`
	ProjectID string   `json:"project_id,omitempty" validate:"omitempty,max=255"`
	Limit     *int     `json:"limit,omitempty" validate:"omitempty,gte=1,lte=100"`
	MinScore  *float64 `json:"min_score,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// SearchData represents search request data in JSON:API format.
type SearchData struct {
	Type       string           `json:"type" validate:"omitempty,eq=search"`
	Attributes SearchAttributes `json:"attributes"`
}

// SearchRequest represents a JSON:API search request.
type SearchRequest struct {
	Data SearchData `json:"data"`
}
