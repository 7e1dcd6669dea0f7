package repository

// WithDocumentID filters by the "document_id" column.
func WithDocumentID(id string) Option {
	return WithCondition("document_id", id)
}

// WithProjectID filters by the "project_id" column.
func WithProjectID(id string) Option {
	return WithCondition("project_id", id)
}

// WithStatus filters by the "status" column.
func WithStatus(status string) Option {
	return WithCondition("status", status)
}

// WithStatusIn filters by the "status" column using IN.
func WithStatusIn(statuses []string) Option {
	return WithConditionIn("status", statuses)
}
