// Package handler provides task handlers for processing queued operations.
package handler

import (
	"fmt"

	"github.com/laserpointlabs/odras/domain/task"
)

// ExtractString extracts a string value from the payload.
func ExtractString(payload map[string]any, key string) (string, error) {
	val, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("missing required field: %s", key)
	}

	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for %s: expected string, got %T", key, val)
	}
	if s == "" {
		return "", fmt.Errorf("empty value for %s", key)
	}

	return s, nil
}

// DocumentPayload holds the document_id and job_id fields of an ingest
// task payload.
type DocumentPayload struct {
	documentID string
	jobID      string
}

// DocumentID returns the document id.
func (p DocumentPayload) DocumentID() string { return p.documentID }

// JobID returns the job id.
func (p DocumentPayload) JobID() string { return p.jobID }

// ExtractDocumentPayload extracts the document_id and job_id fields from a
// task payload.
func ExtractDocumentPayload(payload map[string]any) (DocumentPayload, error) {
	documentID, err := ExtractString(payload, task.PayloadDocumentID)
	if err != nil {
		return DocumentPayload{}, err
	}

	jobID, err := ExtractString(payload, task.PayloadJobID)
	if err != nil {
		return DocumentPayload{}, err
	}

	return DocumentPayload{documentID: documentID, jobID: jobID}, nil
}
