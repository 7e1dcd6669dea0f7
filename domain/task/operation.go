package task

import "strings"

// Operation represents the type of task operation.
type Operation string

// Operation values for the task queue system.
const (
	OperationIngestDocument      Operation = "odras.document.ingest"
	OperationReconcileCollection Operation = "odras.collection.reconcile"
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return string(o)
}

// IsDocumentOperation returns true if this is a document-level operation.
func (o Operation) IsDocumentOperation() bool {
	return strings.HasPrefix(string(o), "odras.document.")
}

// IsCollectionOperation returns true if this is a collection-level operation.
func (o Operation) IsCollectionOperation() bool {
	return strings.HasPrefix(string(o), "odras.collection.")
}

// All returns every operation the worker must be able to handle.
// Used at startup to validate that all required handlers are registered.
func All() []Operation {
	return []Operation{OperationIngestDocument, OperationReconcileCollection}
}
