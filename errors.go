package odras

import (
	"errors"

	"github.com/laserpointlabs/odras/application/service"
)

var (
	// ErrNoDatabase indicates no metadata database was configured.
	ErrNoDatabase = errors.New("odras: no database configured, use WithSQLite or WithPostgres")

	// ErrNoEmbedder indicates no embedding provider is available.
	ErrNoEmbedder = errors.New("odras: no embedding provider configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = service.ErrClientClosed
)
