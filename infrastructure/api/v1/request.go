// Package v1 provides the v1 API routes.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 32 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeBody decodes and validates a JSON request body. With allowEmpty an
// absent body leaves dst untouched.
func decodeBody(w http.ResponseWriter, req *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if !allowEmpty || !errors.Is(err, io.EOF) {
			return err
		}
	}
	return validate.Struct(dst)
}
