package ferresdb

import (
	"fmt"

	"github.com/ferres-db/ferresdb-go/internal/schema"
)

// ValidationError reports a successful response whose body does not match the
// documented shape of the operation.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ferresdb: %s: unexpected response: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// decodeResponse decodes and validates a 2xx body as T.
func decodeResponse[T any](op string, body []byte) (*T, error) {
	var v T
	if err := schema.Decode(body, &v); err != nil {
		return nil, &ValidationError{Op: op, Err: err}
	}
	return &v, nil
}
