package datastore

import (
	"context"
	"errors"

	"github.com/danthegoodman1/adaptree/gologger"
)

var (
	logger = gologger.NewLogger()

	ErrNotFound = errors.New("blob not found")
)

type (
	// DataStore holds checkpoint blobs by key. Keys use '/' separators.
	DataStore interface {
		// Put writes b under key, replacing any existing blob
		Put(ctx context.Context, key string, b []byte) error
		// Get returns ErrNotFound for a missing key
		Get(ctx context.Context, key string) ([]byte, error)

		Shutdown(ctx context.Context) error
	}
)
