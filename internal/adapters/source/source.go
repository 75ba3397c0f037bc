// Package source fetches raw content items from configured external
// listings.
package source

import (
	"context"

	"github.com/osena/curator/internal/domain/model"
)

// Source is one configured content origin.
type Source interface {
	// Name identifies the source in raw items and logs.
	Name() string

	// Fetch returns the items currently listed by the source.
	Fetch(ctx context.Context) ([]model.RawItem, error)
}
