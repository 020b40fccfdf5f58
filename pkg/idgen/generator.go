package idgen

import (
	"context"

	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

// Generator hands out fresh tag ids for reservation.
type Generator interface {
	Generate(ctx context.Context) (tagcodec.ID, error)
}

