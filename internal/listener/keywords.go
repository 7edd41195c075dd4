package listener

import (
	"context"

	"github.com/lexiqai/cuecam/internal/command"
)

// KeywordSource provides the keyword snapshot read at every session start
type KeywordSource interface {
	Keywords(ctx context.Context) (command.KeywordSet, error)
}

// StaticKeywords is a KeywordSource that never changes
type StaticKeywords command.KeywordSet

// Keywords returns the fixed set
func (k StaticKeywords) Keywords(context.Context) (command.KeywordSet, error) {
	return command.KeywordSet(k), nil
}
