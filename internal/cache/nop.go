package cache

import (
	"context"
	"time"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// Nop is a ResponseCache that stores nothing. It backs --no-cache and leaves
// any existing on-disk entries untouched.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Put(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Clear(context.Context) error { return nil }
func (Nop) Close() error { return nil }

var _ domain.ResponseCache = Nop{}
