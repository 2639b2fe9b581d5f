package cache

import (
	"context"
	"time"
)

// Nop is a Store that keeps nothing. It stands in when caching is disabled.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Get(context.Context, string) ([]byte, bool)              { return nil, false }
func (Nop) Set(context.Context, string, []byte, time.Duration) bool { return false }
func (Nop) Delete(context.Context, string) bool                     { return false }
func (Nop) Clear(context.Context) int                               { return 0 }
func (Nop) PurgeExpired(context.Context) int                        { return 0 }
