package types

import "context"

/*
LoadFunc is the contract between the cache and the outside world.

It is called when the cache misses:
 1. Cache checks the category partition → key not found or expired
 2. Cache calls the LoadFunc
 3. The LoadFunc runs the expensive automation call
 4. On success the cache stores the result; on error it stores NOTHING
 5. The result (or the error) is returned to the caller
*/
type LoadFunc func(ctx context.Context) (any, error)
