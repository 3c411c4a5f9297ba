package ingestion

import (
	"context"
	"fmt"
	"sync"
)

// TileResult is one tile's fetch outcome: either Body or Err is set.
type TileResult struct {
	Tile Tile
	Body []byte
	Err  error
}

// FetchAll issues one request per tile concurrently and waits for every
// outcome, success or failure. No tile's failure blocks the others.
// Results come back in tile-list order regardless of arrival order.
func (c *Client) FetchAll(ctx context.Context, tiles []Tile) []TileResult {
	results := make([]TileResult, len(tiles))

	var wg sync.WaitGroup
	for i, t := range tiles {
		wg.Add(1)
		go func(i int, t Tile) {
			defer wg.Done()
			body, err := c.FetchTile(ctx, t)
			if err != nil {
				results[i] = TileResult{Tile: t, Err: fmt.Errorf("tile %d: %w", i, err)}
				return
			}
			results[i] = TileResult{Tile: t, Body: body}
		}(i, t)
	}
	wg.Wait()

	return results
}
