package filter

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache memoizes parse results keyed on the raw expression string, evicting
// least recently used entries beyond its size. Since parsed trees are
// immutable, cached Results are shared safely between goroutines.
//
// The HTTP API parses the same handful of user filters for every request,
// which makes even a small cache effective.
type Cache struct {
	results *lru.Cache[string, Result]
}

func NewCache(size int) (*Cache, error) {
	results, err := lru.New[string, Result](size)
	if err != nil {
		return nil, err
	}

	return &Cache{results: results}, nil
}

// Parse returns the cached Result for the expression, parsing and caching it
// on a miss.
func (c *Cache) Parse(expression string) Result {
	if result, ok := c.results.Get(expression); ok {
		return result
	}

	result := Parse(expression)
	c.results.Add(expression, result)

	return result
}

// Len returns the number of cached expressions.
func (c *Cache) Len() int {
	return c.results.Len()
}
