package ooxml

import "sync"

// Resolver flattens style inheritance chains. Results are memoised and the
// resolver is safe for concurrent use.
type Resolver struct {
	catalog *Catalog

	mu    sync.RWMutex
	cache map[string]resolution
}

type resolution struct {
	style Style
	ok    bool
}

func NewResolver(c *Catalog) *Resolver {
	return &Resolver{catalog: c, cache: make(map[string]resolution)}
}

// Resolve returns style with every property group it or any of its ancestors
// set, nearest declaration winning. Unknown id yields false. Cycles and
// dangling parent references end the walk, whatever was collected so far is
// used.
func (r *Resolver) Resolve(id string) (Style, bool) {
	r.mu.RLock()
	res, hit := r.cache[id]
	r.mu.RUnlock()
	if hit {
		return res.style, res.ok
	}

	style, ok := r.catalog.resolve(id)

	r.mu.Lock()
	r.cache[id] = resolution{style: style, ok: ok}
	r.mu.Unlock()
	return style, ok
}

func (c *Catalog) resolve(id string) (Style, bool) {
	start, ok := c.styles[id]
	if !ok {
		return Style{}, false
	}

	chain := []Style{start}
	visited := map[string]bool{start.ID: true}
	for cur := start; cur.ParentID != ""; {
		if visited[cur.ParentID] {
			break
		}
		parent, ok := c.styles[cur.ParentID]
		if !ok {
			break
		}
		visited[parent.ID] = true
		chain = append(chain, parent)
		cur = parent
	}

	// merge from root ancestor down to the requested style
	var merged Style
	for i := len(chain) - 1; i >= 0; i-- {
		merged = overlay(merged, chain[i])
	}
	merged.ID, merged.Name, merged.Type, merged.Default = start.ID, start.Name, start.Type, start.Default
	merged.ParentID = ""
	return merged, true
}
