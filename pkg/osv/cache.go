package osv

import (
	"context"

	"github.com/vulnscope/vulnscope/pkg/db"
	"github.com/vulnscope/vulnscope/pkg/log"
	"github.com/vulnscope/vulnscope/pkg/types"
)

// CachedLookup serves lookups from the local cache and stores every
// successful upstream answer, including "not found".
type CachedLookup struct {
	upstream Lookup
	cache    db.Operations
}

func NewCachedLookup(upstream Lookup, cache db.Operations) *CachedLookup {
	return &CachedLookup{upstream: upstream, cache: cache}
}

func (c *CachedLookup) Query(ctx context.Context, pkg types.Package) ([]types.Vulnerability, error) {
	vulns, hit, err := c.cache.GetLookup(pkg)
	if err != nil {
		log.Warn("Cache read error", log.Package(pkg.Name, pkg.Version), log.Err(err))
	} else if hit {
		log.Debug("Cache hit", log.Package(pkg.Name, pkg.Version))
		return vulns, nil
	}

	vulns, err = c.upstream.Query(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if err = c.cache.PutLookup(pkg, vulns); err != nil {
		log.Warn("Cache write error", log.Package(pkg.Name, pkg.Version), log.Err(err))
	}
	return vulns, nil
}
