package cache

import (
	"strings"
	"time"

	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
)

const defaultDefinitionTTL = 10 * time.Minute

// DefinitionCache stores metric-definition lookups so batch ingestion does
// not hit the database once per record for well-known metric names.
type DefinitionCache interface {
	Get(tenantID, name string) (*metricdefdomain.MetricDefinition, bool)
	Set(tenantID, name string, def *metricdefdomain.MetricDefinition)
}

type definitionCache struct {
	defs Cache[string, *metricdefdomain.MetricDefinition]
	ttl  time.Duration
}

// NewDefinitionCache returns an in-memory cache tuned for metric ingest.
func NewDefinitionCache() DefinitionCache {
	return &definitionCache{
		defs: NewTTLCache[string, *metricdefdomain.MetricDefinition](),
		ttl:  defaultDefinitionTTL,
	}
}

func (c *definitionCache) Get(tenantID, name string) (*metricdefdomain.MetricDefinition, bool) {
	return c.defs.Get(cacheKey(tenantID, name))
}

func (c *definitionCache) Set(tenantID, name string, def *metricdefdomain.MetricDefinition) {
	if def == nil {
		return
	}
	c.defs.Set(cacheKey(tenantID, name), def, c.ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		values = append(values, strings.TrimSpace(part))
	}
	return strings.Join(values, "|")
}
