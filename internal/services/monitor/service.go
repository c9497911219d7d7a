package monitor

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Service implements MonitorService. It coordinates three competing
// information sources per monitored entity: the warm cache, a cold network
// fetch, and the live change feed (or timed re-polling for invocation
// steps, which have no push feed).
type Service struct {
	cache   interfaces.CacheStorage
	feed    interfaces.CacheFeed
	fetcher interfaces.FetchService
	config  *common.MonitorConfig
	logger  arbor.ILogger
}

// NewService creates a new monitor service
func NewService(cache interfaces.CacheStorage, feed interfaces.CacheFeed, fetcher interfaces.FetchService, config *common.MonitorConfig, logger arbor.ILogger) interfaces.MonitorService {
	return &Service{
		cache:   cache,
		feed:    feed,
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}
