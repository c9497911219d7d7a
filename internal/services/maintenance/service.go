package maintenance

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	storagebadger "github.com/ternarybob/vigil/internal/storage/badger"
)

// Service runs scheduled store maintenance: Badger value log garbage
// collection so long-running monitor deployments do not grow unbounded.
type Service struct {
	db     *storagebadger.BadgerDB
	config *common.MaintenanceConfig
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewService creates a new maintenance service
func NewService(db *storagebadger.BadgerDB, config *common.MaintenanceConfig, logger arbor.ILogger) *Service {
	return &Service{
		db:     db,
		config: config,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start schedules the maintenance job. No-op when disabled.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Store maintenance disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.runGC); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Store maintenance scheduled")
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runGC runs value log GC rounds until Badger reports nothing to rewrite.
func (s *Service) runGC() {
	rounds := 0
	for {
		err := s.db.RunValueLogGC(0.5)
		if err != nil {
			if err != badger.ErrNoRewrite {
				s.logger.Warn().Err(err).Msg("Value log GC failed")
			}
			break
		}
		rounds++
	}

	s.logger.Debug().Int("rounds", rounds).Msg("Store maintenance completed")
}
