// Package worker runs the reservation expiry sweeper.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
)

// SweeperConfig holds the sweeper's tuning knobs.
type SweeperConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// BatchSize caps reservations released per sweep.
	BatchSize int
}

// DefaultSweeperConfig returns the default sweeper configuration.
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval:  60 * time.Second,
		BatchSize: 100,
	}
}

// Sweeper periodically releases expired reservations so stock recovers even
// when the payment leg's failure event never arrives.
type Sweeper struct {
	svc    *service.InventoryService
	config *SweeperConfig
	log    *logger.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a Sweeper.
func NewSweeper(svc *service.InventoryService, config *SweeperConfig, log *logger.Logger) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Sweeper{
		svc:    svc,
		config: config,
		log:    log.Named("sweeper"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	s.log.Info("reservation sweeper started", zap.Duration("interval", s.config.Interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("reservation sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.svc.SweepExpired(ctx, time.Now(), s.config.BatchSize)
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		s.log.Info("released expired reservations", zap.Int("count", released))
	}
}
