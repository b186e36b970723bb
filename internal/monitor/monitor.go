package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aeroduel/plane/internal/radio"
	"github.com/aeroduel/plane/internal/registry"
)

// MatchView is the match controller state the monitor reports.
type MatchView interface {
	Active() bool
	PendingAcks() int
}

// RadioStats reports link counters.
type RadioStats interface {
	Stats() radio.Stats
}

// ClientCounter reports connected push-channel clients.
type ClientCounter interface {
	Clients() int
}

// QueueView reports journal events still waiting to be written.
type QueueView interface {
	QueueDepths() map[string]int
}

// Dependencies holds all dependencies for the monitor service.
// Radio, Hub, Journal and StatusFile are optional.
type Dependencies struct {
	PlaneID     string
	Registry    *registry.Registry
	Match       MatchView
	Radio       RadioStats
	Hub         ClientCounter
	Journal     QueueView
	StorageType string
	StatusFile  string
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Status is a point-in-time health report.
type Status struct {
	Time          time.Time    `json:"time"`
	PlaneID       string       `json:"planeId"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
	MatchActive   bool         `json:"matchActive"`
	Planes        int          `json:"planes"`
	PlanesOnline  int          `json:"planesOnline"`
	MaxPlanes     int          `json:"maxPlanes"`
	PendingAcks   int          `json:"pendingAcks"`
	Storage       string       `json:"storage"`
	HubClients    int          `json:"hubClients"`
	JournalQueued int          `json:"journalQueued"`
	Radio         *radio.Stats `json:"radio,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:    deps,
		started: deps.Clock(),
	}
}

// Status returns the current program status.
func (s *Service) Status() Status {
	now := s.deps.Clock()
	st := Status{
		Time:          now,
		PlaneID:       s.deps.PlaneID,
		UptimeSeconds: int64(now.Sub(s.started).Seconds()),
		Storage:       s.deps.StorageType,
	}

	if s.deps.Match != nil {
		st.MatchActive = s.deps.Match.Active()
		st.PendingAcks = s.deps.Match.PendingAcks()
	}
	if s.deps.Registry != nil {
		st.MaxPlanes = s.deps.Registry.MaxPlanes()
		for _, p := range s.deps.Registry.Snapshot() {
			st.Planes++
			if p.IsOnline {
				st.PlanesOnline++
			}
		}
	}
	if s.deps.Hub != nil {
		st.HubClients = s.deps.Hub.Clients()
	}
	if s.deps.Journal != nil {
		for _, n := range s.deps.Journal.QueueDepths() {
			st.JournalQueued += n
		}
	}
	if s.deps.Radio != nil {
		stats := s.deps.Radio.Stats()
		st.Radio = &stats
	}
	return st
}

// IsRunning returns whether the status writer is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start writes the status to StatusFile every interval until Stop.
// Without a StatusFile it does nothing.
func (s *Service) Start(interval time.Duration) {
	if s.deps.StatusFile == "" {
		return
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "file", s.deps.StatusFile, "interval", interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.writeStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()
}

// Stop stops the status writer and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *Service) writeStatus() error {
	data, err := json.MarshalIndent(s.Status(), "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.deps.StatusFile)
}
