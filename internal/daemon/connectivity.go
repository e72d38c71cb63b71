package daemon

import (
	"net/http"
	"sync"
	"time"

	"github.com/existflow/ironsync/internal/logger"
)

// Monitor polls the sync server's health endpoint and fires an event each
// time connectivity transitions from down to up. The daemon subscribes to
// it so a restored connection triggers an immediate drain instead of
// waiting out the interval.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client

	mu      sync.Mutex
	online  bool
	running bool
	events  chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
}

// NewMonitor creates a monitor for the given health URL. A zero interval
// defaults to 15s.
func NewMonitor(healthURL string, interval time.Duration) *Monitor {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		url:      healthURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		events:   make(chan struct{}, 1),
	}
}

// Restored returns the channel that receives one event per offline-to-online
// transition
func (m *Monitor) Restored() <-chan struct{} {
	return m.events
}

// Online reports the last observed connectivity state
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start begins polling. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	stopCh, done := m.stopCh, m.done
	m.mu.Unlock()

	go m.poll(stopCh, done)
}

// Stop halts polling
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()

	<-done
}

func (m *Monitor) poll(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	up := m.probe()

	m.mu.Lock()
	wasOnline := m.online
	m.online = up
	m.mu.Unlock()

	if up && !wasOnline {
		logger.Info("Sync server reachable", logger.F("url", m.url))
		select {
		case m.events <- struct{}{}:
		default:
			// A pending event already covers this transition.
		}
	}
	if !up && wasOnline {
		logger.Warn("Sync server unreachable", logger.F("url", m.url))
	}
}

func (m *Monitor) probe() bool {
	resp, err := m.client.Get(m.url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
