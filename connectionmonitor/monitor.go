// Package connectionmonitor keeps the payout ledgers' RPC connections
// alive: it periodically pings the client and reconnects with bounded
// retries when the ping fails.
package connectionmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// defaultHealthCheckInterval defines the interval between connection health checks.
	defaultHealthCheckInterval = 30 * time.Second
	// defaultReconnectTimeout defines the pause between reconnection attempts.
	defaultReconnectTimeout = 5 * time.Second
	// defaultMaxReconnectAttempts defines the maximum number of reconnection attempts.
	defaultMaxReconnectAttempts = 3
)

// ConnectionMonitor represents the connection state monitoring interface.
type ConnectionMonitor interface {
	// Start starts connection monitoring.
	Start(ctx context.Context) error
	// Stop stops connection monitoring.
	Stop()
}

// BlockchainClient represents the monitored blockchain client interface.
type BlockchainClient interface {
	// CheckConnection checks if the connection is alive.
	CheckConnection(ctx context.Context) error
	// Reconnect attempts to reconnect to the blockchain node.
	Reconnect(ctx context.Context) error
}

// Config tunes the monitoring loop. Zero values fall back to defaults.
type Config struct {
	HealthCheckInterval  time.Duration
	ReconnectTimeout     time.Duration
	MaxReconnectAttempts int
}

func (c Config) withDefaults() Config {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = defaultReconnectTimeout
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	return c
}

type connectionMonitor struct {
	client       BlockchainClient
	logger       *logrus.Logger
	chainName    string
	config       Config
	stopChan     chan struct{}
	isMonitoring bool
	monitorMutex sync.RWMutex
}

// NewConnectionMonitor creates a new connection monitor instance.
//
// Parameters:
// - client: the blockchain client to monitor.
// - logger: the logger for logging purposes.
// - chainName: the name of the monitored chain.
//
// Returns:
// - ConnectionMonitor: the new connection monitor instance.
func NewConnectionMonitor(
	client BlockchainClient,
	logger *logrus.Logger,
	chainName string,
) ConnectionMonitor {
	return NewConnectionMonitorWithConfig(client, logger, chainName, Config{})
}

// NewConnectionMonitorWithConfig creates a connection monitor with explicit
// loop timings.
func NewConnectionMonitorWithConfig(
	client BlockchainClient,
	logger *logrus.Logger,
	chainName string,
	config Config,
) ConnectionMonitor {
	return &connectionMonitor{
		client:    client,
		logger:    logger,
		chainName: chainName,
		config:    config.withDefaults(),
		stopChan:  make(chan struct{}),
	}
}

// Start starts connection monitoring.
//
// Parameters:
// - ctx: the context for managing the request.
//
// Returns:
// - error: an error if the connection monitor is already running.
func (m *connectionMonitor) Start(ctx context.Context) error {
	m.monitorMutex.Lock()
	if m.isMonitoring {
		m.monitorMutex.Unlock()
		return errors.Errorf("connection monitor is already running for chain %s", m.chainName)
	}
	m.isMonitoring = true
	m.monitorMutex.Unlock()

	go m.monitorConnection(ctx)
	return nil
}

// Stop stops connection monitoring.
func (m *connectionMonitor) Stop() {
	m.monitorMutex.Lock()
	defer m.monitorMutex.Unlock()

	if !m.isMonitoring {
		return
	}

	close(m.stopChan)
	m.isMonitoring = false
}

// monitorConnection runs the health check loop until stopped.
func (m *connectionMonitor) monitorConnection(ctx context.Context) {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.WithField("chain", m.chainName).Info("Connection monitoring stopped due to context cancellation")
			return

		case <-m.stopChan:
			m.logger.WithField("chain", m.chainName).Info("Connection monitoring stopped")
			return

		case <-ticker.C:
			if err := m.checkAndReconnect(ctx); err != nil {
				m.logger.WithFields(logrus.Fields{
					"chain": m.chainName,
					"error": err,
				}).Error("Failed to check or reconnect")
			}
		}
	}
}

// checkAndReconnect checks the connection state and attempts to reconnect
// with bounded retries if the check fails.
func (m *connectionMonitor) checkAndReconnect(ctx context.Context) error {
	if err := m.client.CheckConnection(ctx); err == nil {
		m.logger.WithField("chain", m.chainName).Debug("Ping successful")
		return nil
	} else {
		m.logger.WithFields(logrus.Fields{
			"chain": m.chainName,
			"error": err,
		}).Warn("Connection check failed, attempting to reconnect")
	}

	for attempt := 1; attempt <= m.config.MaxReconnectAttempts; attempt++ {
		err := m.client.Reconnect(ctx)
		if err == nil {
			m.logger.WithFields(logrus.Fields{
				"chain":   m.chainName,
				"attempt": attempt,
			}).Info("Client successfully reconnected")
			return nil
		}

		m.logger.WithFields(logrus.Fields{
			"chain":   m.chainName,
			"attempt": attempt,
			"error":   err,
		}).Error("Reconnection attempt failed")

		if attempt == m.config.MaxReconnectAttempts {
			return errors.Wrapf(err, "failed to reconnect to chain %s", m.chainName)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.ReconnectTimeout):
		}
	}

	return nil
}
