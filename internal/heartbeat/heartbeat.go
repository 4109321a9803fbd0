// Package heartbeat logs a periodic status line on a cron schedule.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"wabridge/internal/bridge"
	"wabridge/pkg/logger"
)

// ErrAlreadyRunning is returned by Start on a running heartbeat.
var ErrAlreadyRunning = errors.New("heartbeat: already running")

// InvalidScheduleError indicates an invalid cron schedule expression.
type InvalidScheduleError struct {
	Schedule string
	Cause    error
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("heartbeat: invalid schedule '%s': %v", e.Schedule, e.Cause)
}

func (e *InvalidScheduleError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for InvalidScheduleError.
func (e *InvalidScheduleError) Is(target error) bool {
	_, ok := target.(*InvalidScheduleError)
	return ok
}

// ErrInvalidSchedule is a sentinel for errors.Is matching.
var ErrInvalidSchedule = &InvalidScheduleError{}

// StatusFunc returns the status to report.
type StatusFunc func() bridge.Status

// Heartbeat runs the status job.
type Heartbeat struct {
	cron     *cron.Cron
	schedule string
	status   StatusFunc
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a heartbeat. Five-field schedules get a leading seconds
// field; six-field schedules and descriptors such as "@every 5m" are used
// as given.
func New(schedule string, status StatusFunc) (*Heartbeat, error) {
	log := *logger.Component("heartbeat")
	normalized := Normalize(schedule)

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(normalized); err != nil {
		return nil, &InvalidScheduleError{Schedule: schedule, Cause: err}
	}

	h := &Heartbeat{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{log: log}),
		),
		schedule: normalized,
		status:   status,
		log:      log,
	}
	if _, err := h.cron.AddFunc(normalized, h.beat); err != nil {
		return nil, &InvalidScheduleError{Schedule: schedule, Cause: err}
	}
	return h, nil
}

// Normalize converts a standard five-field expression to the six-field
// form with seconds.
func Normalize(schedule string) string {
	schedule = strings.TrimSpace(schedule)
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

// Start starts the scheduler.
func (h *Heartbeat) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrAlreadyRunning
	}
	h.cron.Start()
	h.running = true
	h.log.Info().Str("schedule", h.schedule).Msg("Heartbeat started")
	return nil
}

// Stop stops the scheduler; the returned context is done once a running
// beat finishes.
func (h *Heartbeat) Stop() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
	return h.cron.Stop()
}

// Run starts the heartbeat and stops it when ctx is done.
func (h *Heartbeat) Run(ctx context.Context) error {
	if err := h.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	<-h.Stop().Done()
	return nil
}

func (h *Heartbeat) beat() {
	st := h.status()
	h.log.Info().
		Str("state", st.State).
		Str("filter", st.Filter).
		Str("uptime", st.Uptime).
		Int("pending", st.Pending).
		Int64("forwarded", st.Stats.Forwarded).
		Int64("dropped", st.Stats.Dropped).
		Int64("acks", st.Stats.Acked).
		Int64("dispatched", st.Stats.Dispatched).
		Int64("malformed", st.Stats.Malformed).
		Int64("dispatch_failed", st.Stats.DispatchFailed).
		Msg("Heartbeat")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
