package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"firewatch/internal/config"
	"firewatch/internal/logger"
	"firewatch/internal/model"
	"firewatch/internal/service/ai"
	"firewatch/internal/service/alert"
	"firewatch/internal/service/sensor"
)

// State is the position of the pipeline within one detection cycle.
type State int32

const (
	Idle State = iota
	Classifying
	NoHazard
	HazardDetected
	Confirming
	Confirmed
	Unconfirmed
	Resolving
	Alerting
)

var stateNames = [...]string{
	Idle:           "Idle",
	Classifying:    "Classifying",
	NoHazard:       "NoHazard",
	HazardDetected: "HazardDetected",
	Confirming:     "Confirming",
	Confirmed:      "Confirmed",
	Unconfirmed:    "Unconfirmed",
	Resolving:      "Resolving",
	Alerting:       "Alerting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

type FrameSource interface {
	Latest() (*model.Frame, bool)
}

type FrameFilter interface {
	Accept(frame *model.Frame) ai.Decision
}

type HazardClassifier interface {
	Classify(ctx context.Context, frame *model.Frame) (model.Scores, error)
	Verdict(scores model.Scores) model.HazardVerdict
}

type Confirmer interface {
	Confirm(ctx context.Context, verdict model.HazardVerdict) (*model.SensorReading, error)
}

type LocationResolver interface {
	Resolve(ctx context.Context) (*model.GeoFix, bool)
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, event *model.AlertEvent) bool
}

// StateObserver is told about every state transition. It must not block.
type StateObserver interface {
	StateChanged(state string)
}

// Manager runs the detection pipeline: one frame per cycle through the
// filter and classifier, and on a hazard through gas confirmation, location
// lookup and alerting.
type Manager struct {
	source     FrameSource
	filter     FrameFilter
	classifier HazardClassifier
	confirmer  Confirmer
	resolver   LocationResolver
	dispatcher AlertDispatcher
	observer   StateObserver
	logger     *logger.Logger

	cycleDelay   time.Duration
	frameWait    time.Duration
	alertTimeout time.Duration

	state     atomic.Int32
	startedAt time.Time
	lastAlert atomic.Pointer[model.AlertEvent]
	counters  counters
}

type counters struct {
	cycles               atomic.Uint64
	dark                 atomic.Uint64
	duplicate            atomic.Uint64
	skipped              atomic.Uint64
	classified           atomic.Uint64
	classificationErrors atomic.Uint64
	hazards              atomic.Uint64
	confirmed            atomic.Uint64
	unconfirmed          atomic.Uint64
	sensorUnavailable    atomic.Uint64
	alertsSent           atomic.Uint64
	alertsFailed         atomic.Uint64
	panics               atomic.Uint64
}

func NewManager(source FrameSource, filter FrameFilter, classifier HazardClassifier, confirmer Confirmer,
	resolver LocationResolver, dispatcher AlertDispatcher, cfg *config.Config, logger *logger.Logger) *Manager {
	return &Manager{
		source:     source,
		filter:     filter,
		classifier: classifier,
		confirmer:  confirmer,
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger,
		cycleDelay:   cfg.CycleDelay,
		frameWait:    cfg.FrameWait,
		alertTimeout: cfg.AlertTimeout,
		startedAt:    time.Now(),
	}
}

// SetObserver registers the transition observer. Call before Run.
func (m *Manager) SetObserver(observer StateObserver) {
	m.observer = observer
}

// Run executes cycles until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("🎬 Fire detection started")
	for {
		final := m.safeCycle(ctx)

		wait := m.cycleDelay
		if final == Idle {
			wait = m.frameWait
		}
		m.transition(Idle)

		select {
		case <-ctx.Done():
			m.logger.Info("🛑 Fire detection stopped after %d cycles", m.counters.cycles.Load())
			return
		case <-time.After(wait):
		}
	}
}

func (m *Manager) safeCycle(ctx context.Context) (final State) {
	defer func() {
		if r := recover(); r != nil {
			m.counters.panics.Add(1)
			m.logger.Error("Recovered from panic in detection cycle: %v\n%s", r, debug.Stack())
			final = NoHazard
		}
	}()
	return m.Cycle(ctx)
}

// Cycle processes at most one frame and returns the last state it reached.
// Idle means no frame was available.
func (m *Manager) Cycle(ctx context.Context) State {
	frame, ok := m.source.Latest()
	if !ok {
		return Idle
	}
	defer frame.Close()
	m.counters.cycles.Add(1)

	m.transition(Classifying)
	switch decision := m.filter.Accept(frame); decision {
	case ai.Accepted:
	case ai.Dark:
		m.counters.dark.Add(1)
		return m.transition(NoHazard)
	case ai.Duplicate:
		m.counters.duplicate.Add(1)
		return m.transition(NoHazard)
	default:
		m.counters.skipped.Add(1)
		return m.transition(NoHazard)
	}

	scores, err := m.classifier.Classify(ctx, frame)
	if err != nil {
		m.counters.classificationErrors.Add(1)
		m.logger.Error("Classification of frame %d failed: %v", frame.Seq, err)
		return m.transition(NoHazard)
	}
	m.counters.classified.Add(1)
	m.logger.Debug("Frame %d scores: %v", frame.Seq, scores)

	verdict := m.classifier.Verdict(scores)
	if !verdict.IsHazard() {
		return m.transition(NoHazard)
	}

	m.counters.hazards.Add(1)
	m.transition(HazardDetected)
	m.logger.Warning("🔥 %s fire detected in frame %d (%s %.2f)", verdict.Kind, frame.Seq, verdict.Label, verdict.Score)

	m.transition(Confirming)
	reading, err := m.confirmer.Confirm(ctx, verdict)
	switch {
	case errors.Is(err, sensor.ErrSensorUnavailable):
		m.counters.sensorUnavailable.Add(1)
		m.logger.Warning("⚠️ %v, escalating visual detection without gas confirmation", err)
	case err != nil:
		m.counters.unconfirmed.Add(1)
		m.logger.Warning("Gas confirmation aborted: %v", err)
		return m.transition(Unconfirmed)
	case reading == nil:
		m.counters.unconfirmed.Add(1)
		m.logger.Info("No gas detected, ignoring %s fire detection", verdict.Kind)
		return m.transition(Unconfirmed)
	default:
		m.counters.confirmed.Add(1)
	}
	m.transition(Confirmed)

	// A confirmed hazard is always reported, even when shutdown starts now.
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.alertTimeout)
	defer cancel()

	m.transition(Resolving)
	fix, ok := m.resolver.Resolve(alertCtx)
	if !ok {
		fix = nil
	}

	m.transition(Alerting)
	event := alert.NewEvent(verdict, reading, fix)
	m.lastAlert.Store(event)
	if m.dispatcher.Dispatch(alertCtx, event) {
		m.counters.alertsSent.Add(1)
	} else {
		m.counters.alertsFailed.Add(1)
	}
	return Alerting
}

func (m *Manager) transition(to State) State {
	if State(m.state.Swap(int32(to))) != to && m.observer != nil {
		m.observer.StateChanged(to.String())
	}
	return to
}

// State returns the current pipeline state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	State                string            `json:"state"`
	StartedAt            time.Time         `json:"started_at"`
	Uptime               string            `json:"uptime"`
	Cycles               uint64            `json:"cycles"`
	Dark                 uint64            `json:"dark"`
	Duplicate            uint64            `json:"duplicate"`
	Skipped              uint64            `json:"skipped"`
	Classified           uint64            `json:"classified"`
	ClassificationErrors uint64            `json:"classification_errors"`
	Hazards              uint64            `json:"hazards"`
	Confirmed            uint64            `json:"confirmed"`
	Unconfirmed          uint64            `json:"unconfirmed"`
	SensorUnavailable    uint64            `json:"sensor_unavailable"`
	AlertsSent           uint64            `json:"alerts_sent"`
	AlertsFailed         uint64            `json:"alerts_failed"`
	Panics               uint64            `json:"panics"`
	LastAlert            *model.AlertEvent `json:"last_alert,omitempty"`
	Frames               *FrameStats       `json:"frames,omitempty"`
}

// FrameStats reports acquisition counters when the source provides them.
type FrameStats struct {
	Read     uint64 `json:"read"`
	Failures uint64 `json:"failures"`
	Dropped  uint64 `json:"dropped"`
}

type statsSource interface {
	Stats() (read, failures, dropped uint64)
}

func (m *Manager) Status() Status {
	c := &m.counters
	status := Status{
		State:                m.State().String(),
		StartedAt:            m.startedAt,
		Uptime:               time.Since(m.startedAt).Round(time.Second).String(),
		Cycles:               c.cycles.Load(),
		Dark:                 c.dark.Load(),
		Duplicate:            c.duplicate.Load(),
		Skipped:              c.skipped.Load(),
		Classified:           c.classified.Load(),
		ClassificationErrors: c.classificationErrors.Load(),
		Hazards:              c.hazards.Load(),
		Confirmed:            c.confirmed.Load(),
		Unconfirmed:          c.unconfirmed.Load(),
		SensorUnavailable:    c.sensorUnavailable.Load(),
		AlertsSent:           c.alertsSent.Load(),
		AlertsFailed:         c.alertsFailed.Load(),
		Panics:               c.panics.Load(),
		LastAlert:            m.lastAlert.Load(),
	}
	if s, ok := m.source.(statsSource); ok {
		read, failures, dropped := s.Stats()
		status.Frames = &FrameStats{Read: read, Failures: failures, Dropped: dropped}
	}
	return status
}
