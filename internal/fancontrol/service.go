package fancontrol

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"pifan/internal/thermal"
)

var openActuatorFn = openActuator
var afterFn = time.After

type Config struct {
	Driver DriverConfig
	Params Params

	// UpdateInterval is the time between ticks.
	UpdateInterval time.Duration
	// MaxSensorFailures consecutive failed reads are tolerated by reusing
	// the last temperature; the next one is fatal.
	MaxSensorFailures int

	// StartupTest spins the fan at MaxSpeed, then MinSpeed, before control
	// starts.
	StartupTest bool
	StartupFull time.Duration
	StartupMin  time.Duration
}

type Snapshot struct {
	Running bool   `json:"running"`
	Backend string `json:"backend"`

	TempValid bool                `json:"temp_valid"`
	Temp      thermal.Temperature `json:"temp"`
	TempC     float64             `json:"temp_c"`
	Average   thermal.Temperature `json:"average"`

	Active      bool    `json:"active"`
	Speed       int     `json:"speed"`
	DutyPercent float64 `json:"duty_percent"`
	Correction  int     `json:"correction"`

	SensorFailures int    `json:"sensor_failures"`
	Writes         uint64 `json:"writes"`

	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Observer is notified from the control goroutine.
type Observer interface {
	ObserveTick(Snapshot)
	SensorError()
	DutyWritten(v int)
}

type nopObserver struct{}

func (nopObserver) ObserveTick(Snapshot) {}
func (nopObserver) SensorError()         {}
func (nopObserver) DutyWritten(int)      {}

// Service runs the control loop: it reads the sensor once per interval,
// ticks the Controller and writes the actuator when the speed changes.
type Service struct {
	cfg Config
	src thermal.Source
	obs Observer
	log *log.Entry

	mu   sync.RWMutex
	snap Snapshot

	// Owned by the control goroutine.
	drv      Actuator
	ctrl     *Controller
	lastTemp thermal.Temperature
	failures int
	writes   uint64
}

func New(cfg Config, src thermal.Source, obs Observer) *Service {
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	if cfg.Driver.Range == 0 {
		cfg.Driver.Range = cfg.Params.Range
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Second
	}
	if cfg.MaxSensorFailures <= 0 {
		cfg.MaxSensorFailures = 5
	}
	if cfg.StartupFull <= 0 {
		cfg.StartupFull = 5 * time.Second
	}
	if cfg.StartupMin <= 0 {
		cfg.StartupMin = 10 * time.Second
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Service{
		cfg:  cfg,
		src:  src,
		obs:  obs,
		log:  log.WithField("component", "fancontrol"),
		snap: Snapshot{Backend: cfg.Driver.Backend},
	}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}

func (s *Service) setErr(msg string) {
	s.setState(func(sn *Snapshot) { sn.LastError = msg })
}

// Run opens the actuator and controls the fan until ctx is done. It returns
// nil on cancellation and an error when the fan can no longer be controlled.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("fancontrol: service is nil")
	}
	if s.src == nil {
		return fmt.Errorf("fancontrol: no temperature source")
	}
	if err := s.cfg.Params.Validate(); err != nil {
		return err
	}

	drv, err := openActuatorFn(s.cfg.Driver)
	if err != nil {
		s.setErr(err.Error())
		return err
	}
	s.log.WithFields(log.Fields{
		"backend": s.cfg.Driver.Backend,
		"pin":     s.cfg.Driver.Pin,
		"range":   s.cfg.Driver.Range,
	}).Info("actuator opened")

	fatal := false
	defer func() {
		// After a fatal error the fan is left at the fail-safe speed.
		if fatal {
			return
		}
		if err := drv.Close(); err != nil {
			s.log.WithError(err).Warn("actuator close failed")
		}
		s.setState(func(sn *Snapshot) {
			sn.Running = false
			sn.Speed = 0
			sn.DutyPercent = 0
		})
	}()

	s.drv = drv
	if err := s.command(0); err != nil {
		fatal = true
		return err
	}
	s.setState(func(sn *Snapshot) { sn.Running = true })

	if s.cfg.StartupTest {
		if err := s.startupTest(ctx); err != nil {
			fatal = ctx.Err() == nil
			return errIfLive(ctx, err)
		}
	}

	if err := s.prime(); err != nil {
		fatal = true
		s.failSafe()
		return err
	}

	select {
	case <-afterFn(s.cfg.UpdateInterval):
	case <-ctx.Done():
		return nil
	}

	t := time.NewTicker(s.cfg.UpdateInterval)
	defer t.Stop()
	for {
		if err := s.Step(); err != nil {
			fatal = true
			s.setErr(err.Error())
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func errIfLive(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// startupTest runs the fan at full speed, then at its minimum, then stops it.
func (s *Service) startupTest(ctx context.Context) error {
	steps := []struct {
		speed int
		hold  time.Duration
	}{
		{s.cfg.Params.MaxSpeed, s.cfg.StartupFull},
		{s.cfg.Params.MinSpeed, s.cfg.StartupMin},
	}
	for _, st := range steps {
		if err := s.command(st.speed); err != nil {
			return err
		}
		select {
		case <-afterFn(st.hold):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.command(0)
}

// prime reads the first temperature and builds the controller with a full
// history.
func (s *Service) prime() error {
	t0, err := s.src.Read()
	if err != nil {
		s.obs.SensorError()
		return fmt.Errorf("fancontrol: initial temperature: %w", err)
	}
	ctrl, err := NewController(s.cfg.Params, t0)
	if err != nil {
		return err
	}
	s.ctrl = ctrl
	s.lastTemp = t0
	s.publish(t0, true)
	s.log.WithField("temp_c", t0.Celsius()).Info("control loop primed")
	return nil
}

// Step runs one synchronous control tick: read, evaluate, write on change.
func (s *Service) Step() error {
	if s.ctrl == nil || s.drv == nil {
		return fmt.Errorf("fancontrol: service not started")
	}

	t, err := s.src.Read()
	valid := err == nil
	if err != nil {
		s.failures++
		s.obs.SensorError()
		if s.failures > s.cfg.MaxSensorFailures {
			s.failSafe()
			return fmt.Errorf("fancontrol: %d consecutive sensor failures: %w", s.failures, err)
		}
		s.log.WithError(err).WithField("failures", s.failures).Warn("sensor read failed, reusing last temperature")
		s.setErr(err.Error())
		t = s.lastTemp
	} else {
		s.failures = 0
		s.lastTemp = t
	}

	speed, changed := s.ctrl.Tick(t)
	if changed {
		if err := s.command(speed); err != nil {
			return err
		}
	}
	s.publish(t, valid)
	return nil
}

// command writes speed to the actuator.
func (s *Service) command(speed int) error {
	if err := s.drv.SetDuty(speed); err != nil {
		return fmt.Errorf("fancontrol: set duty %d: %w", speed, err)
	}
	s.writes++
	s.obs.DutyWritten(speed)
	s.log.WithField("speed", speed).Infof("fan duty %.1f%%", dutyPercent(speed, s.cfg.Driver.Range))
	s.setState(func(sn *Snapshot) {
		sn.Speed = speed
		sn.DutyPercent = dutyPercent(speed, s.cfg.Driver.Range)
		sn.Writes = s.writes
	})
	return nil
}

// failSafe runs the fan at full speed when temperature is no longer known.
func (s *Service) failSafe() {
	if s.drv == nil {
		return
	}
	if err := s.command(s.cfg.Params.MaxSpeed); err != nil {
		s.log.WithError(err).Error("fail-safe duty failed")
	}
}

func (s *Service) publish(t thermal.Temperature, valid bool) {
	st := s.ctrl.State()
	s.setState(func(sn *Snapshot) {
		sn.TempValid = valid
		sn.Temp = t
		sn.TempC = t.Celsius()
		sn.Average = st.Average
		sn.Active = st.Active
		sn.Speed = st.Speed
		sn.DutyPercent = dutyPercent(st.Speed, s.cfg.Driver.Range)
		sn.Correction = st.Correction
		sn.SensorFailures = s.failures
		if valid {
			sn.LastError = ""
		}
	})
	s.obs.ObserveTick(s.Snapshot())
}
