package measure

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EPC-MSU/EPCore/internal/board"
)

// DefaultPollInterval is how often CaptureAll asks a device whether its
// measurement is ready.
const DefaultPollInterval = 5 * time.Millisecond

// System presents several measurers and multiplexers as one device.
type System struct {
	mu sync.Mutex

	// armMu guards armed. TriggerManual takes it instead of mu so a
	// trigger can land while CaptureAll waits.
	armMu sync.Mutex
	armed map[string]bool

	measurers    []Measurer
	multiplexers []Multiplexer

	active *board.MultiplexerOutput

	logger       *zap.Logger
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *System) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPollInterval sets the readiness poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *System) { s.pollInterval = d }
}

// WithCaptureTimeout bounds each CaptureAll call. Zero means no bound
// beyond the caller's context.
func WithCaptureTimeout(d time.Duration) Option {
	return func(s *System) { s.timeout = d }
}

// NewSystem creates a system over the given devices.
func NewSystem(measurers []Measurer, multiplexers []Multiplexer, opts ...Option) *System {
	s := &System{
		measurers:    append([]Measurer(nil), measurers...),
		multiplexers: append([]Multiplexer(nil), multiplexers...),
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
		armed:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Devices is the result of ListDevices.
type Devices struct {
	Measurers    []DeviceInfo `json:"measurers"`
	Multiplexers []DeviceInfo `json:"multiplexers"`
}

// ListDevices returns the identity of every device. It has no side effects.
func (s *System) ListDevices() Devices {
	d := Devices{
		Measurers:    make([]DeviceInfo, 0, len(s.measurers)),
		Multiplexers: make([]DeviceInfo, 0, len(s.multiplexers)),
	}
	for _, m := range s.measurers {
		d.Measurers = append(d.Measurers, m.Info())
	}
	for _, m := range s.multiplexers {
		d.Multiplexers = append(d.Multiplexers, m.Info())
	}
	return d
}

// Measurers returns the configured measurers.
func (s *System) Measurers() []Measurer {
	return append([]Measurer(nil), s.measurers...)
}

// ApplySettings sends settings to every measurer and reads them back. It
// fails with a SettingsInconsistencyError when the devices disagree with
// each other or with the request.
func (s *System) ApplySettings(ctx context.Context, settings board.MeasureSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.measurers) == 0 {
		return ErrNoMeasurers
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range s.measurers {
		g.Go(func() error {
			return deviceErr(m.ID(), "set settings", m.SetSettings(gctx, settings))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	got, err := s.readSettingsLocked(ctx)
	if err != nil {
		return err
	}
	if !got.Equal(settings) {
		byDevice := map[string]board.MeasureSettings{"requested": settings}
		for _, m := range s.measurers {
			byDevice[m.ID()] = got
		}
		return inconsistency(byDevice)
	}
	s.logger.Debug("settings applied",
		zap.Int("measurers", len(s.measurers)),
		zap.Float64("probe_signal_frequency", settings.ProbeSignalFrequency),
		zap.Float64("max_voltage", settings.MaxVoltage),
		zap.Float64("internal_resistance", settings.InternalResistance))
	return nil
}

// ReadSettings returns the configuration shared by all measurers.
func (s *System) ReadSettings(ctx context.Context) (board.MeasureSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSettingsLocked(ctx)
}

func (s *System) readSettingsLocked(ctx context.Context) (board.MeasureSettings, error) {
	if len(s.measurers) == 0 {
		return board.MeasureSettings{}, ErrNoMeasurers
	}
	all := make([]board.MeasureSettings, len(s.measurers))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range s.measurers {
		g.Go(func() error {
			st, err := m.Settings(gctx)
			if err != nil {
				return deviceErr(m.ID(), "read settings", err)
			}
			all[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return board.MeasureSettings{}, err
	}

	byDevice := make(map[string]board.MeasureSettings, len(all))
	for i, m := range s.measurers {
		byDevice[m.ID()] = all[i]
	}
	for _, st := range all[1:] {
		if !st.Equal(all[0]) {
			err := inconsistency(byDevice)
			s.logger.Warn("measurers disagree", zap.Error(err))
			return board.MeasureSettings{}, err
		}
	}
	return all[0], nil
}

// inconsistency builds an error listing only the fields that differ.
func inconsistency(byDevice map[string]board.MeasureSettings) *SettingsInconsistencyError {
	values := make(map[string]map[string]float64)
	for id, st := range byDevice {
		for name, v := range st.Fields() {
			if values[name] == nil {
				values[name] = make(map[string]float64)
			}
			values[name][id] = v
		}
	}
	fields := make(map[string]map[string]float64)
	for name, perDevice := range values {
		if len(perDevice) != len(byDevice) || !allEqual(perDevice) {
			fields[name] = perDevice
		}
	}
	return &SettingsInconsistencyError{Fields: fields}
}

func allEqual(m map[string]float64) bool {
	first, set := 0.0, false
	for _, v := range m {
		if !set {
			first, set = v, true
			continue
		}
		if v != first {
			return false
		}
	}
	return true
}

// CaptureAll triggers every auto-trigger measurer, waits for every
// measurer to finish and returns one curve per device ID. A manual-trigger
// measurer contributes only after a TriggerManual issued since its last
// capture; without one the call fails with a DeviceTimeoutError once the
// context ends. Either every device produces a curve or the call fails.
func (s *System) CaptureAll(ctx context.Context) (map[string]board.IVCurve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.measurers) == 0 {
		return nil, ErrNoMeasurers
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	curves := make([]board.IVCurve, len(s.measurers))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range s.measurers {
		g.Go(func() error {
			c, err := s.capture(gctx, m)
			if err != nil {
				return err
			}
			curves[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("capture failed", zap.Error(err))
		return nil, err
	}

	out := make(map[string]board.IVCurve, len(curves))
	for i, m := range s.measurers {
		out[m.ID()] = curves[i]
	}
	s.logger.Debug("captured", zap.Int("curves", len(out)))
	return out, nil
}

func (s *System) capture(ctx context.Context, m Measurer) (board.IVCurve, error) {
	id := m.ID()
	if f, ok := m.(Freezer); ok && f.Frozen() {
		c, err := m.LastCurve(ctx)
		return c, deviceErr(id, "read frozen curve", err)
	}
	if m.TriggerMode() == TriggerAuto {
		if err := m.Trigger(ctx); err != nil {
			return board.IVCurve{}, deviceErr(id, "trigger", err)
		}
	} else {
		// Each manual trigger is consumed by exactly one capture.
		err := s.poll(ctx, id, func() (bool, error) { return s.takeArm(id), nil })
		if err != nil {
			return board.IVCurve{}, err
		}
	}
	if err := s.waitReady(ctx, m); err != nil {
		return board.IVCurve{}, err
	}
	c, err := m.LastCurve(ctx)
	if err != nil {
		return board.IVCurve{}, deviceErr(id, "read curve", err)
	}
	if err := c.Validate(""); err != nil {
		return board.IVCurve{}, deviceErr(id, "read curve", err)
	}
	return c, nil
}

func (s *System) waitReady(ctx context.Context, m Measurer) error {
	return s.poll(ctx, m.ID(), func() (bool, error) {
		ready, err := m.Ready(ctx)
		return ready, deviceErr(m.ID(), "poll", err)
	})
}

// poll calls done every poll interval until it reports true, fails, or ctx
// ends. Expiry is reported as a DeviceTimeoutError for id.
func (s *System) poll(ctx context.Context, id string, done func() (bool, error)) error {
	var tick <-chan time.Time
	if s.pollInterval > 0 {
		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if tick == nil {
			if err := ctx.Err(); err != nil {
				return &DeviceTimeoutError{Device: id, Err: err}
			}
			continue
		}
		select {
		case <-ctx.Done():
			return &DeviceTimeoutError{Device: id, Err: ctx.Err()}
		case <-tick:
		}
	}
}

func (s *System) takeArm(id string) bool {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	if !s.armed[id] {
		return false
	}
	delete(s.armed, id)
	return true
}

// TriggerManual starts a measurement on every manual-trigger measurer and
// arms it for the next CaptureAll. It does nothing when no device is in
// manual mode, and it does not wait for a capture in progress.
func (s *System) TriggerManual(ctx context.Context) error {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	var (
		mu  sync.Mutex
		ids []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range s.measurers {
		if m.TriggerMode() != TriggerManual {
			continue
		}
		g.Go(func() error {
			if err := m.Trigger(gctx); err != nil {
				return deviceErr(m.ID(), "trigger", err)
			}
			mu.Lock()
			ids = append(ids, m.ID())
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	for _, id := range ids {
		s.armed[id] = true
	}
	if len(ids) > 0 {
		s.logger.Debug("manual trigger", zap.Strings("devices", ids))
	}
	return err
}

// SetCustomParameter passes key and value to every device that accepts
// custom parameters and returns how many devices took it. Devices that do
// not recognise the key are skipped.
func (s *System) SetCustomParameter(key string, value any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accepted := 0
	for _, d := range s.allDevices() {
		ps, ok := d.(ParameterSetter)
		if !ok {
			continue
		}
		err := ps.SetParameter(key, value)
		switch {
		case err == nil:
			accepted++
		case isUnsupported(err):
		default:
			return accepted, &DeviceError{Device: deviceID(d), Op: "set parameter " + key, Err: err}
		}
	}
	s.logger.Debug("custom parameter", zap.String("key", key), zap.Int("accepted", accepted))
	return accepted, nil
}

// Calibrate calibrates every device that supports it.
func (s *System) Calibrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.allDevices() {
		if c, ok := d.(Calibrator); ok {
			if err := c.Calibrate(ctx); err != nil {
				return deviceErr(deviceID(d), "calibrate", err)
			}
		}
	}
	return nil
}

// SetActiveChannel connects out on every multiplexer that owns its module
// and waits until each reports the connection. It fails with an
// UnknownOutputError when no multiplexer owns the module.
func (s *System) SetActiveChannel(ctx context.Context, out board.MultiplexerOutput) error {
	if err := out.Validate("multiplexer_output"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var owners []Multiplexer
	for _, m := range s.multiplexers {
		if Owns(m, out.ModuleNumber) {
			owners = append(owners, m)
		}
	}
	if len(owners) == 0 {
		return &UnknownOutputError{Output: out}
	}
	return s.connectLocked(ctx, owners, out)
}

// SetActiveChannelOn connects out on the multiplexer with the given ID
// only. Other multiplexers are left as they are.
func (s *System) SetActiveChannelOn(ctx context.Context, id string, out board.MultiplexerOutput) error {
	if err := out.Validate("multiplexer_output"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.multiplexers {
		if m.ID() != id {
			continue
		}
		if !Owns(m, out.ModuleNumber) {
			return &UnknownOutputError{Output: out}
		}
		return s.connectLocked(ctx, []Multiplexer{m}, out)
	}
	return &DeviceError{Device: id, Op: "connect", Err: ErrUnknownDevice}
}

func (s *System) connectLocked(ctx context.Context, owners []Multiplexer, out board.MultiplexerOutput) error {
	s.active = nil
	for _, m := range owners {
		if err := m.Connect(ctx, out); err != nil {
			return deviceErr(m.ID(), "connect", err)
		}
		got, err := m.Connected(ctx)
		if err != nil {
			return deviceErr(m.ID(), "read connected channel", err)
		}
		if got == nil || *got != out {
			return &DeviceError{Device: m.ID(), Op: "connect", Err: fmt.Errorf("channel did not settle on %s", out)}
		}
	}
	active := out
	s.active = &active
	s.logger.Debug("channel selected",
		zap.Int("module", out.ModuleNumber),
		zap.Int("channel", out.ChannelNumber),
		zap.Int("multiplexers", len(owners)))
	return nil
}

// ActiveChannel returns the last channel selected by SetActiveChannel.
func (s *System) ActiveChannel() (board.MultiplexerOutput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return board.MultiplexerOutput{}, false
	}
	return *s.active, true
}

// DisconnectAll disconnects every multiplexer channel.
func (s *System) DisconnectAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.multiplexers {
		if err := m.DisconnectAll(ctx); err != nil {
			return deviceErr(m.ID(), "disconnect", err)
		}
	}
	s.active = nil
	return nil
}

func (s *System) allDevices() []any {
	out := make([]any, 0, len(s.measurers)+len(s.multiplexers))
	for _, m := range s.measurers {
		out = append(out, m)
	}
	for _, m := range s.multiplexers {
		out = append(out, m)
	}
	return out
}

func deviceID(d any) string {
	if x, ok := d.(interface{ ID() string }); ok {
		return x.ID()
	}
	return fmt.Sprintf("%T", d)
}

// SortedIDs returns the keys of a CaptureAll result in order.
func SortedIDs(curves map[string]board.IVCurve) []string {
	ids := make([]string, 0, len(curves))
	for id := range curves {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
