package device

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// Settling delays after mode changes. The controller needs them to finish
// switching its output stage; they are part of the hardware contract.
const (
	ModeSettleDelay = 100 * time.Millisecond
	PowerDownDelay  = 1000 * time.Millisecond
)

// Session is the live link a Device drives. *protocol.Handler implements it.
type Session interface {
	Commander
	Health() protocol.Health
	Info() protocol.ConnectionInfo
	Close() error
}

// TransitionHook is called after every confirmed mode change.
type TransitionHook func(from, to Mode)

// Device tracks the controller's mode and runs control sequences on top of
// a Session. It is the only writer of the tracked mode.
type Device struct {
	mu       sync.Mutex
	s        Session
	info     *Info
	mode     Mode
	optimize bool
	sleep    func(time.Duration)
	hooks    []TransitionHook
	log      *zap.Logger
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l.Named("device")
		}
	}
}

// WithSleep replaces time.Sleep for settling delays.
func WithSleep(fn func(time.Duration)) Option {
	return func(d *Device) { d.sleep = fn }
}

// WithOptimize enables or disables the direct firing path. Enabled by default.
func WithOptimize(on bool) Option {
	return func(d *Device) { d.optimize = on }
}

// WithTransitionHook registers fn for every confirmed mode change.
func WithTransitionHook(fn TransitionHook) Option {
	return func(d *Device) {
		if fn != nil {
			d.hooks = append(d.hooks, fn)
		}
	}
}

// New wraps s. The mode is Unknown until Initialize or a mode set succeeds.
func New(s Session, opts ...Option) *Device {
	d := &Device{
		s:        s,
		mode:     ModeUnknown,
		optimize: true,
		sleep:    time.Sleep,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize puts the controller in Standby and reads its identity.
func (d *Device) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setMode(ModeStandby); err != nil {
		return err
	}
	d.sleep(ModeSettleDelay)

	info, err := ReadInfo(d.s)
	if err != nil {
		return err
	}
	d.info = info
	d.log.Info("initialized",
		zap.String("firmware", info.FirmwareVersion),
		zap.String("model", info.ModelNumber),
		zap.String("serial", info.SerialNumber))
	return nil
}

// Info returns the identity read by Initialize, or nil before that.
func (d *Device) Info() *Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// CurrentMode returns the last confirmed mode.
func (d *Device) CurrentMode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetOptimize toggles the direct firing path.
func (d *Device) SetOptimize(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.optimize = on
}

// Optimize reports whether the direct firing path is enabled.
func (d *Device) Optimize() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.optimize
}

// SetMode validates and performs a single mode change.
func (d *Device) SetMode(m Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setMode(m)
}

func (d *Device) setMode(m Mode) error {
	from := d.mode
	if err := ValidateTransition(from, m); err != nil {
		return err
	}
	return d.writeMode(m)
}

// writeMode sends the mode without consulting the transition table. Only
// the direct firing path uses it, where Armed or Remote already holds.
func (d *Device) writeMode(m Mode) error {
	from := d.mode
	if _, err := d.s.SendCommand(protocol.CmdSetMode, uint16(m)); err != nil {
		return err
	}
	d.mode = m
	d.log.Info("mode changed", zap.Stringer("from", from), zap.Stringer("to", m))
	for _, h := range d.hooks {
		h(from, m)
	}
	return nil
}

// Arm moves Standby -> Armed and waits for the output stage to settle.
func (d *Device) Arm() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.arm()
}

func (d *Device) arm() error {
	if err := d.setMode(ModeArmed); err != nil {
		return err
	}
	d.sleep(ModeSettleDelay)
	return nil
}

// FireStage fires with the preset current of stage.
func (d *Device) FireStage(stage int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, err := ReadStageCurrent(d.s, stage)
	if err != nil {
		return err
	}
	d.log.Info("firing stage", zap.Int("stage", stage), zap.Uint16("current_ma", current))
	return d.fire(current)
}

// FireWithCurrent fires at currentMA after checking it against the
// controller's maximum.
func (d *Device) FireWithCurrent(currentMA uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if currentMA == 0 {
		return errs.Invalid("fire", "fire current must be non-zero")
	}
	if err := d.checkCurrent("fire", currentMA); err != nil {
		return err
	}
	d.log.Info("firing", zap.Uint16("current_ma", currentMA))
	return d.fire(currentMA)
}

// fire writes the current and enters Remote. When the tracked mode already
// guarantees the output stage is up (Armed or Remote) the safety sequence is
// skipped; otherwise it runs Standby, settle, Armed, settle first.
func (d *Device) fire(currentMA uint16) error {
	if d.optimize && (d.mode == ModeArmed || d.mode == ModeRemote) {
		if _, err := d.s.SendCommand(protocol.CmdSetCurrent, currentMA); err != nil {
			return err
		}
		return d.writeMode(ModeRemote)
	}

	if err := d.setMode(ModeStandby); err != nil {
		return err
	}
	d.sleep(ModeSettleDelay)
	if err := d.arm(); err != nil {
		return err
	}
	if _, err := d.s.SendCommand(protocol.CmdSetCurrent, currentMA); err != nil {
		return err
	}
	return d.setMode(ModeRemote)
}

// TurnOff drops the output to Standby.
func (d *Device) TurnOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.turnOff()
}

func (d *Device) turnOff() error {
	if err := d.setMode(ModeStandby); err != nil {
		return err
	}
	d.sleep(PowerDownDelay)
	return nil
}

// Shutdown turns the output off and hands control back to the front panel.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.turnOff(); err != nil {
		return err
	}
	if err := d.setMode(ModeLocal); err != nil {
		return err
	}
	d.sleep(PowerDownDelay)
	return nil
}

// ReadRemoteMode asks the controller which mode it is in. The tracked mode
// is not changed.
func (d *Device) ReadRemoteMode() (Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.s.SendCommand(protocol.CmdReadRemoteMode, 0)
	if err != nil {
		return ModeUnknown, err
	}
	return ModeFromValue(v), nil
}

// ReadArmCurrent returns the current used while armed.
func (d *Device) ReadArmCurrent() (uint16, error) {
	return d.readCurrent(protocol.CmdReadArmCurrent)
}

// ReadFireCurrent returns the current used while firing.
func (d *Device) ReadFireCurrent() (uint16, error) {
	return d.readCurrent(protocol.CmdReadFireCurrent)
}

func (d *Device) readCurrent(code string) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.s.SendCommand(code, 0)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// SetArmCurrent sets the arm current. Zero and values above the maximum are
// rejected before anything is sent.
func (d *Device) SetArmCurrent(currentMA uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if currentMA == 0 {
		return errs.Invalid("set_arm_current", "arm current must be non-zero")
	}
	if err := d.checkCurrent("set_arm_current", currentMA); err != nil {
		return err
	}
	_, err := d.s.SendCommand(protocol.CmdSetArmCurrent, currentMA)
	return err
}

func (d *Device) checkCurrent(op string, currentMA uint16) error {
	maxMA, err := d.maxCurrent()
	if err != nil {
		return err
	}
	if currentMA > maxMA {
		return errs.Invalid(op, "current %dmA exceeds device maximum %dmA", currentMA, maxMA)
	}
	return nil
}

func (d *Device) maxCurrent() (uint16, error) {
	if d.info != nil && d.info.MaxCurrentMA > 0 {
		return d.info.MaxCurrentMA, nil
	}
	return ReadMaxCurrent(d.s)
}

// MaxCurrent returns the controller's current ceiling.
func (d *Device) MaxCurrent() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxCurrent()
}

// StageParameters reads the presets of stage.
func (d *Device) StageParameters(stage int) (StageParameters, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ReadStageParameters(d.s, stage)
}

// StageArmCurrent reads the preset arm current of stage.
func (d *Device) StageArmCurrent(stage int) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ReadStageArmCurrent(d.s, stage)
}

// StageVoltages reads the voltage limit and start voltage of stage.
func (d *Device) StageVoltages(stage int) (limit, start float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ReadStageVoltages(d.s, stage)
}

// PowerInfo reads the stored power calibration of stage.
func (d *Device) PowerInfo(stage int) (PowerInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ReadPowerInfo(d.s, stage)
}

// Connection reports the link settings.
func (d *Device) Connection() protocol.ConnectionInfo { return d.s.Info() }

// Health reports the link health.
func (d *Device) Health() protocol.Health { return d.s.Health() }

// Close releases the session without changing the controller's mode.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.s.Close()
}
