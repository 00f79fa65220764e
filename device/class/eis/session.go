package eis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/pkg"
)

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Status    Status
	Error     ErrorCode
	Params    Params
	Frequency int
	Waiting   bool
	Samples   int
}

// Session is the vendor command state machine of the instrument. It answers
// the EIS vendor requests on EP0, loads sample packets into EP3-IN, and
// requests samples from its Provider one frequency at a time.
//
// Session is safe for concurrent use; provider deliveries may arrive from
// any goroutine.
type Session struct {
	mu sync.Mutex

	provider Provider
	battery  BatteryMonitor

	params    Params
	status    Status
	errCode   ErrorCode
	waiting   bool
	frequency int

	// completed is the frequency whose buffer was last sent in full, or -1.
	// Its chunks may be fetched again until the next request replaces them.
	completed int

	// generation voids deliveries requested before an abort or clear.
	generation uint64

	samples SampleBuffer
	packet  [PacketSize]byte
	reply   [StatusReplySize]byte
	command [StartCommandSize]byte
}

var (
	_ device.VendorHandler = (*Session)(nil)
	_ device.ResumeHandler = (*Session)(nil)
)

// NewSession creates a session in the READY state.
func NewSession(provider Provider, battery BatteryMonitor) *Session {
	return &Session{provider: provider, battery: battery, status: StatusReady, completed: -1}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Status:    s.status,
		Error:     s.errCode,
		Params:    s.params,
		Frequency: s.frequency,
		Waiting:   s.waiting,
		Samples:   s.samples.Len(),
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func stall(setup *device.SetupPacket, reason string) error {
	return fmt.Errorf("%s (request 0x%02X): %w", reason, setup.Request, pkg.ErrStall)
}

// HandleVendor implements [device.VendorHandler].
func (s *Session) HandleVendor(ctx context.Context, p *device.Pipe, setup *device.SetupPacket) error {
	switch setup.Request {
	case RequestInitiate:
		return s.initiate(p, setup)
	case RequestAbort:
		return s.abort(p)
	case RequestDataTransfer:
		return s.dataTransfer(p, setup)
	case RequestUpdate:
		return s.update(ctx, p, setup)
	case RequestClearError:
		return s.clearError(p, setup)
	}
	return stall(setup, "unknown vendor request")
}

func (s *Session) setStatus(to Status) {
	if s.status != to {
		pkg.LogDebug(pkg.ComponentSession, "status", "from", s.status, "to", to)
	}
	s.status = to
}

// fail records code and enters ERROR. Params are left as they were.
func (s *Session) fail(code ErrorCode) {
	pkg.LogWarn(pkg.ComponentSession, "session error", "code", code, "status", s.status)
	s.errCode = code
	s.waiting = false
	s.setStatus(StatusError)
}

// reset returns to READY and voids any outstanding delivery.
func (s *Session) reset() {
	s.setStatus(StatusReady)
	s.errCode = ErrorNone
	s.waiting = false
	s.frequency = 0
	s.completed = -1
	s.generation++
	s.samples.Reset()
}

func (s *Session) initiate(p *device.Pipe, setup *device.SetupPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusReady {
		return stall(setup, fmt.Sprintf("start while %s", s.status))
	}
	count, err := p.OutLength()
	if err != nil {
		return err
	}
	if count != StartCommandSize {
		s.fail(ErrorWrongNumBytes)
		return p.AckOut()
	}
	if err := p.ReadAck(s.command[:]); err != nil {
		return err
	}

	var params Params
	if err := ParseStartCommand(s.command[:], &params); err != nil {
		s.fail(ErrorWrongNumBytes)
		return nil
	}
	if code := params.Check(); code != ErrorNone {
		s.fail(code)
		return nil
	}

	s.params = params
	s.frequency = 0
	s.completed = -1
	s.waiting = true
	s.samples.Reset()
	s.setStatus(StatusBusy)
	pkg.LogInfo(pkg.ComponentSession, "session started", "params", params.String())
	return nil
}

func (s *Session) abort(p *device.Pipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg.LogInfo(pkg.ComponentSession, "session aborted", "status", s.status)
	s.reset()
	return p.Ack()
}

// HostResumed implements [device.ResumeHandler]. A host resume of the bus
// returns the session to READY.
func (s *Session) HostResumed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg.LogInfo(pkg.ComponentSession, "session reset by bus resume", "status", s.status)
	s.reset()
}

func (s *Session) clearError(p *device.Pipe, setup *device.SetupPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.reply[0], s.reply[1] = byte(StatusReady), 0
	return p.Write(s.reply[:2], setup.Length)
}

func (s *Session) dataTransfer(p *device.Pipe, setup *device.SetupPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The finished frequency stays fetchable until the next request.
	replay := s.completed >= 0 &&
		(s.status == StatusSign || s.status == StatusBusy && s.waiting)
	if !replay && s.status != StatusDAV && s.status != StatusTrans {
		return stall(setup, fmt.Sprintf("data transfer while %s", s.status))
	}

	count, err := p.OutLength()
	if err != nil {
		return err
	}
	frequency := s.frequency
	if replay {
		frequency = s.completed
	}
	switch count {
	case 0:
	case 1:
		if err := p.Read(s.command[:1]); err != nil {
			return err
		}
		if replay && int(s.command[0]) != frequency {
			return stall(setup, fmt.Sprintf("data transfer for frequency %d while %s", s.command[0], s.status))
		}
		frequency = int(s.command[0])
		if frequency >= s.params.FrequencyCount() {
			s.fail(ErrorNoFrequency)
			return p.AckOut()
		}
	default:
		s.fail(ErrorNoFrequency)
		return p.AckOut()
	}

	start := Cursor((int(setup.ValueLow()) + int(setup.IndexLow())) * ChunkSamples)
	n, next, finished, err := EncodeChunk(&s.samples, start, s.packet[:])
	if err != nil {
		pkg.LogDebug(pkg.ComponentSession, "chunk rejected", "start", int(start), "error", err)
		s.fail(ErrorOther)
		return p.AckOut()
	}
	if err := p.WriteData(s.packet[:n]); err != nil {
		return err
	}
	if err := p.AckOut(); err != nil {
		return err
	}
	if replay {
		pkg.LogDebug(pkg.ComponentSession, "chunk resent", "frequency", frequency, "start", int(start))
		return nil
	}

	s.frequency = frequency
	s.setStatus(StatusTrans)
	if !finished {
		pkg.LogDebug(pkg.ComponentSession, "chunk sent", "frequency", frequency, "next", next.Code())
		return nil
	}
	s.completed = frequency
	if frequency+1 >= s.params.FrequencyCount() {
		pkg.LogInfo(pkg.ComponentSession, "all frequencies sent", "frequencies", s.params.FrequencyCount())
		s.setStatus(StatusSign)
		return nil
	}
	pkg.LogInfo(pkg.ComponentSession, "frequency sent", "frequency", frequency)
	s.frequency = frequency + 1
	s.waiting = true
	s.setStatus(StatusBusy)
	return nil
}

func (s *Session) update(ctx context.Context, p *device.Pipe, setup *device.SetupPacket) error {
	s.mu.Lock()
	if s.errCode != ErrorNone {
		s.setStatus(StatusError)
	}
	if s.waiting && s.status == StatusBusy {
		s.waiting = false
		s.completed = -1
		s.request(ctx)
	}
	defer s.mu.Unlock()

	n := s.encodeReply()
	return p.Write(s.reply[:n], setup.Length)
}

// request asks the provider for the current frequency's samples. It is
// called with s.mu held and releases it around the provider call so that a
// synchronous delivery can complete.
func (s *Session) request(ctx context.Context) {
	if s.provider == nil {
		s.fail(ErrorRead)
		return
	}
	d := &delivery{s: s, generation: s.generation}
	params, frequency := s.params, s.frequency

	s.mu.Unlock()
	err := s.provider.BeginSession(ctx, params, frequency, d)
	s.mu.Lock()

	if err != nil && d.generation == s.generation && s.status == StatusBusy {
		pkg.LogWarn(pkg.ComponentSession, "sample request failed", "frequency", frequency, "error", err)
		s.fail(ErrorRead)
	}
}

// encodeReply fills s.reply for UPDATE_EIS and returns its length. Reporting
// an error or the signature returns the session to READY.
func (s *Session) encodeReply() int {
	switch s.status {
	case StatusError:
		s.reply[0], s.reply[1] = byte(StatusError), byte(s.errCode)
		s.errCode = ErrorNone
		s.setStatus(StatusReady)
		return 2

	case StatusSign:
		volts, err := s.batteryVoltage()
		if err != nil {
			pkg.LogWarn(pkg.ComponentSession, "battery read failed", "error", err)
			s.reply[0], s.reply[1] = byte(StatusError), byte(ErrorBatteryVoltage)
			s.errCode = ErrorNone
			s.setStatus(StatusReady)
			return 2
		}
		s.reply[0] = byte(StatusSign)
		s.reply[1] = s.params.CurrentRanging
		binary.LittleEndian.PutUint32(s.reply[2:], math.Float32bits(volts))
		s.setStatus(StatusReady)
		return StatusReplySize
	}
	s.reply[0], s.reply[1] = byte(s.status), 0
	return 2
}

func (s *Session) batteryVoltage() (float32, error) {
	if s.battery == nil {
		return 0, fmt.Errorf("no battery monitor: %w", pkg.ErrNotSupported)
	}
	v, err := s.battery.BatteryVoltage()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0, fmt.Errorf("battery voltage %v: %w", v, pkg.ErrOutOfRange)
	}
	return v, nil
}

// delivery is the Sink handed to the provider for one request.
type delivery struct {
	s          *Session
	generation uint64
	done       bool
}

// OnSamplesReady implements [Sink].
func (d *delivery) OnSamplesReady(voltage, current []float32) error {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.done {
		return fmt.Errorf("samples already delivered: %w", pkg.ErrInvalidState)
	}
	d.done = true
	if d.generation != s.generation || s.status != StatusBusy {
		pkg.LogDebug(pkg.ComponentSession, "stale delivery dropped", "status", s.status)
		return fmt.Errorf("delivery for a finished request: %w", pkg.ErrInvalidState)
	}

	n := s.params.SampleCount()
	if len(voltage) != n || len(current) != n {
		s.fail(ErrorRead)
		return fmt.Errorf("delivered %d/%d samples, want %d: %w", len(voltage), len(current), n, pkg.ErrInvalidParameter)
	}
	if err := s.samples.Load(voltage, current); err != nil {
		s.fail(ErrorRead)
		return err
	}
	s.setStatus(StatusDAV)
	pkg.LogDebug(pkg.ComponentSession, "samples ready", "frequency", s.frequency, "samples", n)
	return nil
}
