package eis

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/eisusb/device"
	"github.com/ardnew/eisusb/device/hal"
	"github.com/ardnew/eisusb/device/hal/sim"
	"github.com/ardnew/eisusb/pkg"
)

const (
	vendorOut = device.RequestDirectionHostToDevice | device.RequestTypeVendor | device.RequestRecipientDevice
	vendorIn  = device.RequestDirectionDeviceToHost | device.RequestTypeVendor | device.RequestRecipientDevice
)

var scenarioA = [StartCommandSize]byte{0x00, 0x00, 0x03, 0x00, 0x64, 0x23, 0x02}

type rig struct {
	chip    *sim.Chip
	ctrl    *device.Controller
	session *Session
	bus     *sim.Bus
}

func newRig(t *testing.T, provider Provider, battery BatteryMonitor) *rig {
	t.Helper()
	descriptors, err := device.DefaultDescriptors(device.IdentityConfig{
		VendorID:  device.DefaultVendorID,
		ProductID: device.DefaultProductID,
	})
	if err != nil {
		t.Fatalf("DefaultDescriptors() error = %v", err)
	}
	chip := sim.New()
	session := NewSession(provider, battery)
	ctrl := device.NewController(chip, descriptors, session, device.WithPollInterval(time.Millisecond))
	if err := ctrl.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	r := &rig{chip: chip, ctrl: ctrl, session: session, bus: sim.NewBus(chip, ctrl.Poll)}

	r.control(t, device.RequestDirectionHostToDevice, device.RequestSetConfiguration, device.ConfigurationValue, 0, nil)
	return r
}

// control runs one transfer and checks that the status stage was completed
// exactly once unless the transfer stalled.
func (r *rig) control(t *testing.T, rType, request uint8, value, index uint16, data []byte) (int, error) {
	t.Helper()
	n, err := r.bus.Control(rType, request, value, index, data)
	if err != nil && !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("Control(0x%02X, 0x%02X) error = %v", rType, request, err)
	}
	tr := r.chip.Transfer()
	if err == nil && tr.Acks != 1 {
		t.Fatalf("Control(0x%02X, 0x%02X): %d acknowledgements, want 1", rType, request, tr.Acks)
	}
	if err != nil && tr.Acks != 0 {
		t.Fatalf("Control(0x%02X, 0x%02X): stalled after %d acknowledgements", rType, request, tr.Acks)
	}
	return n, err
}

func (r *rig) start(t *testing.T, cmd []byte) {
	t.Helper()
	if _, err := r.control(t, vendorOut, RequestInitiate, 0, 0, cmd); err != nil {
		t.Fatalf("INITIATE_EIS error = %v", err)
	}
}

func (r *rig) update(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, StatusReplySize)
	n, err := r.control(t, vendorIn, RequestUpdate, 0, 0, buf)
	if err != nil {
		t.Fatalf("UPDATE_EIS error = %v", err)
	}
	return buf[:n]
}

func (r *rig) wantUpdate(t *testing.T, status Status, code ErrorCode) {
	t.Helper()
	got := r.update(t)
	if len(got) != 2 || got[0] != byte(status) || got[1] != byte(code) {
		t.Fatalf("UPDATE_EIS = % X, want %02X %02X", got, byte(status), byte(code))
	}
}

// fetch requests the chunk at code and returns the EP3-IN packet.
func (r *rig) fetch(t *testing.T, code int, out []byte) []byte {
	t.Helper()
	vl := min(code, 0xFF)
	if _, err := r.control(t, vendorOut, RequestDataTransfer, uint16(vl), uint16(code-vl), out); err != nil {
		t.Fatalf("DATA_TRANSFER(%d) error = %v", code, err)
	}
	pkt, ok := r.chip.ReadEP3()
	if !ok {
		t.Fatalf("DATA_TRANSFER(%d) armed no packet", code)
	}
	return pkt
}

func (r *rig) wantStatus(t *testing.T, want Status) {
	t.Helper()
	if got := r.session.Status(); got != want {
		t.Fatalf("Status() = %v, want %v", got, want)
	}
}

func TestScenarioStartAndFirstChunk(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1))

	r.start(t, scenarioA[:])
	snap := r.session.Snapshot()
	if snap.Status != StatusBusy || !snap.Waiting || snap.Frequency != 0 {
		t.Fatalf("after start: %+v", snap)
	}
	if snap.Params.FrequencyCount() != 2 || snap.Params.Amplitude != 100 || snap.Params.SampleCount() != 12 {
		t.Fatalf("params = %s", snap.Params.String())
	}

	r.wantUpdate(t, StatusDAV, 0)

	pkt := r.fetch(t, 0, nil)
	if len(pkt) != PacketSize {
		t.Fatalf("first chunk = %d bytes, want %d", len(pkt), PacketSize)
	}
	var c Chunk
	if err := ParsePacket(pkt, &c); err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}
	if c.Code != 1 || c.Finished || len(c.Samples) != ChunkSamples {
		t.Errorf("chunk = code %d finished %v samples %d, want code 1", c.Code, c.Finished, len(c.Samples))
	}
	r.wantStatus(t, StatusTrans)
}

func TestScenarioSingleSample(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1))

	r.start(t, []byte{0x00, 0x00, 0x01, 0x00, 0x10, 0x01, 0x00})
	r.wantUpdate(t, StatusDAV, 0)

	pkt := r.fetch(t, 0, nil)
	var c Chunk
	if err := ParsePacket(pkt, &c); err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}
	if !c.Finished || len(c.Samples) != 2 || len(pkt) != CodeSize+8 {
		t.Errorf("chunk = %d bytes, finished %v, %d samples", len(pkt), c.Finished, len(c.Samples))
	}
	r.wantStatus(t, StatusSign)
}

func TestScenarioWrongByteCount(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1))

	// Complete a session so the retained params are not the zero value.
	r.start(t, []byte{0x00, 0x00, 0x01, 0x00, 0x10, 0x01, 0x02})
	r.wantUpdate(t, StatusDAV, 0)
	r.fetch(t, 0, nil)
	if got := r.update(t); got[0] != byte(StatusSign) {
		t.Fatalf("UPDATE_EIS = % X, want signature", got)
	}
	r.wantStatus(t, StatusReady)
	before := r.session.Snapshot().Params
	if before == (Params{}) {
		t.Fatal("params cleared after a completed session")
	}

	r.start(t, []byte{0x00, 0x00, 0x03, 0x00, 0x64})
	r.wantStatus(t, StatusError)
	if got := r.session.Snapshot(); got.Error != ErrorWrongNumBytes || got.Params != before {
		t.Fatalf("after short start: %+v", got)
	}
	r.wantUpdate(t, StatusError, ErrorWrongNumBytes)
	r.wantStatus(t, StatusReady)
	r.wantUpdate(t, StatusReady, 0)
}

func TestScenarioSignature(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1, WithBatteryVoltage(4.5)))

	r.start(t, []byte{0x00, 0x00, 0x01, 0x00, 0x10, 0x01, 0x02})
	r.wantUpdate(t, StatusDAV, 0)
	r.fetch(t, 0, nil)
	r.wantStatus(t, StatusSign)

	got := r.update(t)
	want := []byte{0xC0, 0x02, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(want[2:], math.Float32bits(4.5))
	if string(got) != string(want) {
		t.Fatalf("UPDATE_EIS = % X, want % X", got, want)
	}
	r.wantStatus(t, StatusReady)
}

func TestSessionFullRun(t *testing.T) {
	provider := &recordingProvider{Synthetic: NewSynthetic(7)}
	r := newRig(t, provider, provider)

	// Three frequencies, n = 2^3 * 4 = 32: five chunks per frequency.
	r.start(t, []byte{0x00, 0x01, 0x05, 0x00, 0x01, 0x34, 0x00})

	for freq := range 3 {
		r.wantUpdate(t, StatusDAV, 0)
		var got []float32
		var c Chunk
		for code := 0; ; code = c.Code {
			if err := ParsePacket(r.fetch(t, code, nil), &c); err != nil {
				t.Fatalf("ParsePacket() error = %v", err)
			}
			got = append(got, c.Samples...)
			if c.Finished {
				break
			}
		}
		want := provider.last()
		if len(got) != len(want) {
			t.Fatalf("frequency %d: %d samples, want %d", freq, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("frequency %d sample %d = %v, want %v", freq, i, got[i], want[i])
			}
		}
		if freq < 2 {
			r.wantStatus(t, StatusBusy)
			if f := r.session.Snapshot().Frequency; f != freq+1 {
				t.Fatalf("Frequency = %d, want %d", f, freq+1)
			}
		}
	}
	r.wantStatus(t, StatusSign)
	if got := r.update(t); len(got) != StatusReplySize || got[0] != byte(StatusSign) {
		t.Fatalf("UPDATE_EIS = % X", got)
	}
	if got := provider.frequencies(); len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("requested frequencies = %v, want [0 1 2]", got)
	}
}

func TestDataTransferResendsFinishedFrequency(t *testing.T) {
	r := newRig(t, NewSynthetic(3), NewSynthetic(3))
	r.start(t, scenarioA[:])
	r.wantUpdate(t, StatusDAV, 0)

	r.fetch(t, 0, nil)
	final := r.fetch(t, 1, nil)
	var c Chunk
	if err := ParsePacket(final, &c); err != nil || !c.Finished {
		t.Fatalf("ParsePacket() = %+v, %v, want final chunk", c, err)
	}
	r.wantStatus(t, StatusBusy)

	tests := []struct {
		name string
		sel  []byte
	}{
		{"implicit", nil},
		{"explicit", []byte{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.fetch(t, 1, tt.sel); string(got) != string(final) {
				t.Fatalf("resent chunk = % X, want % X", got, final)
			}
			snap := r.session.Snapshot()
			if snap.Status != StatusBusy || snap.Frequency != 1 || !snap.Waiting {
				t.Fatalf("after resend: %+v", snap)
			}
		})
	}

	if _, err := r.control(t, vendorOut, RequestDataTransfer, 1, 0, []byte{1}); !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("DATA_TRANSFER for pending frequency error = %v, want stall", err)
	}

	// The next request replaces the buffer.
	r.wantUpdate(t, StatusDAV, 0)
	r.fetch(t, 0, nil)
	last := r.fetch(t, 1, nil)
	r.wantStatus(t, StatusSign)
	if got := r.fetch(t, 1, []byte{1}); string(got) != string(last) {
		t.Fatalf("resent final chunk = % X, want % X", got, last)
	}
	r.wantStatus(t, StatusSign)
	if _, err := r.control(t, vendorOut, RequestDataTransfer, 1, 0, []byte{0}); !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("DATA_TRANSFER for replaced frequency error = %v, want stall", err)
	}

	r.update(t)
	r.wantStatus(t, StatusReady)
	if _, err := r.control(t, vendorOut, RequestDataTransfer, 1, 0, nil); !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("DATA_TRANSFER after signature error = %v, want stall", err)
	}
}

func TestDataTransferFrequencySelection(t *testing.T) {
	tests := []struct {
		name   string
		out    []byte
		want   Status
		code   ErrorCode
		freqAt int
	}{
		{"implicit", nil, StatusTrans, ErrorNone, 0},
		{"explicit", []byte{1}, StatusTrans, ErrorNone, 1},
		{"out of range", []byte{2}, StatusError, ErrorNoFrequency, 0},
		{"two bytes", []byte{0, 0}, StatusError, ErrorNoFrequency, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, NewSynthetic(1), NewSynthetic(1))
			r.start(t, scenarioA[:])
			r.wantUpdate(t, StatusDAV, 0)

			if _, err := r.control(t, vendorOut, RequestDataTransfer, 0, 0, tt.out); err != nil {
				t.Fatalf("DATA_TRANSFER error = %v", err)
			}
			snap := r.session.Snapshot()
			if snap.Status != tt.want || snap.Error != tt.code || snap.Frequency != tt.freqAt {
				t.Errorf("after transfer: %+v", snap)
			}
			wantPackets := 1
			if tt.want == StatusError {
				wantPackets = 0
			}
			if got := r.chip.PendingEP3(); got != wantPackets {
				t.Errorf("PendingEP3() = %d, want %d", got, wantPackets)
			}
		})
	}
}

func TestDataTransferPositionOutOfRange(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1))
	r.start(t, scenarioA[:])
	r.wantUpdate(t, StatusDAV, 0)

	// n = 12, so 2n = 24 and code 2 addresses sample 30.
	if _, err := r.control(t, vendorOut, RequestDataTransfer, 1, 1, nil); err != nil {
		t.Fatalf("DATA_TRANSFER error = %v", err)
	}
	r.wantStatus(t, StatusError)
	r.wantUpdate(t, StatusError, ErrorOther)
}

func TestStartRejectsParameters(t *testing.T) {
	tests := []struct {
		name string
		cmd  []byte
		code ErrorCode
	}{
		{"no frequencies", []byte{0, 0, 0, 0, 1, 0x23, 0}, ErrorNoFrequency},
		{"no samples", []byte{0, 0, 1, 0, 1, 0x20, 0}, ErrorOther},
		{"too many samples", []byte{0, 0, 1, 0, 1, 0xB2, 0}, ErrorOther},
		{"empty", nil, ErrorWrongNumBytes},
		{"eight bytes", make([]byte, 8), ErrorWrongNumBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, NewSynthetic(1), NewSynthetic(1))
			r.start(t, tt.cmd)
			snap := r.session.Snapshot()
			if snap.Status != StatusError || snap.Error != tt.code || snap.Params != (Params{}) {
				t.Fatalf("after start: %+v", snap)
			}
			r.wantUpdate(t, StatusError, tt.code)
		})
	}
}

// driveTo brings a fresh rig into status s.
func driveTo(t *testing.T, s Status) *rig {
	t.Helper()
	provider := &manualProvider{}
	r := newRig(t, provider, NewSynthetic(1))
	switch s {
	case StatusReady:
	case StatusError:
		r.start(t, nil)
	default:
		r.start(t, []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x11, 0x00})
		if s == StatusBusy {
			break
		}
		r.update(t)
		provider.deliver(t, 2)
		if s == StatusDAV {
			break
		}
		r.fetch(t, 0, nil)
		if s == StatusSign {
			break
		}
		// TRANS needs a buffer longer than one packet.
		r = newRig(t, NewSynthetic(1), NewSynthetic(1))
		r.start(t, scenarioA[:])
		r.update(t)
		r.fetch(t, 0, nil)
	}
	r.wantStatus(t, s)
	return r
}

func TestTransitionTableTotal(t *testing.T) {
	statuses := []Status{StatusReady, StatusBusy, StatusDAV, StatusTrans, StatusSign, StatusError}

	t.Run("initiate", func(t *testing.T) {
		for _, s := range statuses {
			r := driveTo(t, s)
			_, err := r.control(t, vendorOut, RequestInitiate, 0, 0, scenarioA[:])
			switch {
			case s == StatusReady && err == nil:
				r.wantStatus(t, StatusBusy)
			case s != StatusReady && errors.Is(err, pkg.ErrStall):
				r.wantStatus(t, s)
			default:
				t.Errorf("INITIATE_EIS in %v: error = %v", s, err)
			}
		}
	})

	t.Run("data transfer", func(t *testing.T) {
		for _, s := range statuses {
			r := driveTo(t, s)
			_, err := r.control(t, vendorOut, RequestDataTransfer, 0, 0, nil)
			switch s {
			case StatusDAV:
				// Both two-sample channels fit one packet.
				if err != nil {
					t.Errorf("DATA_TRANSFER in %v: error = %v", s, err)
				}
				r.wantStatus(t, StatusSign)
			case StatusTrans, StatusSign:
				// SIGN resends the finished final frequency.
				if err != nil {
					t.Errorf("DATA_TRANSFER in %v: error = %v", s, err)
				}
				r.wantStatus(t, s)
			default:
				if !errors.Is(err, pkg.ErrStall) {
					t.Errorf("DATA_TRANSFER in %v: error = %v, want stall", s, err)
				}
				r.wantStatus(t, s)
			}
		}
	})

	t.Run("update", func(t *testing.T) {
		for _, s := range statuses {
			r := driveTo(t, s)
			got := r.update(t)
			if len(got) < 2 || Status(got[0]) != s {
				t.Errorf("UPDATE_EIS in %v = % X", s, got)
			}
			switch s {
			case StatusSign, StatusError:
				r.wantStatus(t, StatusReady)
			default:
				r.wantStatus(t, s)
			}
		}
	})

	t.Run("clear and abort", func(t *testing.T) {
		for _, s := range statuses {
			r := driveTo(t, s)
			buf := make([]byte, 2)
			if n, err := r.control(t, vendorIn, RequestClearError, 0, 0, buf); err != nil || n != 2 || buf[0] != byte(StatusReady) {
				t.Errorf("CLEAR_EIS_ERR in %v = %d % X, %v", s, n, buf, err)
			}
			r.wantStatus(t, StatusReady)

			r = driveTo(t, s)
			if _, err := r.control(t, vendorOut, RequestAbort, 0, 0, nil); err != nil {
				t.Errorf("INITIATE_ABORT_EIS in %v: error = %v", s, err)
			}
			snap := r.session.Snapshot()
			if snap.Status != StatusReady || snap.Waiting || snap.Frequency != 0 || snap.Error != ErrorNone {
				t.Errorf("after abort in %v: %+v", s, snap)
			}
		}
	})
}

func TestUnknownVendorRequestStalls(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1))
	if _, err := r.control(t, vendorOut, 0x7F, 0, 0, nil); !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("Control(0x7F) error = %v, want stall", err)
	}
	r.wantStatus(t, StatusReady)
}

func TestProviderFailure(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
	}{
		{"error", providerFunc(func(context.Context, Params, int, Sink) error {
			return errors.New("front end offline")
		})},
		{"short channels", providerFunc(func(_ context.Context, p Params, _ int, sink Sink) error {
			return sink.OnSamplesReady(make([]float32, p.SampleCount()-1), make([]float32, p.SampleCount()-1))
		})},
		{"unequal channels", providerFunc(func(_ context.Context, p Params, _ int, sink Sink) error {
			return sink.OnSamplesReady(make([]float32, p.SampleCount()), nil)
		})},
		{"none", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, tt.provider, NewSynthetic(1))
			r.start(t, scenarioA[:])
			r.wantUpdate(t, StatusError, ErrorRead)
			r.wantStatus(t, StatusReady)
		})
	}
}

func TestDeliveryExactlyOnce(t *testing.T) {
	provider := &manualProvider{}
	r := newRig(t, provider, NewSynthetic(1))
	r.start(t, scenarioA[:])
	r.wantUpdate(t, StatusBusy, 0)

	provider.deliver(t, 12)
	r.wantStatus(t, StatusDAV)
	if err := provider.sink.OnSamplesReady(make([]float32, 12), make([]float32, 12)); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("second OnSamplesReady() error = %v, want ErrInvalidState", err)
	}
}

func TestAbortVoidsPendingDelivery(t *testing.T) {
	provider := &manualProvider{}
	r := newRig(t, provider, NewSynthetic(1))
	r.start(t, scenarioA[:])
	r.wantUpdate(t, StatusBusy, 0)

	if _, err := r.control(t, vendorOut, RequestAbort, 0, 0, nil); err != nil {
		t.Fatalf("INITIATE_ABORT_EIS error = %v", err)
	}
	r.start(t, scenarioA[:])

	if err := provider.sink.OnSamplesReady(make([]float32, 12), make([]float32, 12)); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("stale OnSamplesReady() error = %v, want ErrInvalidState", err)
	}
	r.wantStatus(t, StatusBusy)
}

func TestAsynchronousDelivery(t *testing.T) {
	provider := NewSynthetic(3, WithDelay(5*time.Millisecond))
	r := newRig(t, provider, provider)
	r.start(t, scenarioA[:])

	r.wantUpdate(t, StatusBusy, 0)
	provider.Wait()
	r.wantUpdate(t, StatusDAV, 0)
}

func TestBatteryFailure(t *testing.T) {
	tests := []struct {
		name    string
		battery BatteryMonitor
	}{
		{"error", batteryFunc(func() (float32, error) { return 0, errors.New("adc fault") })},
		{"nan", batteryFunc(func() (float32, error) { return float32(math.NaN()), nil })},
		{"inf", batteryFunc(func() (float32, error) { return float32(math.Inf(1)), nil })},
		{"none", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, NewSynthetic(1), tt.battery)
			r.start(t, []byte{0x00, 0x00, 0x01, 0x00, 0x10, 0x01, 0x00})
			r.update(t)
			r.fetch(t, 0, nil)
			r.wantStatus(t, StatusSign)
			r.wantUpdate(t, StatusError, ErrorBatteryVoltage)
			r.wantStatus(t, StatusReady)
		})
	}
}

func TestHostResumeResetsSession(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1))
	r.start(t, scenarioA[:])
	r.wantUpdate(t, StatusDAV, 0)
	r.fetch(t, 0, nil)
	r.wantStatus(t, StatusTrans)

	ctx := context.Background()
	r.chip.Suspend()
	if err := r.ctrl.Poll(ctx); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	r.wantStatus(t, StatusTrans)

	r.chip.BusActivity()
	if err := r.ctrl.Poll(ctx); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	snap := r.session.Snapshot()
	if snap.Status != StatusReady || snap.Waiting || snap.Frequency != 0 || snap.Samples != 0 {
		t.Fatalf("after resume: %+v", snap)
	}
	if _, err := r.control(t, vendorOut, RequestDataTransfer, 1, 0, nil); !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("DATA_TRANSFER after resume error = %v, want stall", err)
	}
	r.start(t, scenarioA[:])
	r.wantUpdate(t, StatusDAV, 0)
}

func TestDataTransferAfterHalt(t *testing.T) {
	r := newRig(t, NewSynthetic(1), NewSynthetic(1))
	r.start(t, scenarioA[:])
	r.wantUpdate(t, StatusDAV, 0)

	r.control(t, device.RequestDirectionHostToDevice|device.RequestRecipientEndpoint,
		device.RequestSetFeature, device.FeatureEndpointHalt, device.EndpointDataIn, nil)
	if r.chip.Register(hal.RegEPSTALLS)&hal.BitSTLEP3IN == 0 {
		t.Fatal("EP3-IN not halted")
	}
	if _, err := r.control(t, vendorOut, RequestDataTransfer, 0, 0, nil); err != nil {
		t.Fatalf("DATA_TRANSFER error = %v", err)
	}
	if _, ok := r.chip.ReadEP3(); ok {
		t.Error("halted endpoint delivered a packet")
	}
}

type providerFunc func(ctx context.Context, params Params, frequency int, sink Sink) error

func (f providerFunc) BeginSession(ctx context.Context, params Params, frequency int, sink Sink) error {
	return f(ctx, params, frequency, sink)
}

type batteryFunc func() (float32, error)

func (f batteryFunc) BatteryVoltage() (float32, error) { return f() }

// manualProvider records the sink and leaves delivery to the test.
type manualProvider struct {
	sink Sink
}

func (m *manualProvider) BeginSession(_ context.Context, _ Params, _ int, sink Sink) error {
	m.sink = sink
	return nil
}

func (m *manualProvider) deliver(t *testing.T, n int) {
	t.Helper()
	if m.sink == nil {
		t.Fatal("no outstanding request")
	}
	if err := m.sink.OnSamplesReady(make([]float32, n), make([]float32, n)); err != nil {
		t.Fatalf("OnSamplesReady() error = %v", err)
	}
}

// recordingProvider wraps a Synthetic and keeps the last delivered samples
// flattened voltage then current.
type recordingProvider struct {
	*Synthetic
	mu      sync.Mutex
	samples []float32
	freqs   []int
}

type recordingSink struct {
	p    *recordingProvider
	sink Sink
}

func (r *recordingSink) OnSamplesReady(voltage, current []float32) error {
	r.p.mu.Lock()
	r.p.samples = append(append([]float32(nil), voltage...), current...)
	r.p.mu.Unlock()
	return r.sink.OnSamplesReady(voltage, current)
}

func (r *recordingProvider) BeginSession(ctx context.Context, params Params, frequency int, sink Sink) error {
	r.mu.Lock()
	r.freqs = append(r.freqs, frequency)
	r.mu.Unlock()
	return r.Synthetic.BeginSession(ctx, params, frequency, &recordingSink{p: r, sink: sink})
}

func (r *recordingProvider) last() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

func (r *recordingProvider) frequencies() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freqs
}
