package device

import (
	"fmt"

	"github.com/ardnew/eisusb/device/hal"
	"github.com/ardnew/eisusb/pkg"
)

// GET_STATUS request types answered by this device.
const (
	statusDevice    = RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice
	statusInterface = RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientInterface
	statusEndpoint  = RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientEndpoint
)

// StandardRequestHandler handles standard USB device requests for the
// single-configuration, single-interface device.
type StandardRequestHandler struct {
	descriptors *Descriptors
	state       *ConfigState

	// responseBuf backs GET_STATUS and GET_CONFIGURATION/INTERFACE replies.
	responseBuf [2]byte
}

// NewStandardRequestHandler creates a standard request handler serving
// descriptors and recording negotiated configuration into state.
func NewStandardRequestHandler(descriptors *Descriptors, state *ConfigState) *StandardRequestHandler {
	return &StandardRequestHandler{descriptors: descriptors, state: state}
}

// stall returns an error asking the dispatcher to stall EP0.
func stall(setup *SetupPacket, reason string) error {
	return fmt.Errorf("%s (request 0x%02X): %w", reason, setup.Request, pkg.ErrStall)
}

// HandleSetup processes a standard SETUP request. It completes the status
// stage through p, or returns an error wrapping [pkg.ErrStall] when the
// request must be stalled.
func (h *StandardRequestHandler) HandleSetup(p *Pipe, setup *SetupPacket) error {
	if !setup.IsStandard() {
		return stall(setup, "not a standard request")
	}

	switch setup.Request {
	case RequestGetDescriptor:
		return h.getDescriptor(p, setup)
	case RequestSetFeature:
		return h.feature(p, setup, true)
	case RequestClearFeature:
		return h.feature(p, setup, false)
	case RequestGetStatus:
		return h.getStatus(p, setup)
	case RequestSetInterface:
		return h.setInterface(p, setup)
	case RequestGetInterface:
		return h.getInterface(p, setup)
	case RequestSetConfiguration:
		return h.setConfiguration(p, setup)
	case RequestGetConfiguration:
		h.responseBuf[0] = h.state.Value
		return p.Write(h.responseBuf[:1], setup.Length)
	case RequestSetAddress:
		// The controller latches the address in its status stage.
		h.state.Addressed = setup.Value != 0
		return p.Ack()
	default:
		return stall(setup, "unsupported standard request")
	}
}

func (h *StandardRequestHandler) getDescriptor(p *Pipe, setup *SetupPacket) error {
	desc, ok := h.descriptors.Lookup(setup.DescriptorType(), setup.DescriptorIndex())
	if !ok {
		return stall(setup, fmt.Sprintf("no descriptor type 0x%02X index %d",
			setup.DescriptorType(), setup.DescriptorIndex()))
	}
	pkg.LogDebug(pkg.ComponentDispatch, "get descriptor",
		"type", setup.DescriptorType(),
		"index", setup.DescriptorIndex(),
		"length", min(len(desc), int(setup.Length)))
	return p.Write(desc, setup.Length)
}

// feature handles SET_FEATURE and CLEAR_FEATURE.
func (h *StandardRequestHandler) feature(p *Pipe, setup *SetupPacket, set bool) error {
	switch {
	case setup.RequestType == RequestTypeStandard|RequestRecipientEndpoint &&
		setup.Value == FeatureEndpointHalt &&
		setup.EndpointAddress() == EndpointDataIn:
		t := p.Transport()
		stalls, err := t.ReadRegister(hal.RegEPSTALLS)
		if err != nil {
			return err
		}
		stalls &^= hal.BitSTLEP3IN | hal.StallEP0
		if set {
			stalls |= hal.BitSTLEP3IN
		}
		if err := p.WriteStallsAck(stalls); err != nil {
			return err
		}
		h.state.DataHalted = set
		if !set {
			if err := t.WriteRegister(hal.RegCLRTOGS, hal.BitCTGEP3IN); err != nil {
				return err
			}
		}
		pkg.LogDebug(pkg.ComponentDispatch, "endpoint halt", "endpoint", EndpointDataIn, "halted", set)
		return nil

	case setup.RequestType == RequestTypeStandard|RequestRecipientDevice &&
		setup.Value == FeatureDeviceRemoteWakeup:
		h.state.RemoteWakeup = set
		pkg.LogDebug(pkg.ComponentDispatch, "remote wakeup", "enabled", set)
		return p.Ack()
	}
	return stall(setup, "unsupported feature")
}

func (h *StandardRequestHandler) getStatus(p *Pipe, setup *SetupPacket) error {
	h.responseBuf[1] = 0
	switch setup.RequestType {
	case statusDevice:
		h.responseBuf[0] = 0
		if h.state.RemoteWakeup {
			h.responseBuf[0] |= 0x02
		}
		if h.descriptors.SelfPowered() {
			h.responseBuf[0] |= 0x01
		}
	case statusInterface:
		h.responseBuf[0] = 0
	case statusEndpoint:
		if setup.EndpointAddress() != EndpointDataIn {
			return stall(setup, "status of unknown endpoint")
		}
		h.responseBuf[0] = 0
		if h.state.DataHalted {
			h.responseBuf[0] = 1
		}
	default:
		return stall(setup, "unsupported status recipient")
	}
	return p.Write(h.responseBuf[:2], setup.Length)
}

func (h *StandardRequestHandler) setInterface(p *Pipe, setup *SetupPacket) error {
	if setup.InterfaceNumber() != 0 || setup.Value != 0 {
		return stall(setup, "no such interface or alternate setting")
	}
	return p.Ack()
}

func (h *StandardRequestHandler) getInterface(p *Pipe, setup *SetupPacket) error {
	if setup.InterfaceNumber() != 0 {
		return stall(setup, "no such interface")
	}
	h.responseBuf[0] = 0
	return p.Write(h.responseBuf[:1], setup.Length)
}

func (h *StandardRequestHandler) setConfiguration(p *Pipe, setup *SetupPacket) error {
	value := setup.ValueLow()
	if value != 0 && value != ConfigurationValue {
		return stall(setup, fmt.Sprintf("no configuration %d", value))
	}
	h.state.Value = value
	if value != 0 {
		if err := hal.SetBits(p.Transport(), hal.RegUSBIEN, hal.BitSUSP); err != nil {
			return err
		}
	}
	pkg.LogInfo(pkg.ComponentDispatch, "configuration set", "value", value)
	return p.Ack()
}
