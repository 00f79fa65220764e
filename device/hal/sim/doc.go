// Package sim provides an in-memory register-level model of the USB
// peripheral controller.
//
// [Chip] implements [github.com/ardnew/eisusb/device/hal.Transport] for firmware code and adds host-side
// operations that a real bus would perform: loading SETUP packets and OUT
// data stages, signaling bus reset and suspend, and consuming EP3-IN packets.
// The model counts status-stage acknowledgements and EP0 stalls per control
// transfer, so protocol code can be checked against the controller's
// handshake rules without hardware.
//
// [Bus] wraps a Chip with a service function (normally the firmware
// controller's Poll) and offers a gousb-shaped Control method, letting
// host-side code run against simulated firmware.
//
// Example:
//
//	chip := sim.New()
//	ctrl := device.NewController(chip, descriptors, session)
//	if err := ctrl.Init(ctx); err != nil {
//		return err
//	}
//	bus := sim.NewBus(chip, ctrl.Poll)
//	n, err := bus.Control(0x80, 0x06, 0x0100, 0, buf[:18])
//
// Fault knobs on Chip (OscillatorFault, WakeupFault, HostIgnoresWakeup)
// exercise the bounded waits in the firmware.
package sim
