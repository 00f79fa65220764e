// Package hal defines the Hardware Abstraction Layer between the firmware core
// and the SPI-attached USB peripheral controller.
//
// The controller is a register-mapped USB transceiver (MAX3420E class): the
// firmware never touches the bus directly, it reads and writes 8-bit
// registers and FIFOs through a serial link. The HAL is therefore a narrow
// register-access capability rather than a packet-level USB interface.
//
// # Design Principles
//
// The HAL is designed to be:
//
//   - Minimal: only register, FIFO, and interrupt-line access
//   - Synchronous: every call completes its serial transaction before returning
//   - Honest about acknowledgement: the status-stage ACKSTAT bit is carried
//     in dedicated Ack variants so protocol code decides when a control
//     transfer completes
//
// The device package implements all USB protocol logic on top of [Transport].
//
// # Register Map
//
// [Register] constants and the bit masks in this package follow the
// controller's datasheet numbering. A command byte on the wire is
// reg<<3 | dir<<1 | ackstat, see [Command].
//
// # Implementations
//
//   - [github.com/ardnew/eisusb/device/hal/periph] drives a real chip over Linux SPI
//   - [github.com/ardnew/eisusb/device/hal/sim] models the chip in memory for tests
package hal
