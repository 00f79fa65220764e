// Package periph connects the firmware to a real USB peripheral controller
// on a Linux board through periph.io.
//
// [Open] opens the SPI port (mode 0, 8-bit words) and, optionally, the INT
// line. [Transport] frames register accesses as command byte plus data in
// one full-duplex transaction. [Button] watches a push button, used to
// request remote wakeup.
package periph
