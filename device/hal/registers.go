package hal

import "fmt"

// Register is a controller register number (0-20).
type Register uint8

// Controller registers.
const (
	RegEP0FIFO    Register = 0  // EP0 IN/OUT FIFO
	RegEP1OUTFIFO Register = 1  // EP1-OUT FIFO
	RegEP2INFIFO  Register = 2  // EP2-IN FIFO
	RegEP3INFIFO  Register = 3  // EP3-IN FIFO
	RegSUDFIFO    Register = 4  // SETUP data FIFO (8 bytes)
	RegEP0BC      Register = 5  // EP0 byte count
	RegEP1OUTBC   Register = 6  // EP1-OUT byte count
	RegEP2INBC    Register = 7  // EP2-IN byte count
	RegEP3INBC    Register = 8  // EP3-IN byte count
	RegEPSTALLS   Register = 9  // Endpoint stalls
	RegCLRTOGS    Register = 10 // Clear data toggles
	RegEPIRQ      Register = 11 // Endpoint interrupt requests
	RegEPIEN      Register = 12 // Endpoint interrupt enables
	RegUSBIRQ     Register = 13 // USB interrupt requests
	RegUSBIEN     Register = 14 // USB interrupt enables
	RegUSBCTL     Register = 15 // USB control
	RegCPUCTL     Register = 16 // CPU control
	RegPINCTL     Register = 17 // Pin control
	RegREVISION   Register = 18 // Silicon revision
	RegFNADDR     Register = 19 // Function address
	RegGPIO       Register = 20 // General purpose I/O

	NumRegisters = 21
)

var registerNames = [NumRegisters]string{
	"EP0FIFO", "EP1OUTFIFO", "EP2INFIFO", "EP3INFIFO", "SUDFIFO",
	"EP0BC", "EP1OUTBC", "EP2INBC", "EP3INBC", "EPSTALLS", "CLRTOGS",
	"EPIRQ", "EPIEN", "USBIRQ", "USBIEN", "USBCTL", "CPUCTL", "PINCTL",
	"REVISION", "FNADDR", "GPIO",
}

// String returns the datasheet name of the register.
func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("R%d", uint8(r))
}

// EPIRQ / EPIEN bits.
const (
	BitSUDAV   = 0x20 // SETUP data available
	BitIN3BAV  = 0x10 // EP3-IN buffer available
	BitIN2BAV  = 0x08 // EP2-IN buffer available
	BitOUT1DAV = 0x04 // EP1-OUT data available
	BitOUT0DAV = 0x02 // EP0-OUT data available
	BitIN0BAV  = 0x01 // EP0-IN buffer available
)

// USBIRQ / USBIEN bits.
const (
	BitURESDN = 0x80 // Bus reset done
	BitVBUS   = 0x40 // VBUS detected
	BitNOVBUS = 0x20 // VBUS lost
	BitSUSP   = 0x10 // Bus suspended (3 ms idle)
	BitURES   = 0x08 // Bus reset
	BitBUSACT = 0x04 // Bus activity
	BitRWUDN  = 0x02 // Remote wakeup signaling done
	BitOSCOK  = 0x01 // Oscillator stable
)

// USBCTL bits.
const (
	BitHOSCSTEN = 0x80 // Host oscillator start enable
	BitVBGATE   = 0x40 // Gate CONNECT with VBUS
	BitCHIPRES  = 0x20 // Chip reset
	BitPWRDOWN  = 0x10 // Power down
	BitCONNECT  = 0x08 // D+ pullup
	BitSIGRWU   = 0x04 // Signal remote wakeup
)

// CPUCTL bits.
const (
	BitIE = 0x01 // INT pin enable
)

// PINCTL bits.
const (
	BitFDUPSPI  = 0x10 // Full-duplex SPI
	BitINTLEVEL = 0x08 // Level-active INT
	BitPOSINT   = 0x04 // Positive-edge INT
	BitGPXB     = 0x02
	BitGPXA     = 0x01

	// GPXSOF routes the start-of-frame pulse to the GPX pin.
	GPXSOF = BitGPXB | BitGPXA
)

// EPSTALLS bits.
const (
	BitACKSTAT   = 0x40 // Acknowledge control status stage
	BitSTLSTAT   = 0x20 // Stall control status stage
	BitSTLEP3IN  = 0x10
	BitSTLEP2IN  = 0x08
	BitSTLEP1OUT = 0x04
	BitSTLEP0OUT = 0x02
	BitSTLEP0IN  = 0x01

	// StallEP0 stalls every stage of the control endpoint.
	StallEP0 = BitSTLSTAT | BitSTLEP0OUT | BitSTLEP0IN
)

// CLRTOGS bits.
const (
	BitEP3DISAB  = 0x80
	BitEP2DISAB  = 0x40
	BitEP1DISAB  = 0x20
	BitCTGEP3IN  = 0x10 // Clear EP3-IN data toggle
	BitCTGEP2IN  = 0x08
	BitCTGEP1OUT = 0x04
)

// FIFOSize is the depth of each endpoint FIFO and the maximum packet size.
const FIFOSize = 64
