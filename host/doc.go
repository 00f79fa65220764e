// Package host is the host-side client of the EIS instrument.
//
// [Client] speaks the vendor protocol of
// [github.com/ardnew/eisusb/device/class/eis] over any [Device]: it starts
// sessions, polls status, reassembles the paginated sample buffers of each
// frequency, and collects the closing signature.
//
// [OpenUSB] opens real hardware through libusb (github.com/google/gousb).
// For tests and simulation, [github.com/ardnew/eisusb/device/hal/sim.Bus]
// drives the firmware directly.
//
// # Example
//
//	dev, err := host.OpenUSB(device.DefaultVendorID, device.DefaultProductID, time.Second)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	m, err := host.NewClient(dev).Run(ctx, eis.Params{
//	    Frequencies:     0x000003,
//	    Amplitude:       100,
//	    SamplesExponent: 2,
//	    Periods:         3,
//	})
package host
