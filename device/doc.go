// Package device implements the USB device protocol engine of the EIS
// instrument firmware.
//
// It is platform-agnostic and talks to the SPI-attached USB peripheral
// controller only through the register-level [hal.Transport] defined in
// [github.com/ardnew/eisusb/device/hal].
//
// # Architecture
//
//   - [Controller] is the main loop: chip bring-up, interrupt servicing in a
//     fixed priority order, and SETUP dispatch
//   - [StandardRequestHandler] answers the standard requests of a device
//     with one configuration, one interface and one interrupt IN endpoint
//   - [VendorHandler] receives vendor requests (the EIS command set lives in
//     [github.com/ardnew/eisusb/device/class/eis])
//   - [LinkPower] tracks suspend and drives host resume and remote wakeup
//   - [Descriptors] holds the read-only descriptor set
//   - [Pipe] is EP0 for the duration of one control transfer
//
// # Status Stage
//
// The controller completes a control transfer when an acknowledging
// register access (ACKSTAT) is made. Each transfer receives exactly one
// such access unless it is stalled; [Pipe] enforces this and the request
// handlers choose which access carries the acknowledgement.
//
// # Bounded Waits
//
// Waits on the hardware (oscillator start, remote-wakeup signaling, host
// resume) are bounded by context and configurable limits and fail with
// [*pkg.TimeoutError], which matches [pkg.ErrTimeout].
//
// # Example
//
//	descriptors, _ := device.DefaultDescriptors(device.IdentityConfig{
//	    VendorID:  device.DefaultVendorID,
//	    ProductID: device.DefaultProductID,
//	    Product:   "EIS Potentiostat",
//	})
//	ctrl := device.NewController(transport, descriptors, session)
//	if err := ctrl.Init(ctx); err != nil {
//	    return err
//	}
//	return ctrl.Run(ctx)
//
// An in-memory controller model for testing is available in
// [github.com/ardnew/eisusb/device/hal/sim].
package device
