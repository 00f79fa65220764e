// Package eis implements the vendor command set of the EIS instrument.
//
// A host drives a measurement with five vendor requests on EP0:
//
//	INITIATE_EIS                 7-byte start command; READY -> BUSY
//	UPDATE_EIS                   status poll; fetches samples when due
//	INITIATE_EIS_DATA_TRANSFER   loads one sample packet into EP3-IN
//	CLEAR_EIS_ERR                returns to READY
//	INITIATE_ABORT_EIS           returns to READY
//
// Samples for each selected frequency come from a [Provider]. They are
// sent as 64-byte packets of fifteen little-endian float32 values, voltage
// channel first, each prefixed by the resume code of the next packet (see
// [EncodeChunk]). After the last frequency the session reports SIGN with
// the current ranging and battery voltage.
//
// [Session] implements [github.com/ardnew/eisusb/device.VendorHandler].
package eis
