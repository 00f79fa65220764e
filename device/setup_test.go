package device

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseSetupPacket(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    SetupPacket
		wantErr bool
	}{
		{
			name: "GET_DESCRIPTOR device",
			data: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00},
			want: SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Length: 18},
		},
		{
			name: "SET_ADDRESS",
			data: []byte{0x00, 0x05, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
			want: SetupPacket{Request: 0x05, Value: 5},
		},
		{
			name: "DATA_TRANSFER",
			data: []byte{0x40, 0x03, 0xFF, 0x00, 0x02, 0x00, 0x01, 0x00},
			want: SetupPacket{RequestType: 0x40, Request: 0x03, Value: 0x00FF, Index: 2, Length: 1},
		},
		{
			name:    "too short",
			data:    []byte{0x80, 0x06, 0x00},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got SetupPacket
			err := ParseSetupPacket(tt.data, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSetupPacket() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("ParseSetupPacket() = %+v, want %+v", got, tt.want)
			}

			var buf [SetupPacketSize]byte
			if n := got.MarshalTo(buf[:]); n != SetupPacketSize || !bytes.Equal(buf[:], tt.data) {
				t.Errorf("MarshalTo() = %d % X, want % X", n, buf, tt.data)
			}
		})
	}
}

func TestSetupPacketMarshalTo_ShortBuffer(t *testing.T) {
	var buf [SetupPacketSize - 1]byte
	if n := (&SetupPacket{}).MarshalTo(buf[:]); n != 0 {
		t.Errorf("MarshalTo() = %d, want 0", n)
	}
}

func TestSetupPacketFields(t *testing.T) {
	tests := []struct {
		name     string
		pkt      SetupPacket
		in       bool
		standard bool
		typ      uint8
		recip    uint8
		str      string
	}{
		{
			name:     "GET_STATUS endpoint",
			pkt:      SetupPacket{RequestType: 0x82, Request: RequestGetStatus, Index: 0x03, Length: 2},
			in:       true,
			standard: true,
			typ:      RequestTypeStandard,
			recip:    RequestRecipientEndpoint,
			str:      "SETUP[IN Standard Endpoint] Request=0x00",
		},
		{
			name:  "vendor out",
			pkt:   SetupPacket{RequestType: 0x40, Request: 0x01, Length: 7},
			typ:   RequestTypeVendor,
			recip: RequestRecipientDevice,
			str:   "SETUP[OUT Vendor Device] Request=0x01",
		},
		{
			name:  "class interface",
			pkt:   SetupPacket{RequestType: 0xA1, Request: 0x01},
			in:    true,
			typ:   RequestTypeClass,
			recip: RequestRecipientInterface,
			str:   "SETUP[IN Class Interface]",
		},
		{
			name:  "reserved other",
			pkt:   SetupPacket{RequestType: 0x63},
			typ:   RequestTypeReserved,
			recip: RequestRecipientOther,
			str:   "SETUP[OUT Reserved Other]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pkt.IsDeviceToHost(); got != tt.in {
				t.Errorf("IsDeviceToHost() = %v, want %v", got, tt.in)
			}
			if got := tt.pkt.IsStandard(); got != tt.standard {
				t.Errorf("IsStandard() = %v, want %v", got, tt.standard)
			}
			if got := tt.pkt.Type(); got != tt.typ {
				t.Errorf("Type() = 0x%02X, want 0x%02X", got, tt.typ)
			}
			if got := tt.pkt.Recipient(); got != tt.recip {
				t.Errorf("Recipient() = 0x%02X, want 0x%02X", got, tt.recip)
			}
			if got := tt.pkt.String(); !strings.HasPrefix(got, tt.str) {
				t.Errorf("String() = %q, want prefix %q", got, tt.str)
			}
		})
	}
}

func TestSetupPacketLowBytes(t *testing.T) {
	pkt := &SetupPacket{Value: 0x03FE, Index: 0x3481}

	if got := pkt.DescriptorType(); got != DescriptorTypeString {
		t.Errorf("DescriptorType() = 0x%02X, want 0x03", got)
	}
	if got := pkt.DescriptorIndex(); got != 0xFE {
		t.Errorf("DescriptorIndex() = 0x%02X, want 0xFE", got)
	}
	if got := pkt.EndpointAddress(); got != 0x81 {
		t.Errorf("EndpointAddress() = 0x%02X, want 0x81", got)
	}
	if got := pkt.InterfaceNumber(); got != 0x81 {
		t.Errorf("InterfaceNumber() = 0x%02X, want 0x81", got)
	}
}

func TestGetDescriptorSetup(t *testing.T) {
	var pkt SetupPacket
	GetDescriptorSetup(&pkt, DescriptorTypeString, 2, LangIDUSEnglish, 255)

	want := SetupPacket{
		RequestType: 0x80,
		Request:     RequestGetDescriptor,
		Value:       0x0302,
		Index:       LangIDUSEnglish,
		Length:      255,
	}
	if pkt != want {
		t.Errorf("GetDescriptorSetup() = %+v, want %+v", pkt, want)
	}
}

func TestVendorSetup(t *testing.T) {
	tests := []struct {
		direction uint8
		request   uint8
		length    uint16
		wantType  uint8
	}{
		{RequestDirectionHostToDevice, 0x01, 7, 0x40},
		{RequestDirectionDeviceToHost, 0x04, 6, 0xC0},
	}
	for _, tt := range tests {
		var pkt SetupPacket
		VendorSetup(&pkt, tt.direction, tt.request, 0x00FF, 1, tt.length)
		want := SetupPacket{RequestType: tt.wantType, Request: tt.request, Value: 0x00FF, Index: 1, Length: tt.length}
		if pkt != want {
			t.Errorf("VendorSetup() = %+v, want %+v", pkt, want)
		}
	}
}
