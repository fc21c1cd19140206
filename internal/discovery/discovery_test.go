package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBus(descs ...*gousb.DeviceDesc) enumerator {
	return func(match func(*gousb.DeviceDesc) bool) error {
		for _, d := range descs {
			match(d)
		}
		return nil
	}
}

var testKnown = []KnownDevice{
	{VendorID: 0x1cbe, ProductID: 0x0007, Kind: KindMeasurer, Description: "IV measurer"},
	{VendorID: 0x1cbe, Kind: KindCandidate, Description: "EPC-MSU USB device"},
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		desc gousb.DeviceDesc
		want Kind
		ok   bool
	}{
		{"exact product", gousb.DeviceDesc{Vendor: 0x1cbe, Product: 0x0007}, KindMeasurer, true},
		{"vendor wildcard", gousb.DeviceDesc{Vendor: 0x1cbe, Product: 0x0042}, KindCandidate, true},
		{"foreign vendor", gousb.DeviceDesc{Vendor: 0x2e8a, Product: 0x0007}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := classify(&tt.desc, testKnown)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, info.Kind)
		})
	}
}

func TestDiscover_AlwaysReportsVirtual(t *testing.T) {
	results, err := discover(context.Background(), testKnown, fakeBus(
		&gousb.DeviceDesc{Bus: 1, Address: 4, Vendor: 0x1cbe, Product: 0x0007},
		&gousb.DeviceDesc{Bus: 1, Address: 5, Vendor: 0x046d, Product: 0xc52b},
	))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, KindMeasurer, results[0].Kind)
	assert.Equal(t, 4, results[0].Address)
	assert.Equal(t, VirtualEntry, results[1])

	results, err = discover(context.Background(), testKnown, fakeBus())
	require.NoError(t, err)
	assert.Equal(t, []Info{VirtualEntry}, results)
}

func TestDiscover_AccessErrorTolerated(t *testing.T) {
	results, err := discover(context.Background(), testKnown, func(func(*gousb.DeviceDesc) bool) error {
		return gousb.ErrorAccess
	})
	require.NoError(t, err)
	assert.Equal(t, []Info{VirtualEntry}, results)
}

func TestDiscover_EnumerationError(t *testing.T) {
	_, err := discover(context.Background(), testKnown, func(func(*gousb.DeviceDesc) bool) error {
		return errors.New("libusb: no device")
	})
	assert.Error(t, err)
}

func TestDiscover_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := discover(ctx, testKnown, fakeBus(&gousb.DeviceDesc{Vendor: 0x1cbe, Product: 0x0007}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestInfo_Label(t *testing.T) {
	assert.Equal(t, "Virtual devices (no hardware)", VirtualEntry.Label())
	assert.Equal(t, "IV measurer (1CBE:0007 bus 1 addr 4)",
		Info{Kind: KindMeasurer, Description: "IV measurer", VendorID: 0x1cbe, ProductID: 7, Bus: 1, Address: 4}.Label())
	assert.Equal(t, "candidate (1CBE:0042)", Info{Kind: KindCandidate, VendorID: 0x1cbe, ProductID: 0x42}.Label())
}
