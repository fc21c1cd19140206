// Package discovery enumerates USB devices that may be measurers or
// multiplexers. It only reports candidates; talking to them is the job of
// a hardware driver.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// Kind categorizes a discovered device.
type Kind string

const (
	KindMeasurer    Kind = "measurer"
	KindMultiplexer Kind = "multiplexer"
	KindCandidate   Kind = "candidate"
	KindVirtual     Kind = "virtual"
)

// Info describes a discovered device.
type Info struct {
	Kind        Kind
	Description string
	VendorID    uint16
	ProductID   uint16
	Bus         int
	Address     int
}

// Label returns a user-friendly description of the device.
func (i Info) Label() string {
	if i.Kind == KindVirtual {
		return i.Description
	}
	if i.Description != "" {
		return fmt.Sprintf("%s (%04X:%04X bus %d addr %d)", i.Description, i.VendorID, i.ProductID, i.Bus, i.Address)
	}
	return fmt.Sprintf("%s (%04X:%04X)", i.Kind, i.VendorID, i.ProductID)
}

// KnownDevice is a vendor/product pair worth reporting. A zero ProductID
// matches every product of the vendor.
type KnownDevice struct {
	VendorID    uint16
	ProductID   uint16
	Kind        Kind
	Description string
}

// DefaultKnown lists the USB identities probed by default. EyePoint
// devices enumerate as CDC serial ports behind the EPC-MSU vendor id, so
// they can only be narrowed to candidates here.
var DefaultKnown = []KnownDevice{
	{VendorID: 0x1cbe, Kind: KindCandidate, Description: "EPC-MSU USB device"},
}

// VirtualEntry is always reported so virtual devices can be selected
// without hardware connected.
var VirtualEntry = Info{Kind: KindVirtual, Description: "Virtual devices (no hardware)"}

// Discover enumerates connected USB devices matching known. It always
// returns at least VirtualEntry. Insufficient permissions to open devices
// are not an error.
func Discover(ctx context.Context, known []KnownDevice) ([]Info, error) {
	usb := gousb.NewContext()
	defer usb.Close()
	return discover(ctx, known, func(match func(*gousb.DeviceDesc) bool) error {
		// The callback never asks to open a device, so nothing needs closing.
		_, err := usb.OpenDevices(match)
		return err
	})
}

// enumerator walks device descriptors, calling match for each.
type enumerator func(match func(*gousb.DeviceDesc) bool) error

func discover(ctx context.Context, known []KnownDevice, enumerate enumerator) ([]Info, error) {
	var results []Info
	err := enumerate(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if info, ok := classify(desc, known); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, fmt.Errorf("enumerate usb: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	results = append(results, VirtualEntry)
	return results, nil
}

func classify(desc *gousb.DeviceDesc, known []KnownDevice) (Info, bool) {
	vid, pid := uint16(desc.Vendor), uint16(desc.Product)
	for _, k := range known {
		if vid != k.VendorID || (k.ProductID != 0 && pid != k.ProductID) {
			continue
		}
		return Info{
			Kind:        k.Kind,
			Description: k.Description,
			VendorID:    vid,
			ProductID:   pid,
			Bus:         desc.Bus,
			Address:     desc.Address,
		}, true
	}
	return Info{}, false
}
