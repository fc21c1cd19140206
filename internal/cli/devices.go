package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EPC-MSU/EPCore/internal/config"
	"github.com/EPC-MSU/EPCore/internal/discovery"
	"github.com/EPC-MSU/EPCore/internal/measure"
)

// DevicesOptions holds flags for the devices command.
type DevicesOptions struct {
	*RootOptions
	Scan bool
}

// ScannedDevice is one USB enumeration result.
type ScannedDevice struct {
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	VendorID  uint16 `json:"vendor_id,omitempty"`
	ProductID uint16 `json:"product_id,omitempty"`
}

// DevicesResult is the success payload of the devices command.
type DevicesResult struct {
	Configured measure.Devices `json:"configured"`
	Scanned    []ScannedDevice `json:"scanned,omitempty"`
}

func (r DevicesResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Measurers (%d):\n", len(r.Configured.Measurers))
	for _, d := range r.Configured.Measurers {
		fmt.Fprintf(&b, "  %s  %s %s\n", d.ID, d.Manufacturer, d.Product)
	}
	fmt.Fprintf(&b, "Multiplexers (%d):\n", len(r.Configured.Multiplexers))
	for _, d := range r.Configured.Multiplexers {
		fmt.Fprintf(&b, "  %s  %s %s\n", d.ID, d.Manufacturer, d.Product)
	}
	if r.Scanned != nil {
		fmt.Fprintf(&b, "USB scan (%d):\n", len(r.Scanned))
		for _, d := range r.Scanned {
			fmt.Fprintf(&b, "  [%s] %s\n", d.Kind, d.Label)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// scanFunc enumerates hardware. Tests replace it.
type scanFunc func(ctx context.Context, known []discovery.KnownDevice) ([]discovery.Info, error)

// NewDevicesCommand creates the devices command.
func NewDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	return newDevicesCommand(rootOpts, discovery.Discover)
}

func newDevicesCommand(rootOpts *RootOptions, scan scanFunc) *cobra.Command {
	opts := &DevicesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List configured devices",
		Long: `Devices lists the measurers and multiplexers built from the
configuration. With --scan it also enumerates USB devices that may be
measurement hardware.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, opts, scan)
		},
	}

	cmd.Flags().BoolVar(&opts.Scan, "scan", false, "enumerate USB devices")

	return cmd
}

func runDevices(cmd *cobra.Command, opts *DevicesOptions, scan scanFunc) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return commandError(formatter, CodeConfig, "invalid configuration", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg.Level())
	defer func() { _ = logger.Sync() }()

	sys := cfg.NewSystem(logger)
	result := DevicesResult{Configured: sys.ListDevices()}

	if opts.Scan {
		found, err := scan(cmd.Context(), discovery.DefaultKnown)
		if err != nil {
			return reportAs(formatter, failure{code: CodeDevice, exit: ExitFailure}, "USB scan failed", err)
		}
		result.Scanned = make([]ScannedDevice, 0, len(found))
		for _, d := range found {
			result.Scanned = append(result.Scanned, ScannedDevice{
				Kind:      string(d.Kind),
				Label:     d.Label(),
				VendorID:  d.VendorID,
				ProductID: d.ProductID,
			})
		}
	}

	return formatter.Success(result)
}
