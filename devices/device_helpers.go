package devices

import (
	"fmt"
	"github.com/notargets/gocca"
)

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	// OpenCL is left out, its JSON properties are not accepted by every OCCA build
	backends := []Backend{
		{Mode: "OpenMP", Kind: CPU},
		{Mode: "CUDA", Kind: GPU},
		{Mode: "Serial", Kind: CPU},
	}

	for _, b := range backends {
		device, err := gocca.NewDevice(b.Properties(0))
		if err == nil {
			fmt.Printf("Created %s Device\n", device.Mode())
			return device
		}
	}

	panic("Failed to create any Device")
}
