//go:build picam

package main

import (
	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/picam"
)

// openHardware opens the first camera found, falling back to a demo camera
// when cfg.Demo is set
func openHardware(cfg config) (camera.Device, string, func() error, error) {
	if err := picam.InitializeLibrary(); err != nil {
		return nil, "", nil, err
	}
	cam, err := picam.OpenFirstCamera()
	if err != nil && cfg.Demo {
		cam, err = picam.OpenDemoCamera(cfg.DemoSerial)
	}
	if err != nil {
		picam.UninitializeLibrary()
		return nil, "", nil, err
	}
	closer := func() error {
		err := cam.Close()
		if err2 := picam.UninitializeLibrary(); err == nil {
			err = err2
		}
		return err
	}
	return cam, cam.ID().String(), closer, nil
}
