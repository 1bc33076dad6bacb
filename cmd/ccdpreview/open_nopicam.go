//go:build !picam

package main

import "github.jpl.nasa.gov/bdube/ccdpreview/camera"

func openHardware(cfg config) (camera.Device, string, func() error, error) {
	return nil, "", nil, errNoPicam
}
