package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/theckman/yacspin"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/simcam"
)

// errNoPicam is returned by openHardware when built without PICam support
var errNoPicam = errors.New("built without PICam support, rebuild with -tags picam or set Sim: true")

// openDevice opens the configured camera, retrying with exponential backoff
// while a spinner runs.  It returns the device, a description of it, and a
// function which closes it.
func openDevice(cfg config) (camera.Device, string, func() error, error) {
	if cfg.Sim {
		cam := simcam.New(simcam.DefaultShape, time.Now().UnixNano())
		return cam, "simulated camera", cam.Close, nil
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " opening camera",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return nil, "", nil, err
	}
	spinner.Start()

	var (
		dev    camera.Device
		id     string
		closer func() error
	)
	op := func() error {
		var err error
		dev, id, closer, err = openHardware(cfg)
		if errors.Is(err, errNoPicam) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		spinner.Message(fmt.Sprintf("%v, retrying in %v", err, d))
	}
	err = backoff.RetryNotify(op, &backoff.ExponentialBackOff{
		InitialInterval:     250 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      10 * time.Second,
		Clock:               backoff.SystemClock}, notify)
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		return nil, "", nil, err
	}
	spinner.StopMessage(id)
	spinner.Stop()
	return dev, id, closer, nil
}
