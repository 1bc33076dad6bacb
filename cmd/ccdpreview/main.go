// Command ccdpreview shows a live preview of a CCD camera and the per-row
// power spectrum of each frame
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/cobra"
	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/cvdisplay"
	httpcam "github.jpl.nasa.gov/bdube/ccdpreview/generichttp/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/preview"
	"github.jpl.nasa.gov/bdube/ccdpreview/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "ccdpreview.yml"
	k              = koanf.New(".")
)

func init() {
	// OpenCV windows must live on the main thread
	runtime.LockOSThread()
}

type parameter struct {
	Name  string      `yaml:"Name"`
	Value interface{} `yaml:"Value"`
}

type config struct {
	// Addr is the HTTP listen address.  Empty disables the HTTP display
	Addr string `yaml:"Addr"`

	// Demo connects a simulated PICam camera when no real one is found
	Demo bool `yaml:"Demo"`

	// DemoSerial is the serial number given to the demo camera
	DemoSerial string `yaml:"DemoSerial"`

	// Sim uses the in-process simulated camera
	Sim bool `yaml:"Sim"`

	// Window shows the OpenCV windows
	Window bool `yaml:"Window"`

	Verbose bool `yaml:"Verbose"`

	// TimeoutSec bounds each acquisition.  Negative waits forever
	TimeoutSec float64 `yaml:"TimeoutSec"`

	// Rows and Cols override the sensor shape when nonzero
	Rows int `yaml:"Rows"`
	Cols int `yaml:"Cols"`

	// StreamHz is the websocket spectrum rate
	StreamHz float64 `yaml:"StreamHz"`

	// Parameters are staged in order and committed once at startup
	Parameters []parameter `yaml:"Parameters"`
}

func setupconfig(verbose bool, verboseSet bool) {
	k.Load(structs.Provider(config{
		Addr:       ":8000",
		Demo:       true,
		DemoSerial: "ccdpreview-demo",
		Window:     true,
		TimeoutSec: -1,
		StreamHz:   5,
		Parameters: []parameter{
			{Name: "AdcSpeed", Value: 4.0},
			{Name: "TriggerDetermination", Value: 3},
		}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	if verboseSet {
		k.Load(confmap.Provider(map[string]interface{}{"Verbose": verbose}, "."), nil)
	}
}

func loadconf() config {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	return c
}

const help = `ccdpreview acquires frames from a Princeton Instruments camera in a loop
and shows each raw frame next to its per-row power spectrum.

ccdpreview is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not
case-sensitive.  The command mkconf generates the configuration file with the
default values.

Parameters are staged in the order given and committed once before the
preview starts.  Any the camera rejects are logged and the preview runs with
their prior values.

Sim uses a built-in simulated camera.  Otherwise the first PICam camera is
opened, or a demo camera if none is found and Demo is true.  PICam support
requires building with -tags picam.

GET /raw and GET /spectrum serve the latest images as jpg, png or fits.  Nothing
is written to disk.

The preview stops on a key press in either window, POST /stop, or Ctrl-C.`

func mkconf() {
	c := loadconf()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconf()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func requests(ps []parameter) ([]camera.Request, error) {
	out := make([]camera.Request, 0, len(ps))
	for _, p := range ps {
		r, err := camera.NewRequest(camera.Parameter(p.Name), p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func acquisitionTimeout(secs float64) time.Duration {
	if secs < 0 {
		return camera.NoTimeout
	}
	return util.SecsToDuration(secs)
}

func run(cfg config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reqs, err := requests(cfg.Parameters)
	if err != nil {
		return err
	}

	dev, id, closer, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer closer()
	log.Println("connected to", id)
	runID := uuid.NewString()
	logger = logger.With("run", runID)

	var (
		displays   preview.Displays
		cancellers preview.AnyCanceller
		reporters  = preview.Reporters{preview.NewSlogReporter(logger, cfg.Verbose)}
	)

	if cfg.Window {
		logger.Debug("opening windows")
		win := cvdisplay.Open(1000, 300)
		defer win.Close()
		displays = append(displays, win)
		cancellers = append(cancellers, win)
	}

	if cfg.Addr != "" {
		stream := httpcam.NewStream(util.Clamp(cfg.StreamHz, 0.1, 60))
		defer stream.Close()
		latest := httpcam.NewLatest(stream)
		latest.RunID = runID
		displays = append(displays, latest)
		cancellers = append(cancellers, latest)
		reporters = append(reporters, latest)

		root := chi.NewRouter()
		if cfg.Verbose {
			root.Use(middleware.Logger)
		}
		latest.RT().Bind(root)
		srv := &http.Server{Addr: cfg.Addr, Handler: root}
		go func() {
			log.Println("now listening for requests at ", cfg.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Println(err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	sig := preview.NewSignalCanceller()
	defer sig.Close()
	cancellers = append(cancellers, sig)

	s := preview.Session{
		Device:   dev,
		Requests: reqs,
		Loop: &preview.Loop{
			Shape:    camera.Shape{Rows: cfg.Rows, Cols: cfg.Cols},
			Timeout:  acquisitionTimeout(cfg.TimeoutSec),
			Display:  displays,
			Cancel:   cancellers,
			Reporter: reporters,
		},
	}
	if cfg.Rows == 0 || cfg.Cols == 0 {
		s.Loop.Shape = camera.Shape{}
	}
	logger.Debug("configuring camera", "requests", len(reqs))
	_, stats, err := s.Run()
	if err != nil {
		return err
	}
	log.Printf("displayed %d of %d frames\n", stats.Displayed, stats.Iterations)
	return nil
}

func main() {
	var (
		verbose bool
		cfgPath string
	)
	rootCmd := &cobra.Command{
		Use:           "ccdpreview",
		Short:         "live preview of a CCD camera and its per-row spectrum",
		Long:          help,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfgPath != "" {
				ConfigFileName = cfgPath
			}
			setupconfig(verbose, cmd.Flags().Changed("verbose"))
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (default "+ConfigFileName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every step and every frame")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "open the camera and run the preview",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(loadconf())
			},
		},
		&cobra.Command{
			Use:   "mkconf",
			Short: "write the configuration file with the current values",
			Run: func(cmd *cobra.Command, args []string) {
				mkconf()
			},
		},
		&cobra.Command{
			Use:   "conf",
			Short: "print the configuration",
			Run: func(cmd *cobra.Command, args []string) {
				printconf()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("ccdpreview version %v\n", Version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
