package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/banshee-data/hilsim/internal/config"
	"github.com/banshee-data/hilsim/internal/controller"
	"github.com/banshee-data/hilsim/internal/flightcomputer"
	"github.com/banshee-data/hilsim/internal/monitoring"
	"github.com/banshee-data/hilsim/internal/noise"
	"github.com/banshee-data/hilsim/internal/physics"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/timeutil"
	"github.com/banshee-data/hilsim/internal/transport"
	"github.com/banshee-data/hilsim/internal/units"
)

// loopbackDescentRate is the GPS descent rate at which the emulated flight
// computer deploys its parachute, m/s.
const loopbackDescentRate = 2.0

type runOptions struct {
	configPath  string
	port        string
	format      string
	loopback    bool
	listen      string
	speedUnits  string
	duration    time.Duration
	reportEvery time.Duration
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the HIL loop",
	Long: "run streams simulated sensor packets to the flight computer on --port and applies its gimbal and parachute commands. " +
		"With --loopback the flight computer is emulated in-process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runHIL(ctx, runOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configPath, "config", "", "Path to a JSON or YAML config file (defaults apply when empty)")
	f.StringVar(&runOpts.port, "port", "", "Serial device, overriding transport.path")
	f.StringVar(&runOpts.format, "format", "", "Wire format, binary or text, overriding protocol.format")
	f.BoolVar(&runOpts.loopback, "loopback", false, "Serve an emulated flight computer over an in-memory link")
	f.StringVar(&runOpts.listen, "listen", "", "Address for the /debug/ admin routes, e.g. localhost:8080")
	f.StringVar(&runOpts.speedUnits, "speed-units", units.MPS, "Units for reported speed (mps, mph, kmph, kph)")
	f.DurationVar(&runOpts.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	f.DurationVar(&runOpts.reportEvery, "report-every", time.Second, "Interval between progress lines")
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts runOptions) (*config.HILConfig, error) {
	cfg := config.Empty()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}
	if opts.port != "" {
		cfg.Transport.Path = &opts.port
	}
	if opts.format != "" {
		cfg.Protocol.Format = &opts.format
		if err := cfg.CodecConfig().Validate(); err != nil {
			return nil, fmt.Errorf("--format: %w", err)
		}
	}
	return cfg, nil
}

func runHIL(ctx context.Context, opts runOptions, out io.Writer) error {
	if !units.IsValid(opts.speedUnits) {
		return fmt.Errorf("invalid speed units %q: expected one of %v", opts.speedUnits, units.ValidUnits)
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	var cancel context.CancelFunc
	if opts.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	body, err := physics.NewBody(cfg.BodyConfig())
	if err != nil {
		return fmt.Errorf("body config: %w", err)
	}
	protoCfg := cfg.CodecConfig()
	transportCfg := cfg.TransportConfig()

	var gen noise.Generator
	if cfg.NoiseSeed != nil {
		gen = noise.NewSeeded(*cfg.NoiseSeed)
	}

	var (
		opener     transport.Opener = transport.SerialOpener{}
		device     *flightcomputer.Device
		devicePort transport.Port
	)
	if opts.loopback {
		host, dev := transport.Pipe()
		opener = transport.FixedOpener{Name: "loopback", Port: host}
		transportCfg.Path = "loopback"
		devicePort = dev
		if device, err = newLoopbackDevice(cfg, protoCfg, transportCfg.BufferSize, dev); err != nil {
			return err
		}
	} else if transportCfg.Path == "" {
		return errors.New("no serial port: set --port or transport.path, or use --loopback")
	}

	rep := &reporter{out: out, units: opts.speedUnits, every: opts.reportEvery, body: body}
	ctrl, err := controller.New(cfg.ControllerConfig(), controller.Deps{
		Model:     body,
		Effector:  body,
		Opener:    opener,
		Noise:     gen,
		Clock:     timeutil.RealClock{},
		Sensor:    cfg.SensorConfig(),
		Protocol:  protoCfg,
		Transport: transportCfg,
	}, controller.Callbacks{
		OnParachute: func(protocol.Parachute) {
			monitoring.Logf("hilsim: parachute deployed")
			body.DeployParachute()
		},
		OnError:     func(err error) { monitoring.Logf("hilsim: %v", err) },
		OnTelemetry: rep.observe,
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		body.Run(ctx, timeutil.RealClock{})
	}()
	if device != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := device.Run(ctx); err != nil {
				monitoring.Logf("hilsim: flight computer stopped: %v", err)
			}
		}()
	}
	if opts.listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveAdmin(ctx, opts.listen, ctrl)
		}()
	}

	if err := ctrl.Connect(ctx); err != nil {
		cancel()
		if devicePort != nil {
			devicePort.Close()
		}
		wg.Wait()
		return err
	}
	ctrl.Start()
	monitoring.Logf("hilsim: streaming %s frames to %s (%s)", protoCfg.Format, transportCfg.Path, transportCfg.Options)

	<-ctx.Done()
	if err := ctrl.Disconnect(); err != nil {
		monitoring.Logf("hilsim: disconnect: %v", err)
	}
	if devicePort != nil {
		devicePort.Close()
	}
	wg.Wait()

	rep.summary(ctrl.Status())
	return nil
}

func newLoopbackDevice(cfg *config.HILConfig, protoCfg protocol.Config, bufSize int, port transport.Port) (*flightcomputer.Device, error) {
	codec, err := protocol.New(protoCfg)
	if err != nil {
		return nil, err
	}
	emu, err := flightcomputer.New(cfg.FlightComputerConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("flight computer config: %w", err)
	}
	emu.Arm()
	dev, err := flightcomputer.NewDevice(emu, codec, port, bufSize)
	if err != nil {
		return nil, err
	}
	dev.SetChuteDescentRate(loopbackDescentRate)
	return dev, nil
}

func serveAdmin(ctx context.Context, addr string, ctrl *controller.Controller) {
	mux := http.NewServeMux()
	ctrl.AttachAdminRoutes(mux)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("hilsim: admin server shutdown: %v", err)
		}
	}()

	monitoring.Logf("hilsim: admin routes on http://%s/debug/", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		monitoring.Logf("hilsim: admin server: %v", err)
	}
}

// reporter prints a progress line at most once per interval. It runs on the
// controller tick goroutine.
type reporter struct {
	out   io.Writer
	units string
	every time.Duration
	body  *physics.Body

	last    time.Time
	maxAlt  float64
	reports int
}

func (r *reporter) observe(t controller.Telemetry) {
	r.maxAlt = max(r.maxAlt, t.State.Position.Y)
	now := time.Now()
	if r.every <= 0 || now.Sub(r.last) < r.every {
		return
	}
	r.last = now
	r.reports++

	gx, gy := r.body.Gimbal()
	fmt.Fprintf(r.out, "t=%.2fs alt=%.1fm speed=%.1f%s tilt=%.2f° gimbal=(%+.3f,%+.3f) tx=%s\n",
		t.State.Time,
		t.State.Position.Y,
		units.ConvertSpeed(t.State.Velocity.Norm(), r.units), r.units,
		units.Degrees(physics.Tilt(t.State.Orientation)),
		gx, gy,
		humanize.Bytes(t.Stats.BytesTransferred),
	)
}

func (r *reporter) summary(s controller.Status) {
	fmt.Fprintf(r.out, "%s ticks, %s packets sent, %s commands received, %s errors, %s transferred, apogee %.1fm\n",
		humanize.Comma(int64(s.Ticks)),
		humanize.Comma(int64(s.Stats.PacketsSent)),
		humanize.Comma(int64(s.Stats.PacketsReceived)),
		humanize.Comma(int64(s.Stats.ErrorCount)),
		humanize.Bytes(s.Stats.BytesTransferred),
		r.maxAlt,
	)
}
