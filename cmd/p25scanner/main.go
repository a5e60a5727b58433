package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/norasector/p25scanner/pkg/audio"
	"github.com/norasector/p25scanner/pkg/calllog"
	"github.com/norasector/p25scanner/pkg/dsp/viz"
	"github.com/norasector/p25scanner/pkg/events"
	"github.com/norasector/p25scanner/pkg/scanner"
	"github.com/norasector/p25scanner/pkg/scanner/config"
	"github.com/norasector/p25scanner/pkg/scanner/device"
	"github.com/norasector/p25scanner/pkg/scanner/device/file"
	hackrfDevice "github.com/norasector/p25scanner/pkg/scanner/device/hackrf"
	"github.com/norasector/p25scanner/pkg/scanner/device/rtlsdr"
	"github.com/samuel/go-hackrf/hackrf"
	"golang.org/x/sync/errgroup"
)

const (
	fileByteReadSize = 262144
	fileReadDelay    = time.Microsecond * 16384
	mqttTimeout      = 5 * time.Second
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "p25scanner.yaml", "YAML config file")
	flag.Parse()

	opts, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config")
	}
	if level, err := zerolog.ParseLevel(opts.LogLevel); err == nil {
		log.Logger = log.Logger.Level(level)
	} else {
		log.Warn().Str("log_level", opts.LogLevel).Msg("unknown log level, using info")
	}

	gain, err := opts.Device.ParseGain()
	if err != nil {
		log.Fatal().Err(err).Msg("bad gain")
	}

	var dev device.Driver
	switch opts.Device.Type {
	case "rtlsdr":
		log.Info().Str("device", "rtlsdr").Msg("initializing device...")
		dev, err = rtlsdr.NewRTLSDRDevice(opts.Device.Index, opts.Device.PPM, gain)
		if err != nil {
			log.Fatal().Str("device", "rtlsdr").Err(err).Msg("failed to initialize RTLSDR")
		}
	case "file":
		log.Info().Str("device", "file").Str("file", opts.Device.PlaybackFile).Msg("initializing device...")
		// recordings are expected in the HackRF's interleaved int8 format
		dev, err = file.NewFileDevice(opts.Device.PlaybackFile, fileByteReadSize, fileReadDelay, opts.Device.PlaybackLoop)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to init file reader")
		}
	default:
		log.Info().Str("device", "hackrf").Msg("initializing device...")
		if err := hackrf.Init(); err != nil {
			log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to initialize hackRF")
		}
		defer hackrf.Exit()

		if opts.Device.RecordFile != "" {
			dev, err = hackrfDevice.NewRecordingHackRFDevice(opts.Device.RecordFile, gain)
			if err != nil {
				log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to create hackRF recording file device")
			}
		} else {
			dev, err = hackrfDevice.NewHackRFDevice(gain)
			if err != nil {
				log.Fatal().Str("device", "hackrf").Err(err).Msg("failed to create hackRF device")
			}
		}
	}

	bus := events.NewBus()
	scannerOpts := []scanner.ScannerOption{
		scanner.WithLogger(log.Logger),
		scanner.WithBus(bus),
	}
	var sinkOpts []audio.SinkOption

	var vizServer *viz.Server
	if opts.VizServer.Port != 0 {
		vizServer = viz.NewServer(opts.VizServer.Port, opts.VizServer.UpdateInterval)
		scannerOpts = append(scannerOpts, scanner.WithImageServer(vizServer))
		sinkOpts = append(sinkOpts, audio.WithImageServer(vizServer))
	}

	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, opts.InfluxDB.Token)
		defer client.Close()
		writeAPI := client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
		scannerOpts = append(scannerOpts,
			scanner.WithInfluxDB(writeAPI),
			scanner.WithEventSink("influxdb", events.NewInfluxSink(writeAPI)),
		)
		sinkOpts = append(sinkOpts, audio.WithInfluxDB(writeAPI))
	}

	if opts.MQTT.Broker != "" {
		mqttCfg := events.MQTTConfig{
			Broker:   opts.MQTT.Broker,
			ClientID: opts.MQTT.ClientID,
			Topic:    opts.MQTT.Topic,
			Username: opts.MQTT.Username,
			Password: opts.MQTT.Password,
			Timeout:  mqttTimeout,
		}
		client, err := events.DialMQTT(mqttCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to MQTT broker")
		}
		defer client.Disconnect(250)
		scannerOpts = append(scannerOpts, scanner.WithEventSink("mqtt", events.NewMQTTSink(client, mqttCfg)))
	}

	if opts.CallLog != "" {
		calls, err := calllog.Open(opts.CallLog, calllog.WithLogger(log.Logger.With().Str("component", "calllog").Logger()))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open call log")
		}
		defer calls.Close()
		scannerOpts = append(scannerOpts, scanner.WithCallLog(calls))
	}

	var sink *audio.Sink
	if opts.Audio.Device != "none" || len(opts.Audio.OutputDestinations) > 0 {
		out, err := audio.OpenDevice(opts.Audio.Device, opts.Audio.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open audio device")
		}
		sinkOpts = append(sinkOpts,
			audio.WithLogger(log.Logger.With().Str("component", "audio").Logger()),
			audio.WithPublisher(bus),
			audio.WithOutputRate(opts.Audio.OutputRate),
			audio.WithBuffer(opts.Audio.Buffer),
		)
		if len(opts.Audio.OutputDestinations) > 0 {
			dests := make([]audio.Destination, 0, len(opts.Audio.OutputDestinations))
			for _, d := range opts.Audio.OutputDestinations {
				dests = append(dests, audio.Destination{Host: d.Host, Port: d.Port})
			}
			sinkOpts = append(sinkOpts, audio.WithTaggedOutput(audio.NewOpusStream(dests, opts.Audio.OutputRate,
				audio.WithStreamLogger(log.Logger.With().Str("component", "stream").Logger()))))
		}
		sink, err = audio.NewSink(out, sinkOpts...)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create audio sink")
		}
		scannerOpts = append(scannerOpts, scanner.WithVoiceSink(sink))
	}

	t := opts.Timing
	scn, err := scanner.NewScanner(dev, opts.System.ChannelPlan(),
		scanner.Options{
			SampleRate:    opts.Device.SampleRate,
			TuneOffset:    opts.Device.TuneOffset,
			SquelchDBFS:   float64(opts.System.SquelchLevel),
			MaxSyncErrors: t.MaxSyncErrors,
			NAC:           opts.System.NAC,
			Timing: scanner.Timing{
				HangTime:             t.HangTime,
				SignalLossTimeout:    t.SignalLossTimeout,
				AcquireTimeout:       t.AcquireTimeout,
				MaxReacquireAttempts: t.MaxReacquireAttempts,
			},
			GrantTimeout:    t.GrantTimeout,
			Settle:          t.Settle,
			HardwareRetries: opts.Device.HardwareRetries,
			RetryDelay:      opts.Device.RetryDelay,
			StatsPeriod:     opts.StatsPeriod,
		}, scannerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scanner")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg.Go(func() error {
		// a finished playback file ends the run
		defer cancel()
		return scn.Start(ctx)
	})

	if sink != nil {
		eg.Go(func() error {
			return sink.Run(ctx)
		})
		for _, out := range sink.Outputs() {
			out := out
			eg.Go(func() error {
				return out.Start(ctx)
			})
		}
	}

	eg.Go(func() error {
		<-ctx.Done()
		if err := scn.Stop(); err != nil {
			log.Warn().Err(err).Msg("error stopping device")
		}
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("exited program")
	}
}
