package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/norasector/p25scanner/pkg/util"
	"gopkg.in/yaml.v2"
)

// tuning range shared by the supported SDRs
const (
	minTunableHz = 24000000
	maxTunableHz = 1766000000
)

type Config struct {
	Device      Device        `yaml:"device"`
	System      System        `yaml:"system"`
	Timing      Timing        `yaml:"timing"`
	Audio       Audio         `yaml:"audio"`
	VizServer   VizServer     `yaml:"viz_server"`
	InfluxDB    InfluxDB      `yaml:"influxdb"`
	MQTT        MQTT          `yaml:"mqtt"`
	CallLog     string        `yaml:"call_log"`
	LogLevel    string        `yaml:"log_level"`
	StatsPeriod time.Duration `yaml:"stats_period"`
}

type Device struct {
	// Type is one of rtlsdr, hackrf, file.
	Type       string `yaml:"type"`
	Index      int    `yaml:"index"`
	PPM        int    `yaml:"ppm"`
	SampleRate int    `yaml:"sample_rate"`
	// Gain in dB; "auto" or empty selects automatic gain.
	Gain            string        `yaml:"gain"`
	TuneOffset      int           `yaml:"tune_offset"`
	PlaybackFile    string        `yaml:"playback_file"`
	PlaybackLoop    bool          `yaml:"playback_loop"`
	RecordFile      string        `yaml:"record_file"`
	HardwareRetries int           `yaml:"hardware_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

type BandPlanEntry struct {
	Identifier  uint8 `yaml:"identifier"`
	BaseHz      int   `yaml:"base"`
	SpacingHz   int   `yaml:"spacing"`
	BandwidthHz int   `yaml:"bandwidth"`
	TxOffsetHz  int   `yaml:"tx_offset"`
}

type System struct {
	Name               string          `yaml:"name"`
	ControlFrequencies []int           `yaml:"control_freqs,flow"`
	Channels           map[uint16]int  `yaml:"channels"`
	BandPlan           []BandPlanEntry `yaml:"band_plan"`
	Allow              []uint16        `yaml:"allow,flow"`
	Deny               []uint16        `yaml:"deny,flow"`
	NAC                *uint16         `yaml:"nac"`
	FollowUnitCalls    bool            `yaml:"follow_unit_calls"`
	// SquelchLevel is the channel power floor in dBFS.
	SquelchLevel int `yaml:"squelch_level"`
}

type Timing struct {
	HangTime             time.Duration `yaml:"hang_time"`
	GrantTimeout         time.Duration `yaml:"grant_timeout"`
	SignalLossTimeout    time.Duration `yaml:"signal_loss_timeout"`
	AcquireTimeout       time.Duration `yaml:"acquire_timeout"`
	MaxReacquireAttempts int           `yaml:"max_reacquire_attempts"`
	Settle               time.Duration `yaml:"settle"`
	MaxSyncErrors        int           `yaml:"max_sync_errors"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Audio struct {
	// Device is pcm or none.
	Device             string              `yaml:"device"`
	Path               string              `yaml:"path"`
	Buffer             time.Duration       `yaml:"buffer"`
	OutputRate         int                 `yaml:"output_rate"`
	OutputDestinations []OutputDestination `yaml:"output_destinations"`
}

type VizServer struct {
	Port           int           `yaml:"port"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

type InfluxDB struct {
	Host         string `yaml:"host"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func Default() Config {
	return Config{
		Device: Device{
			Type:            "rtlsdr",
			SampleRate:      2048000,
			Gain:            "auto",
			TuneOffset:      250000,
			HardwareRetries: 3,
			RetryDelay:      2 * time.Second,
		},
		System: System{
			SquelchLevel: -60,
		},
		Timing: Timing{
			HangTime:             2 * time.Second,
			GrantTimeout:         3 * time.Second,
			SignalLossTimeout:    1500 * time.Millisecond,
			AcquireTimeout:       2 * time.Second,
			MaxReacquireAttempts: 3,
			Settle:               10 * time.Millisecond,
			MaxSyncErrors:        4,
		},
		Audio: Audio{
			Device:     "pcm",
			Buffer:     500 * time.Millisecond,
			OutputRate: 8000,
		},
		VizServer: VizServer{
			UpdateInterval: time.Second,
		},
		MQTT: MQTT{
			ClientID: "p25scanner",
			Topic:    "p25scanner",
		},
		LogLevel:    "info",
		StatsPeriod: 30 * time.Second,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg := Default()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.System.ControlFrequencies) == 0 {
		errs = append(errs, errors.New("system.control_freqs must not be empty"))
	}
	if len(c.System.ControlFrequencies) > 0 {
		low, high := util.FrequencyRange(c.System.ControlFrequencies...)
		if low < minTunableHz || high > maxTunableHz {
			errs = append(errs, fmt.Errorf("control frequencies %d-%d outside tunable range", low, high))
		}
	}
	switch c.Device.Type {
	case "rtlsdr", "hackrf":
	case "file":
		if c.Device.PlaybackFile == "" {
			errs = append(errs, errors.New("device.playback_file is required for the file device"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown device type %q", c.Device.Type))
	}
	if c.Device.SampleRate < 48000 {
		errs = append(errs, fmt.Errorf("device.sample_rate %d too low", c.Device.SampleRate))
	}
	if _, err := c.Device.ParseGain(); err != nil {
		errs = append(errs, err)
	}
	switch c.Audio.Device {
	case "pcm", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown audio device %q", c.Audio.Device))
	}
	if c.Audio.OutputRate != 8000 && c.Audio.OutputRate != 16000 && c.Audio.OutputRate != 48000 {
		errs = append(errs, fmt.Errorf("audio.output_rate %d must be 8000, 16000 or 48000", c.Audio.OutputRate))
	}
	t := c.Timing
	if t.HangTime <= 0 || t.GrantTimeout <= 0 || t.SignalLossTimeout <= 0 || t.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("timing values must be positive"))
	}
	if t.Settle < 0 || t.Settle > 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("timing.settle %s out of range", t.Settle))
	}
	if t.MaxSyncErrors < 0 || t.MaxSyncErrors > 8 {
		errs = append(errs, fmt.Errorf("timing.max_sync_errors %d out of range 0-8", t.MaxSyncErrors))
	}
	if t.MaxReacquireAttempts < 1 {
		errs = append(errs, errors.New("timing.max_reacquire_attempts must be at least 1"))
	}
	for _, e := range c.System.BandPlan {
		if e.Identifier > 15 || e.SpacingHz <= 0 || e.BaseHz <= 0 {
			errs = append(errs, fmt.Errorf("bad band plan entry %+v", e))
		}
	}
	return errors.Join(errs...)
}
