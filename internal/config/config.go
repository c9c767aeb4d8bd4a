// Package config loads daemon settings with precedence
// CLI flag > environment > TOML file > default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/sweeney/power-sequencer/internal/gpio"
)

// EnvPrefix is prepended to the upper-cased flag name to form env var names,
// e.g. --pin-led is POWER_SEQUENCER_PIN_LED.
const EnvPrefix = "POWER_SEQUENCER_"

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "/etc/power-sequencer.toml"

// Config holds every daemon setting.
type Config struct {
	Path           string
	Chip           string
	Pins           gpio.Pins
	Tick           time.Duration
	Blink          time.Duration
	BlinkAtBoot    bool
	EvaluateAtBoot bool
	Broker         string
	Report         time.Duration
	HTTPAddr       string
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Path:           DefaultPath,
		Chip:           "gpiochip0",
		Pins:           gpio.DefaultPins(),
		Tick:           10 * time.Millisecond,
		Blink:          200 * time.Millisecond,
		BlinkAtBoot:    true,
		EvaluateAtBoot: true,
		Broker:         "tcp://127.0.0.1:1883",
		Report:         15 * time.Minute,
		HTTPAddr:       ":8080",
	}
}

// tomlKeys maps flag names to dotted TOML paths.
var tomlKeys = map[string]string{
	"chip":          "gpio.chip",
	"pin-switched":  "gpio.switched",
	"pin-heartbeat": "gpio.heartbeat",
	"pin-power":     "gpio.power",
	"pin-notify":    "gpio.notify",
	"pin-led":       "gpio.led",
	"tick":          "blink.tick",
	"blink":         "blink.half_period",
	"blink-at-boot": "blink.at_boot",
	"eval-at-boot":  "boot.evaluate",
	"broker":        "mqtt.broker",
	"report":        "mqtt.report",
	"http":          "http.addr",
}

// BindFlags registers one flag per setting, defaulting to the current values of c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Path, "config", "c", c.Path, "Path to TOML config file")
	fs.StringVar(&c.Chip, "chip", c.Chip, "GPIO character device")
	fs.IntVar(&c.Pins.Switched, "pin-switched", c.Pins.Switched, "Line offset of the switched-power-present input")
	fs.IntVar(&c.Pins.Heartbeat, "pin-heartbeat", c.Pins.Heartbeat, "Line offset of the host-heartbeat input")
	fs.IntVar(&c.Pins.Power, "pin-power", c.Pins.Power, "Line offset of the power-enable output")
	fs.IntVar(&c.Pins.Notify, "pin-notify", c.Pins.Notify, "Line offset of the host-notify output")
	fs.IntVar(&c.Pins.LED, "pin-led", c.Pins.LED, "Line offset of the status LED output")
	fs.DurationVar(&c.Tick, "tick", c.Tick, "Blink timer tick period (TOML: quoted, e.g. \"10ms\")")
	fs.DurationVar(&c.Blink, "blink", c.Blink, "LED toggle interval while blinking (TOML: quoted, e.g. \"200ms\")")
	fs.BoolVar(&c.BlinkAtBoot, "blink-at-boot", c.BlinkAtBoot, "Start blinking at boot until the first input change")
	fs.BoolVar(&c.EvaluateAtBoot, "eval-at-boot", c.EvaluateAtBoot, "Run the state machine once at boot with current input levels")
	fs.StringVar(&c.Broker, "broker", c.Broker, "MQTT broker address (empty to disable)")
	fs.DurationVar(&c.Report, "report", c.Report, "Status report interval, 0 to disable (TOML: quoted, e.g. \"15m\")")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP status address (empty to disable)")
}

// Load applies environment variables and the TOML file at c.Path to every
// flag in fs that was not set on the command line. A missing file is only
// an error when --config was given explicitly.
func (c *Config) Load(fs *pflag.FlagSet) error {
	file, err := readFile(c.Path, fs.Changed("config"))
	if err != nil {
		return err
	}

	var setErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if setErr != nil || f.Changed {
			return
		}
		key, ok := tomlKeys[f.Name]
		if !ok {
			return
		}

		var value string
		if env, ok := os.LookupEnv(envName(f.Name)); ok {
			value = env
		} else if v := lookup(file, key); v != nil {
			if !durationValue(v) && f.Value.Type() == "duration" {
				setErr = fmt.Errorf("config %s: durations must be quoted strings with a unit, e.g. \"10ms\", got %v", key, v)
				return
			}
			value = fmt.Sprint(v)
		} else {
			return
		}

		if err := fs.Set(f.Name, value); err != nil {
			setErr = fmt.Errorf("config %s: %w", key, err)
		}
	})
	return setErr
}

// Validate checks settings that would make the daemon misbehave.
func (c Config) Validate() error {
	var errs []error
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %v", c.Tick))
	}
	if c.Blink < c.Tick {
		errs = append(errs, fmt.Errorf("blink %v must be at least one tick (%v)", c.Blink, c.Tick))
	}
	if c.Report < 0 {
		errs = append(errs, fmt.Errorf("report must not be negative, got %v", c.Report))
	}

	seen := map[int]string{}
	for _, p := range []struct {
		name   string
		offset int
	}{
		{"switched", c.Pins.Switched},
		{"heartbeat", c.Pins.Heartbeat},
		{"power", c.Pins.Power},
		{"notify", c.Pins.Notify},
		{"led", c.Pins.LED},
	} {
		if p.offset < 0 {
			errs = append(errs, fmt.Errorf("pin %s: negative offset %d", p.name, p.offset))
			continue
		}
		if other, dup := seen[p.offset]; dup {
			errs = append(errs, fmt.Errorf("pin %s: offset %d already used by %s", p.name, p.offset, other))
			continue
		}
		seen[p.offset] = p.name
	}

	return errors.Join(errs...)
}

// BlinkHalfPeriod returns the number of ticks between LED toggles.
func (c Config) BlinkHalfPeriod() int {
	if c.Tick <= 0 {
		return 1
	}
	return int(c.Blink / c.Tick)
}

func readFile(path string, explicit bool) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var file map[string]any
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return file, nil
}

func envName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// lookup walks a dotted path through nested TOML tables.
func lookup(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return v
		}
		if current, ok = v.(map[string]any); !ok {
			return nil
		}
	}
	return nil
}

// durationValue reports whether a TOML value can be parsed as a duration:
// a string such as "10ms", or a bare 0.
func durationValue(v any) bool {
	switch v := v.(type) {
	case string:
		return true
	case int64:
		return v == 0
	}
	return false
}
