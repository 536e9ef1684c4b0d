// Package config loads onelane settings from an optional file.
//
// Files may be CUE, YAML or JSON. Each is unified with the closed #Config
// schema in schema.cue, which rejects unknown fields and out-of-range
// values, and is then applied over Default(). Command-line flags override
// the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/onelane/internal/bridge"
	"github.com/roach88/onelane/internal/client"
	"github.com/roach88/onelane/internal/protocol"
	"github.com/roach88/onelane/internal/server"
)

// Config is the complete settings tree.
type Config struct {
	Server  Server  `json:"server"`
	Vehicle Vehicle `json:"vehicle"`
	Log     Log     `json:"log"`
}

// Server holds `onelane serve` settings.
type Server struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	IdleTimeout  Duration `json:"idle_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
	MaxFrameSize int      `json:"max_frame_size"`
	Journal      string   `json:"journal"`
	StatusAddr   string   `json:"status_addr"`
}

// Vehicle holds `onelane drive` settings.
type Vehicle struct {
	Addr              string   `json:"addr"`
	ID                string   `json:"id"`
	Direction         string   `json:"direction"`
	MinCrossing       Duration `json:"min_crossing"`
	MaxCrossing       Duration `json:"max_crossing"`
	MinDelay          Duration `json:"min_delay"`
	MaxDelay          Duration `json:"max_delay"`
	ResponseTimeout   Duration `json:"response_timeout"`
	RetryDelay        Duration `json:"retry_delay"`
	MaxSilentTimeouts int      `json:"max_silent_timeouts"`
	MaxRetries        int      `json:"max_retries"`
	Crossings         int      `json:"crossings"`
}

// Log holds logging settings.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	srv := server.DefaultConfig()
	veh := client.DefaultConfig()
	return Config{
		Server: Server{
			Host:         srv.Host,
			Port:         srv.Port,
			IdleTimeout:  Duration(srv.IdleTimeout),
			WriteTimeout: Duration(srv.WriteTimeout),
			MaxFrameSize: protocol.DefaultMaxFrameSize,
		},
		Vehicle: Vehicle{
			Addr:              veh.Addr,
			Direction:         string(veh.Direction),
			MinCrossing:       Duration(veh.MinCrossing),
			MaxCrossing:       Duration(veh.MaxCrossing),
			MinDelay:          Duration(veh.MinDelay),
			MaxDelay:          Duration(veh.MaxDelay),
			ResponseTimeout:   Duration(veh.ResponseTimeout),
			RetryDelay:        Duration(veh.RetryDelay),
			MaxSilentTimeouts: veh.MaxSilentTimeouts,
			MaxRetries:        veh.MaxRetries,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Check enforces the rules that span several fields.
func (c Config) Check() error {
	var errs []error
	if c.Vehicle.MinCrossing > c.Vehicle.MaxCrossing {
		errs = append(errs, errors.New("vehicle.min_crossing exceeds vehicle.max_crossing"))
	}
	if c.Vehicle.MinDelay > c.Vehicle.MaxDelay {
		errs = append(errs, errors.New("vehicle.min_delay exceeds vehicle.max_delay"))
	}
	if c.Vehicle.Direction != "" {
		if _, err := bridge.ParseDirection(c.Vehicle.Direction); err != nil {
			errs = append(errs, fmt.Errorf("vehicle.direction: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ServerConfig converts the server section.
func (c Config) ServerConfig() server.Config {
	return server.Config{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		IdleTimeout:  time.Duration(c.Server.IdleTimeout),
		WriteTimeout: time.Duration(c.Server.WriteTimeout),
		MaxFrameSize: c.Server.MaxFrameSize,
	}
}

// VehicleConfig converts the vehicle section. The id is normalized the
// same way the server normalizes it.
func (c Config) VehicleConfig() (client.Config, error) {
	dir, err := bridge.ParseDirection(c.Vehicle.Direction)
	if err != nil {
		return client.Config{}, err
	}
	def := client.DefaultConfig()
	return client.Config{
		Addr:              c.Vehicle.Addr,
		ID:                bridge.ActorID(protocol.NormalizeID(c.Vehicle.ID)),
		Direction:         dir,
		MinCrossing:       time.Duration(c.Vehicle.MinCrossing),
		MaxCrossing:       time.Duration(c.Vehicle.MaxCrossing),
		MinDelay:          time.Duration(c.Vehicle.MinDelay),
		MaxDelay:          time.Duration(c.Vehicle.MaxDelay),
		ResponseTimeout:   time.Duration(c.Vehicle.ResponseTimeout),
		RetryDelay:        time.Duration(c.Vehicle.RetryDelay),
		MaxSilentTimeouts: c.Vehicle.MaxSilentTimeouts,
		MaxRetries:        c.Vehicle.MaxRetries,
		InitialBackoff:    def.InitialBackoff,
		MaxBackoff:        def.MaxBackoff,
		DialTimeout:       def.DialTimeout,
		MaxFrameSize:      def.MaxFrameSize,
		Crossings:         c.Vehicle.Crossings,
	}, nil
}

// Duration is a time.Duration written as a Go duration string ("1.5s").
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
