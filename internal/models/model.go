package models

import (
	"net"
	"strconv"
	"time"
)

// Settings holds the process-level configuration of the simulator.
type Settings struct {
	CallDir        string        `yaml:"call_dir" mapstructure:"call_dir"`
	Address        string        `yaml:"address" mapstructure:"address"`
	Port           int           `yaml:"port" mapstructure:"port"`
	Concurrent     bool          `yaml:"concurrent" mapstructure:"concurrent"`
	ScriptTimeout  time.Duration `yaml:"script_timeout" mapstructure:"script_timeout"`
	MetricsAddress string        `yaml:"metrics_address" mapstructure:"metrics_address"`
	Ignore         []string      `yaml:"ignore" mapstructure:"ignore"`
	Log            LogSettings   `yaml:"log" mapstructure:"log"`
}

// Listen returns the host:port pair the HTTP server binds to.
func (s Settings) Listen() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

type LogSettings struct {
	Name               string `yaml:"name" mapstructure:"name"`
	Version            string `yaml:"version" mapstructure:"version"`
	Console            bool   `yaml:"console" mapstructure:"console"`
	BeautifyConsoleLog bool   `yaml:"beautify_console" mapstructure:"beautify_console"`
	File               bool   `yaml:"file" mapstructure:"file"`
	Path               string `yaml:"path" mapstructure:"path"`
	MinLevel           string `yaml:"min_level" mapstructure:"min_level"`
	RotationMaxSizeMB  int    `yaml:"rotation_max_size_mb" mapstructure:"rotation_max_size_mb"`
	MaxAgeDay          int    `yaml:"max_age_day" mapstructure:"max_age_day"`
	MaxBackups         int    `yaml:"max_backups" mapstructure:"max_backups"`
	Compress           bool   `yaml:"compress" mapstructure:"compress"`
}
