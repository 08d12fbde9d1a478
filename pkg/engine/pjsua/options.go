package pjsua

import (
	"strconv"
	"time"
)

// Options configures the pjsua process and the CLI connection
type Options struct {
	BinaryPath string
	TelnetHost string
	TelnetPort int
	// LocalPort is the SIP UDP port of pjsua, 0 keeps pjsua's default
	LocalPort int

	// Account, all optional. ID is sip:<user>@<registrar host>.
	ID        string
	Registrar string
	Realm     string
	Username  string
	Password  string

	PlayFile string
	RecFile  string
	LogFile  string

	StartupTimeout time.Duration
	CommandTimeout time.Duration
	PollInterval   time.Duration

	ExtraArgs []string
}

func (o *Options) setDefaults() {
	if o.BinaryPath == "" {
		o.BinaryPath = "pjsua"
	}
	if o.TelnetHost == "" {
		o.TelnetHost = "127.0.0.1"
	}
	if o.TelnetPort == 0 {
		o.TelnetPort = 2323
	}
	if o.StartupTimeout == 0 {
		o.StartupTimeout = 10 * time.Second
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = 5 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 200 * time.Millisecond
	}
}

// Args builds the pjsua command line. The CLI is always served over
// telnet and the sound device is always the null device.
func (o *Options) Args() []string {
	args := []string{
		"--use-cli",
		"--cli-telnet-port", strconv.Itoa(o.TelnetPort),
		"--no-cli-console",
		"--null-audio",
	}

	if o.LocalPort > 0 {
		args = append(args, "--local-port", strconv.Itoa(o.LocalPort))
	}
	if o.LogFile != "" {
		args = append(args, "--log-file", o.LogFile)
	}

	if o.ID != "" {
		args = append(args, "--id", o.ID)
	}
	if o.Registrar != "" {
		args = append(args, "--registrar", o.Registrar)
	}
	if o.Username != "" {
		realm := o.Realm
		if realm == "" {
			realm = "*"
		}
		args = append(args, "--realm", realm, "--username", o.Username)
		if o.Password != "" {
			args = append(args, "--password", o.Password)
		}
	}

	if o.PlayFile != "" {
		args = append(args, "--play-file", o.PlayFile)
	}
	if o.RecFile != "" {
		args = append(args, "--rec-file", o.RecFile)
	}

	return append(args, o.ExtraArgs...)
}
