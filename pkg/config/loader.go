package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// binding связывает флаг, его переменные окружения и поле Config
type binding struct {
	flag string
	env  []string
	copy func(dst, src *Config)
}

// Loader регистрирует флаги и собирает итоговую конфигурацию
type Loader struct {
	fs       *pflag.FlagSet
	vals     *Config
	bindings []binding

	configPath string
	envFiles   []string

	// LookupEnv источник переменных окружения, по умолчанию os.LookupEnv
	LookupEnv func(string) (string, bool)
}

// NewLoader регистрирует флаги зонда в fs
func NewLoader(fs *pflag.FlagSet) *Loader {
	l := &Loader{fs: fs, vals: Default(), LookupEnv: os.LookupEnv}

	fs.StringVar(&l.configPath, "config", "", "YAML config file")
	fs.StringSliceVar(&l.envFiles, "env-file", nil, "dotenv files to load (default .env if present)")

	bind(l, fs.StringVarP, "engine", "", "call engine: pjsua or native",
		func(c *Config) *string { return &c.Engine }, "CALLPROBE_ENGINE")

	bind(l, fs.StringVarP, "username", "u", "account username, example: 1000",
		func(c *Config) *string { return &c.Account.Username }, "USERNAME", "CALLPROBE_USERNAME")
	bind(l, fs.StringVarP, "password", "p", "account password",
		func(c *Config) *string { return &c.Account.Password }, "PASSWORD", "CALLPROBE_PASSWORD")
	bind(l, fs.StringVarP, "registrar", "R", "registrar URI, example: sip:kamailio",
		func(c *Config) *string { return &c.Account.Registrar }, "REGISTER_URI", "CALLPROBE_REGISTRAR")
	bind(l, fs.StringVarP, "realm", "", "digest realm",
		func(c *Config) *string { return &c.Account.Realm }, "CALLPROBE_REALM")

	bind(l, fs.StringVarP, "uri", "c", "URI to call, example: sip:1@kamailio",
		func(c *Config) *string { return &c.Call.URI }, "CALL_URI", "CALLPROBE_CALL_URI")
	bind(l, l.durationVarP, "call-time", "t", "how long each call lasts (plain numbers are seconds)",
		func(c *Config) *time.Duration { return &c.Call.Duration }, "CALL_TIME", "CALLPROBE_CALL_TIME")
	bind(l, fs.Float64VarP, "threshold", "s", "minimal rx/tx packet ratio of a healthy call",
		func(c *Config) *float64 { return &c.Call.Threshold }, "THRESHOLD", "CALLPROBE_THRESHOLD")
	bind(l, fs.IntVarP, "repeat", "r", "number of sequential calls",
		func(c *Config) *int { return &c.Call.Repeat }, "REPEAT", "CALLPROBE_REPEAT")
	bind(l, l.durationVarP, "grace", "", "pause between hangup and dump",
		func(c *Config) *time.Duration { return &c.Call.Grace }, "CALLPROBE_GRACE")
	bind(l, l.durationVarP, "teardown-timeout", "", "how long to wait for the call to disconnect",
		func(c *Config) *time.Duration { return &c.Call.TeardownTimeout }, "CALLPROBE_TEARDOWN_TIMEOUT")
	bind(l, fs.StringVarP, "play-file", "", "WAV file played into the call",
		func(c *Config) *string { return &c.Call.PlayFile }, "CALLPROBE_PLAY_FILE")
	bind(l, fs.StringVarP, "rec-file", "", "WAV file the received audio is recorded to",
		func(c *Config) *string { return &c.Call.RecFile }, "CALLPROBE_REC_FILE")

	bind(l, fs.StringVarP, "audit-log", "", "append-only attempt log",
		func(c *Config) *string { return &c.Audit.Path }, "CALLPROBE_AUDIT_LOG")

	bind(l, fs.StringVarP, "pjsua-binary", "", "path to the pjsua binary",
		func(c *Config) *string { return &c.Pjsua.Binary }, "CALLPROBE_PJSUA_BINARY")
	bind(l, fs.IntVarP, "pjsua-telnet-port", "", "pjsua CLI telnet port",
		func(c *Config) *int { return &c.Pjsua.TelnetPort }, "CALLPROBE_PJSUA_TELNET_PORT")
	bind(l, fs.IntVarP, "pjsua-sip-port", "", "pjsua local SIP port",
		func(c *Config) *int { return &c.Pjsua.SIPPort }, "CALLPROBE_PJSUA_SIP_PORT")

	bind(l, fs.StringVarP, "listen", "", "native engine SIP listen address",
		func(c *Config) *string { return &c.Native.ListenAddr }, "CALLPROBE_LISTEN")
	bind(l, fs.StringVarP, "media-ip", "", "native engine address announced in SDP",
		func(c *Config) *string { return &c.Native.MediaIP }, "CALLPROBE_MEDIA_IP")

	bind(l, fs.StringVarP, "log-level", "", "log level: debug, info, warn, error",
		func(c *Config) *string { return &c.Log.Level }, "CALLPROBE_LOG_LEVEL")
	bind(l, fs.StringVarP, "log-format", "", "log format: text or json",
		func(c *Config) *string { return &c.Log.Format }, "CALLPROBE_LOG_FORMAT")
	bind(l, fs.StringVarP, "metrics-addr", "", "address of the Prometheus endpoint, empty disables it",
		func(c *Config) *string { return &c.Metrics.Addr }, "CALLPROBE_METRICS_ADDR")

	return l
}

// bind регистрирует флаг со значением по умолчанию из Default()
func bind[T any](l *Loader, register func(p *T, name, shorthand string, value T, usage string),
	name, shorthand, usage string, field func(*Config) *T, env ...string) {

	if len(env) > 0 {
		usage = fmt.Sprintf("%s [$%s]", usage, env[0])
	}
	register(field(l.vals), name, shorthand, *field(l.vals), usage)
	l.bindings = append(l.bindings, binding{
		flag: name,
		env:  env,
		copy: func(dst, src *Config) { *field(dst) = *field(src) },
	})
}

// Load собирает конфигурацию. Вызывается после разбора флагов.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()
	if l.configPath != "" {
		if err := LoadFile(l.configPath, cfg); err != nil {
			return nil, err
		}
	}

	for _, b := range l.bindings {
		if !l.fs.Changed(b.flag) {
			value, name, ok := l.lookup(b.env)
			if !ok {
				continue
			}
			if err := l.fs.Set(b.flag, strings.TrimSpace(value)); err != nil {
				return nil, invalid(name, "%v", err)
			}
		}
		b.copy(cfg, l.vals)
	}

	return cfg, nil
}

func (l *Loader) lookup(names []string) (string, string, bool) {
	for _, name := range names {
		if v, ok := l.LookupEnv(name); ok && v != "" {
			return v, name, true
		}
	}
	return "", "", false
}

// loadEnvFiles загружает .env файлы; уже заданные переменные не перезаписываются
func (l *Loader) loadEnvFiles() error {
	files := l.envFiles
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

func (l *Loader) durationVarP(p *time.Duration, name, shorthand string, value time.Duration, usage string) {
	*p = value
	l.fs.VarP((*secondsValue)(p), name, shorthand, usage)
}

// secondsValue длительность, принимающая целое число как секунды,
// как переменная CALL_TIME
type secondsValue time.Duration

func (d *secondsValue) Set(s string) error {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		*d = secondsValue(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = secondsValue(v)
	return nil
}

func (d *secondsValue) Type() string {
	return "duration"
}

func (d *secondsValue) String() string {
	return time.Duration(*d).String()
}
