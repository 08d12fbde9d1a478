// Package config конфигурация зонда: значения по умолчанию, YAML файл,
// переменные окружения (включая .env) и флаги командной строки.
//
// Приоритет: флаг > переменная окружения > файл > значение по умолчанию.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"
	"gopkg.in/yaml.v3"

	"github.com/arzzra/callprobe/pkg/quality"
)

// Движки звонков
const (
	EnginePjsua  = "pjsua"
	EngineNative = "native"
)

// Config полная конфигурация зонда
type Config struct {
	Engine  string        `yaml:"engine"`
	Account AccountConfig `yaml:"account"`
	Call    CallConfig    `yaml:"call"`
	Audit   AuditConfig   `yaml:"audit"`
	Pjsua   PjsuaConfig   `yaml:"pjsua"`
	Native  NativeConfig  `yaml:"native"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AccountConfig учетная запись, под которой совершаются звонки
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Registrar URI регистратора, например sip:kamailio
	Registrar string `yaml:"registrar"`
	Realm     string `yaml:"realm"`
}

// CallConfig параметры попыток
type CallConfig struct {
	// URI вызываемой стороны, например sip:1@kamailio
	URI       string        `yaml:"uri"`
	Duration  time.Duration `yaml:"duration"`
	Threshold float64       `yaml:"threshold"`
	Repeat    int           `yaml:"repeat"`
	// Grace пауза между завершением звонка и снятием отчета
	Grace time.Duration `yaml:"grace"`
	// TeardownTimeout сколько ждать DISCONNECTED после завершения звонка
	TeardownTimeout time.Duration `yaml:"teardown_timeout"`
	PlayFile        string        `yaml:"play_file"`
	RecFile         string        `yaml:"rec_file"`
}

// AuditConfig журнал попыток
type AuditConfig struct {
	Path string `yaml:"path"`
}

// PjsuaConfig движок на основе бинарника pjsua
type PjsuaConfig struct {
	Binary       string        `yaml:"binary"`
	TelnetPort   int           `yaml:"telnet_port"`
	SIPPort      int           `yaml:"sip_port"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ExtraArgs    []string      `yaml:"extra_args"`
}

// NativeConfig встроенный движок sipgo + pion
type NativeConfig struct {
	// ListenAddr адрес SIP транспорта UDP
	ListenAddr string `yaml:"listen_addr"`
	// MediaIP адрес, объявляемый в SDP; пустой означает автоопределение
	MediaIP string `yaml:"media_ip"`
}

// LogConfig логирование
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig экспорт метрик
type MetricsConfig struct {
	// Addr адрес HTTP endpoint, пустой отключает экспорт
	Addr string `yaml:"addr"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Engine: EnginePjsua,
		Account: AccountConfig{
			Realm: "*",
		},
		Call: CallConfig{
			Duration:        30 * time.Second,
			Threshold:       0.9,
			Repeat:          1,
			Grace:           time.Second,
			TeardownTimeout: 10 * time.Second,
			PlayFile:        "./input.16.wav",
			RecFile:         "./recordered.wav",
		},
		Audit: AuditConfig{
			Path: "client.log",
		},
		Pjsua: PjsuaConfig{
			Binary:       "pjsua",
			TelnetPort:   2323,
			SIPPort:      5060,
			StartTimeout: 10 * time.Second,
			PollInterval: 200 * time.Millisecond,
		},
		Native: NativeConfig{
			ListenAddr: "0.0.0.0:5060",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile накладывает YAML файл на cfg. Отсутствующие в файле поля
// сохраняют прежние значения.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate проверяет конфигурацию перед первой попыткой
func (c *Config) Validate() error {
	switch c.Engine {
	case EnginePjsua, EngineNative:
	default:
		return invalid("engine", "неизвестный движок %q", c.Engine)
	}

	if c.Call.URI == "" {
		return invalid("call.uri", "обязательный параметр")
	}
	if _, err := ParseSIPURI(c.Call.URI); err != nil {
		return invalid("call.uri", "%v", err)
	}
	if c.Account.Registrar != "" {
		if _, err := ParseSIPURI(c.Account.Registrar); err != nil {
			return invalid("account.registrar", "%v", err)
		}
		if c.Account.Username == "" {
			return invalid("account.username", "обязателен при регистрации")
		}
	}

	if c.Call.Duration <= 0 {
		return invalid("call.duration", "должна быть положительной, получено %s", c.Call.Duration)
	}
	if c.Call.Repeat < 1 {
		return invalid("call.repeat", "должно быть не меньше 1, получено %d", c.Call.Repeat)
	}
	if c.Call.Grace < 0 {
		return invalid("call.grace", "не может быть отрицательной")
	}
	if c.Call.TeardownTimeout <= 0 {
		return invalid("call.teardown_timeout", "должен быть положительным")
	}
	if err := quality.ValidateThreshold(c.Call.Threshold); err != nil {
		return err
	}
	if c.Audit.Path == "" {
		return invalid("audit.path", "обязательный параметр")
	}
	return nil
}

// IdentityURI URI учетной записи sip:<user>@<хост регистратора>.
// Без регистратора возвращает пустую строку.
func (c *Config) IdentityURI() string {
	if c.Account.Registrar == "" || c.Account.Username == "" {
		return ""
	}
	reg, err := ParseSIPURI(c.Account.Registrar)
	if err != nil {
		return ""
	}
	host := reg.Host
	if reg.Port > 0 {
		host = fmt.Sprintf("%s:%d", reg.Host, reg.Port)
	}
	return fmt.Sprintf("sip:%s@%s", c.Account.Username, host)
}

// ParseSIPURI разбирает и проверяет SIP URI
func ParseSIPURI(s string) (sip.Uri, error) {
	var uri sip.Uri
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "sip:") && !strings.HasPrefix(s, "sips:") {
		return uri, fmt.Errorf("некорректный SIP URI %q: нет схемы sip", s)
	}
	if err := sip.ParseUri(s, &uri); err != nil {
		return uri, fmt.Errorf("некорректный SIP URI %q: %w", s, err)
	}
	if uri.Host == "" {
		return uri, fmt.Errorf("некорректный SIP URI %q: нет хоста", s)
	}
	return uri, nil
}
