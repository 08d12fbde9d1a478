package main

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/callprobe/pkg/config"
	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/engine/native"
	"github.com/arzzra/callprobe/pkg/engine/pjsua"
	"github.com/arzzra/callprobe/pkg/logging"
)

// startEngine запускает движок, выбранный в конфигурации
func startEngine(ctx context.Context, cfg *config.Config, log logging.Logger) (engine.Engine, error) {
	switch cfg.Engine {
	case config.EnginePjsua:
		return pjsua.Start(ctx, pjsuaOptions(cfg), log)
	case config.EngineNative:
		opts, err := nativeOptions(cfg)
		if err != nil {
			return nil, err
		}
		return native.Start(ctx, opts, log)
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

func pjsuaOptions(cfg *config.Config) pjsua.Options {
	return pjsua.Options{
		BinaryPath:     cfg.Pjsua.Binary,
		TelnetPort:     cfg.Pjsua.TelnetPort,
		LocalPort:      cfg.Pjsua.SIPPort,
		ID:             cfg.IdentityURI(),
		Registrar:      cfg.Account.Registrar,
		Realm:          cfg.Account.Realm,
		Username:       cfg.Account.Username,
		Password:       cfg.Account.Password,
		PlayFile:       cfg.Call.PlayFile,
		RecFile:        cfg.Call.RecFile,
		StartupTimeout: cfg.Pjsua.StartTimeout,
		PollInterval:   cfg.Pjsua.PollInterval,
		ExtraArgs:      cfg.Pjsua.ExtraArgs,
	}
}

func nativeOptions(cfg *config.Config) (native.Options, error) {
	opts := native.Options{
		ListenAddr: cfg.Native.ListenAddr,
		MediaIP:    cfg.Native.MediaIP,
		Username:   cfg.Account.Username,
		Password:   cfg.Account.Password,
	}

	if id := cfg.IdentityURI(); id != "" {
		uri, err := config.ParseSIPURI(id)
		if err != nil {
			return opts, &config.InvalidConfigError{Field: "account", Reason: err.Error()}
		}
		opts.Identity = uri
	}
	if cfg.Account.Registrar != "" {
		reg, err := config.ParseSIPURI(cfg.Account.Registrar)
		if err != nil {
			return opts, &config.InvalidConfigError{Field: "account.registrar", Reason: err.Error()}
		}
		opts.Registrar = &reg
	} else if target, err := config.ParseSIPURI(cfg.Call.URI); err == nil {
		// без регистратора локальный адрес выбирается по маршруту до вызываемой стороны
		opts.Identity = sip.Uri{Scheme: "sip", User: "callprobe", Host: target.Host}
	}
	return opts, nil
}

func closeEngine(eng engine.Engine, log logging.Logger) {
	if err := eng.Close(); err != nil {
		log.LogError(context.Background(), err, "engine close failed")
	}
}
