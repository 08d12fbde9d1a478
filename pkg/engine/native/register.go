package native

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/logging"
)

// register отправляет REGISTER с expiry, отвечая на digest challenge.
// expiry 0 снимает регистрацию.
func (e *Engine) register(ctx context.Context, expiry time.Duration) error {
	registrar := *e.opts.Registrar
	aor := e.opts.Identity
	if aor.Host == "" {
		aor = sip.Uri{Scheme: "sip", User: e.opts.Username, Host: registrar.Host}
	}

	contact := e.contact()
	req := sip.NewRequest(sip.REGISTER, registrar)
	req.AppendHeader(e.fromHeader())
	req.AppendHeader(&sip.ToHeader{Address: aor, Params: sip.NewParams()})
	req.AppendHeader(&contact)
	req.AppendHeader(expiresHeader(expiry))

	res, err := e.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("REGISTER: %w", err)
	}

	if res.StatusCode == 401 || res.StatusCode == 407 {
		if e.opts.Username == "" {
			return &engine.SignalingError{StatusCode: int(res.StatusCode), Reason: res.Reason}
		}
		res, err = e.client.DoDigestAuth(ctx, req, res, sipgo.DigestAuth{
			Username: e.opts.Username,
			Password: e.opts.Password,
		})
		if err != nil {
			return fmt.Errorf("REGISTER with credentials: %w", err)
		}
	}

	if !res.IsSuccess() {
		return &engine.SignalingError{StatusCode: int(res.StatusCode), Reason: res.Reason}
	}

	e.log.Info(ctx, "registered",
		logging.String("aor", aor.String()),
		logging.Duration("expires", expiry))
	return nil
}
