// Package native встроенный движок звонков: сигнализация на sipgo, SDP на
// pion/sdp и RTP поток G.711 на pion/rtp. Не требует внешних бинарников.
package native

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/logging"
)

// Engine engine.Engine поверх sipgo
type Engine struct {
	opts Options
	log  logging.Logger
	host string
	port int

	ua      *sipgo.UserAgent
	client  *sipgo.Client
	server  *sipgo.Server
	dialogs *sipgo.DialogClientCache
	conn    net.PacketConn

	mu         sync.Mutex
	sessions   map[string]*session
	closed     bool
	registered bool

	done chan struct{}
}

var _ engine.Engine = (*Engine)(nil)

// Start открывает SIP транспорт и, если задан регистратор, регистрирует
// учетную запись.
func Start(ctx context.Context, opts Options, log logging.Logger) (*Engine, error) {
	opts.setDefaults()
	if log == nil {
		log = logging.Nop()
	}

	lc := net.ListenConfig{Control: controlSocket}
	conn, err := lc.ListenPacket(ctx, "udp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", opts.ListenAddr, err)
	}
	laddr := conn.LocalAddr().(*net.UDPAddr)

	host := opts.MediaIP
	if host == "" {
		host = advertisedHost(laddr, routeTarget(opts))
	}

	e := &Engine{
		opts:     opts,
		log:      log.WithComponent("native"),
		host:     host,
		port:     laddr.Port,
		conn:     conn,
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}

	if err := e.initStack(); err != nil {
		conn.Close()
		return nil, err
	}

	go func() {
		if err := e.server.ServeUDP(conn); err != nil && !errors.Is(err, net.ErrClosed) {
			e.log.LogError(context.Background(), err, "SIP transport stopped")
		}
	}()

	if opts.Registrar != nil {
		if err := e.register(ctx, opts.RegisterExpiry); err != nil {
			_ = e.Close()
			return nil, err
		}
		e.mu.Lock()
		e.registered = true
		e.mu.Unlock()
	}

	e.log.Info(ctx, "native engine started",
		logging.String("listen", laddr.String()),
		logging.String("host", host))
	return e, nil
}

func (e *Engine) initStack() error {
	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(e.opts.UserAgent),
		sipgo.WithUserAgentHostname(e.host),
	)
	if err != nil {
		return fmt.Errorf("init UA: %w", err)
	}
	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(e.host))
	if err != nil {
		ua.Close()
		return fmt.Errorf("new client: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return fmt.Errorf("new server: %w", err)
	}

	e.ua = ua
	e.client = client
	e.server = server
	e.dialogs = sipgo.NewDialogClientCache(client, e.contact())

	server.OnBye(func(req *sip.Request, tx sip.ServerTransaction) {
		if err := e.dialogs.ReadBye(req, tx); err != nil {
			_ = tx.Respond(sip.NewResponseFromRequest(req, 481, "Call/Transaction Does Not Exist", nil))
		}
	})
	server.OnOptions(func(req *sip.Request, tx sip.ServerTransaction) {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))
	})
	return nil
}

// contact Contact заголовок с адресом SIP транспорта
func (e *Engine) contact() sip.ContactHeader {
	return sip.ContactHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   e.opts.Identity.User,
			Host:   e.host,
			Port:   e.port,
		},
	}
}

// fromHeader From с AOR учетной записи и новым тегом
func (e *Engine) fromHeader() *sip.FromHeader {
	addr := e.opts.Identity
	if addr.Host == "" {
		addr = sip.Uri{Scheme: "sip", User: "callprobe", Host: e.host, Port: e.port}
	}
	return &sip.FromHeader{
		Address: addr,
		Params:  sip.NewParams().Add("tag", newTag()),
	}
}

// MakeCall отправляет INVITE с SDP offer и возвращает сессию в CALLING
func (e *Engine) MakeCall(ctx context.Context, uri string, opts engine.CallOptions) (engine.Session, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, engine.ErrClosed
	}

	var recipient sip.Uri
	if err := sip.ParseUri(uri, &recipient); err != nil {
		return nil, fmt.Errorf("invalid target %q: %w", uri, err)
	}

	lc := net.ListenConfig{Control: controlSocket}
	rtpConn, err := lc.ListenPacket(ctx, "udp", net.JoinHostPort(e.host, "0"))
	if err != nil {
		return nil, fmt.Errorf("allocate RTP port: %w", err)
	}
	rtpPort := rtpConn.LocalAddr().(*net.UDPAddr).Port

	offer, err := buildOffer(e.host, rtpPort, sessionID(), e.opts.PacketTime)
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("build SDP offer: %w", err)
	}

	headers := []sip.Header{
		e.fromHeader(),
		sip.NewHeader("Content-Type", "application/sdp"),
	}
	for name, value := range opts.Headers {
		headers = append(headers, sip.NewHeader(name, value))
	}

	dlg, err := e.dialogs.Invite(ctx, recipient, offer, headers...)
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("send INVITE: %w", err)
	}

	callCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		engine:        e,
		id:            dlg.InviteRequest.CallID().Value(),
		remoteURI:     recipient.String(),
		dialog:        dlg,
		rtpConn:       rtpConn,
		cancel:        cancel,
		hangup:        make(chan struct{}),
		notifications: make(chan engine.Notification, 16),
		done:          make(chan struct{}),
	}
	s.log = e.log.WithFields(logging.String("call_id", s.id))

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	s.setState(engine.StateCalling)
	go s.run(callCtx)

	s.log.Debug(ctx, "INVITE sent", logging.String("target", s.remoteURI), logging.Int("rtp_port", rtpPort))
	return s, nil
}

// HangupAll завершает все звонки и ждет их завершения не дольше ctx
func (e *Engine) HangupAll(ctx context.Context) error {
	live := e.liveSessions()
	for _, s := range live {
		s.requestHangup()
	}
	for _, s := range live {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close завершает звонки, снимает регистрацию и закрывает транспорт
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	registered := e.registered
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := e.HangupAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if registered {
		if err := e.register(ctx, 0); err != nil {
			errs = append(errs, fmt.Errorf("unregister: %w", err))
		}
	}

	close(e.done)
	if e.ua != nil {
		errs = append(errs, e.ua.Close())
	}
	if err := e.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) liveSessions() []*session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

func (e *Engine) forget(s *session) {
	e.mu.Lock()
	if cur, ok := e.sessions[s.id]; ok && cur == s {
		delete(e.sessions, s.id)
	}
	e.mu.Unlock()
}

// routeTarget хост, по маршруту до которого выбирается локальный адрес
func routeTarget(opts Options) string {
	if opts.Registrar != nil && opts.Registrar.Host != "" {
		return opts.Registrar.Host
	}
	return opts.Identity.Host
}

// advertisedHost адрес для Contact и SDP: адрес прослушивания, если он
// конкретный, иначе локальный адрес маршрута до target
func advertisedHost(laddr *net.UDPAddr, target string) string {
	if laddr.IP != nil && !laddr.IP.IsUnspecified() {
		return laddr.IP.String()
	}
	if target != "" {
		if conn, err := net.Dial("udp", net.JoinHostPort(target, "5060")); err == nil {
			defer conn.Close()
			return conn.LocalAddr().(*net.UDPAddr).IP.String()
		}
	}
	return "127.0.0.1"
}

func newTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// sessionID идентификатор SDP сессии, положительный int64
func sessionID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8]) >> 1
}

func expiresHeader(d time.Duration) sip.Header {
	return sip.NewHeader("Expires", strconv.Itoa(int(d/time.Second)))
}
