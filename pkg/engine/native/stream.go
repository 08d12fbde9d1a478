package native

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
)

// rtpVersion версия заголовка RTP (RFC 3550)
const rtpVersion = 2

// counters счетчики одного направления
type counters struct {
	packets atomic.Int64
	bytes   atomic.Int64
}

func (c *counters) add(payload int) {
	c.packets.Add(1)
	c.bytes.Add(int64(payload))
}

// stream RTP поток G.711 одного звонка. Пока файл не подключен, в
// исходящее направление идет тишина.
type stream struct {
	conn   net.PacketConn
	remote *net.UDPAddr
	codec  Codec
	ptime  time.Duration
	send   bool

	ssrc      uint32
	seq       uint16
	timestamp uint32

	mu       sync.Mutex
	playback []byte
	pos      int
	rec      io.Writer

	rx counters
	tx counters

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newStream(conn net.PacketConn, remote *remoteMedia, ptime time.Duration) *stream {
	seed := uuid.New()
	return &stream{
		conn:      conn,
		remote:    remote.Addr,
		codec:     remote.Codec,
		ptime:     ptime,
		send:      remote.Direction != "sendonly" && remote.Direction != "inactive",
		ssrc:      binary.BigEndian.Uint32(seed[0:4]),
		seq:       binary.BigEndian.Uint16(seed[4:6]),
		timestamp: binary.BigEndian.Uint32(seed[6:10]),
		stop:      make(chan struct{}),
	}
}

func (s *stream) start() {
	s.wg.Add(2)
	go s.sendLoop()
	go s.receiveLoop()
}

// samplesPerPacket число отсчетов (и байт G.711) в одном пакете
func (s *stream) samplesPerPacket() int {
	return int(time.Duration(s.codec.ClockRate) * s.ptime / time.Second)
}

func (s *stream) sendLoop() {
	defer s.wg.Done()
	if !s.send {
		return
	}

	ticker := time.NewTicker(s.ptime)
	defer ticker.Stop()

	frame := make([]byte, s.samplesPerPacket())
	marker := true
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		s.nextFrame(frame)
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        rtpVersion,
				Marker:         marker,
				PayloadType:    s.codec.PayloadType,
				SequenceNumber: s.seq,
				Timestamp:      s.timestamp,
				SSRC:           s.ssrc,
			},
			Payload: frame,
		}
		marker = false
		s.seq++
		s.timestamp += uint32(len(frame))

		buf, err := pkt.Marshal()
		if err != nil {
			continue
		}
		if _, err := s.conn.WriteTo(buf, s.remote); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.tx.add(len(frame))
	}
}

// nextFrame заполняет frame очередным фрагментом файла по кругу или тишиной
func (s *stream) nextFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.playback) == 0 {
		silence := silenceByte(s.codec)
		for i := range frame {
			frame[i] = silence
		}
		return
	}
	for i := range frame {
		if s.pos >= len(s.playback) {
			s.pos = 0
		}
		frame[i] = s.playback[s.pos]
		s.pos++
	}
}

func (s *stream) receiveLoop() {
	defer s.wg.Done()

	buf := make([]byte, 1500)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		s.rx.add(len(pkt.Payload))

		s.mu.Lock()
		if s.rec != nil {
			_, _ = s.rec.Write(pkt.Payload)
		}
		s.mu.Unlock()
	}
}

// StartPlayback подключает файл к исходящему направлению
func (s *stream) StartPlayback(path string) (io.Closer, error) {
	data, err := loadPlayback(path, s.codec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.playback = data
	s.pos = 0
	s.mu.Unlock()

	return closerFunc(func() error {
		s.mu.Lock()
		s.playback = nil
		s.mu.Unlock()
		return nil
	}), nil
}

// StartRecording пишет входящее направление в файл
func (s *stream) StartRecording(path string) (io.Closer, error) {
	rec, err := newRecorder(path, s.codec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()

	return closerFunc(func() error {
		s.mu.Lock()
		if s.rec == io.Writer(rec) {
			s.rec = nil
		}
		s.mu.Unlock()
		return rec.Close()
	}), nil
}

// Close останавливает поток и освобождает сокет
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
