package native

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Форматы WAV, которые понимает движок
const (
	wavFormatPCM  = 1
	wavFormatALaw = 6
	wavFormatULaw = 7
)

// sampleRate частота дискретизации G.711
const sampleRate = 8000

const maxChunkSize = 64 << 20

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// silenceByte тишина в кодировке кодека
func silenceByte(c Codec) byte {
	if c.PayloadType == CodecPCMA.PayloadType {
		return 0xD5
	}
	return 0xFF
}

// loadPlayback читает файл для проигрывания и возвращает кадры в кодировке
// codec. WAV PCM 16 бит приводится к 8 кГц моно и кодируется, WAV G.711
// и сырые .ulaw/.alaw файлы должны совпадать с кодеком звонка.
func loadPlayback(path string, codec Codec) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ulaw", ".mulaw", ".pcmu":
		return rawForCodec(data, CodecPCMU, codec)
	case ".alaw", ".pcma":
		return rawForCodec(data, CodecPCMA, codec)
	}

	format, samples, err := readWAV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	switch format.AudioFormat {
	case wavFormatPCM:
		if format.BitsPerSample != 16 {
			return nil, fmt.Errorf("%s: поддерживается только PCM 16 бит, получено %d", path, format.BitsPerSample)
		}
		return encodePCM16(samples, format, codec), nil
	case wavFormatULaw:
		return rawForCodec(samples, CodecPCMU, codec)
	case wavFormatALaw:
		return rawForCodec(samples, CodecPCMA, codec)
	default:
		return nil, fmt.Errorf("%s: неподдерживаемый формат WAV %d", path, format.AudioFormat)
	}
}

func rawForCodec(data []byte, fileCodec, codec Codec) ([]byte, error) {
	if fileCodec.PayloadType != codec.PayloadType {
		return nil, fmt.Errorf("файл в %s, звонок в %s", fileCodec.Name, codec.Name)
	}
	return data, nil
}

// readWAV возвращает заголовок fmt и содержимое чанка data
func readWAV(r io.Reader) (wavFormat, []byte, error) {
	var format wavFormat

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return format, nil, fmt.Errorf("заголовок RIFF: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return format, nil, errors.New("не WAV файл")
	}

	haveFormat := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return format, nil, errors.New("нет чанка data")
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		if size > maxChunkSize {
			return format, nil, fmt.Errorf("чанк %q слишком большой: %d", id, size)
		}
		chunk := make([]byte, size)
		n, err := io.ReadFull(r, chunk)
		if err != nil {
			// усеченный data чанк используется как есть
			if id != "data" {
				return format, nil, fmt.Errorf("чанк %q: %w", id, err)
			}
			chunk = chunk[:n]
		}
		if size%2 == 1 {
			_, _ = io.ReadFull(r, make([]byte, 1))
		}

		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return format, nil, errors.New("короткий чанк fmt")
			}
			if err := binary.Read(bytes.NewReader(chunk[:16]), binary.LittleEndian, &format); err != nil {
				return format, nil, err
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return format, nil, errors.New("чанк data до чанка fmt")
			}
			return format, chunk, nil
		}
	}
}

// encodePCM16 берет первый канал, приводит частоту к 8 кГц выборкой
// ближайшего отсчета и кодирует в G.711
func encodePCM16(data []byte, format wavFormat, codec Codec) []byte {
	channels := int(format.Channels)
	if channels == 0 {
		channels = 1
	}
	frameSize := 2 * channels
	frames := len(data) / frameSize
	rate := int(format.SampleRate)
	if rate == 0 {
		rate = sampleRate
	}

	outLen := frames * sampleRate / rate
	out := make([]byte, outLen)
	for i := range out {
		src := i * rate / sampleRate
		sample := int16(binary.LittleEndian.Uint16(data[src*frameSize:]))
		if codec.PayloadType == CodecPCMA.PayloadType {
			out[i] = linearToALaw(sample)
		} else {
			out[i] = linearToULaw(sample)
		}
	}
	return out
}

func linearToULaw(sample int16) byte {
	const (
		bias = 0x84
		clip = 32635
	)
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > clip {
		s = clip
	}
	s += bias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

var alawSegEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

func linearToALaw(sample int16) byte {
	pcm := int(sample) >> 3
	mask := 0xD5
	if pcm < 0 {
		mask = 0x55
		pcm = -pcm - 1
	}

	seg := 0
	for seg < len(alawSegEnd) && pcm > alawSegEnd[seg] {
		seg++
	}
	if seg >= len(alawSegEnd) {
		return byte(0x7F ^ mask)
	}

	aval := seg << 4
	if seg < 2 {
		aval |= (pcm >> 1) & 0x0F
	} else {
		aval |= (pcm >> seg) & 0x0F
	}
	return byte(aval ^ mask)
}

// recorder пишет принятую нагрузку в файл. Для .wav пишется заголовок
// G.711, размеры в нем обновляются при Close.
type recorder struct {
	mu      sync.Mutex
	file    *os.File
	wav     bool
	format  uint16
	written uint32
	closed  bool
}

func newRecorder(path string, codec Codec) (*recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r := &recorder{
		file:   f,
		wav:    strings.EqualFold(filepath.Ext(path), ".wav"),
		format: wavFormatULaw,
	}
	if codec.PayloadType == CodecPCMA.PayloadType {
		r.format = wavFormatALaw
	}
	if r.wav {
		if err := writeWAVHeader(f, r.format, 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *recorder) Write(payload []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, os.ErrClosed
	}
	n, err := r.file.Write(payload)
	r.written += uint32(n)
	return n, err
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.wav {
		var hdr bytes.Buffer
		if err := writeWAVHeader(&hdr, r.format, r.written); err != nil {
			errs = append(errs, err)
		} else if _, err := r.file.WriteAt(hdr.Bytes(), 0); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, r.file.Close())
	return errors.Join(errs...)
}

// writeWAVHeader пишет заголовок WAV 8 кГц моно 8 бит с fmt чанком
// расширенного вида (cbSize = 0)
func writeWAVHeader(w io.Writer, format uint16, dataSize uint32) error {
	const fmtSize = 18
	hdr := struct {
		RIFF      [4]byte
		Size      uint32
		WAVE      [4]byte
		FmtID     [4]byte
		FmtSize   uint32
		Format    wavFormat
		CbSize    uint16
		DataID    [4]byte
		DataBytes uint32
	}{
		RIFF:    [4]byte{'R', 'I', 'F', 'F'},
		Size:    4 + (8 + fmtSize) + 8 + dataSize,
		WAVE:    [4]byte{'W', 'A', 'V', 'E'},
		FmtID:   [4]byte{'f', 'm', 't', ' '},
		FmtSize: fmtSize,
		Format: wavFormat{
			AudioFormat:   format,
			Channels:      1,
			SampleRate:    sampleRate,
			ByteRate:      sampleRate,
			BlockAlign:    1,
			BitsPerSample: 8,
		},
		DataID:    [4]byte{'d', 'a', 't', 'a'},
		DataBytes: dataSize,
	}
	return binary.Write(w, binary.LittleEndian, &hdr)
}
