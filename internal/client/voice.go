package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Audio framing shared by every voice client.
const (
	SampleRate      = 44100
	FramesPerBuffer = 512
	FrameBytes      = FramesPerBuffer * 4
	VoicePort       = "8081"
)

// AudioDevice is the capture and playback collaborator. Read fills frame
// with one buffer of mono float32 samples and blocks until it is full.
type AudioDevice interface {
	Read(frame []float32) error
	Write(frame []float32) error
	Close() error
}

// FrameDuration is the playback length of one frame.
const FrameDuration = time.Second * FramesPerBuffer / SampleRate

// NullDevice captures silence paced at FrameDuration and discards playback.
// It stands in when no audio backend is available.
type NullDevice struct {
	mu     sync.Mutex
	played int
	closed bool
}

func (d *NullDevice) Read(frame []float32) error {
	time.Sleep(FrameDuration)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return net.ErrClosed
	}
	clear(frame)
	return nil
}

func (d *NullDevice) Write(frame []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return net.ErrClosed
	}
	d.played++
	return nil
}

func (d *NullDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Played reports how many frames were written.
func (d *NullDevice) Played() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.played
}

// VoiceAddr derives the relay address from the control address.
func VoiceAddr(server string) string {
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		host = server
	}
	return net.JoinHostPort(host, VoicePort)
}

// VoiceLink pumps frames between an AudioDevice and the voice relay.
type VoiceLink struct {
	conn   net.Conn
	device AudioDevice
	log    zerolog.Logger
}

// DialVoice opens a UDP socket to the relay.
func DialVoice(ctx context.Context, addr string, device AudioDevice, logger *zerolog.Logger) (*VoiceLink, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial voice %s: %w", addr, err)
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "voice").Logger()
	}
	return &VoiceLink{conn: c, device: device, log: l}, nil
}

// LocalAddr is the link's UDP endpoint as the relay sees it.
func (v *VoiceLink) LocalAddr() net.Addr {
	return v.conn.LocalAddr()
}

// Run captures and plays until ctx is done or either side fails. The socket
// and the device are closed on return.
func (v *VoiceLink) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = v.conn.Close() })
	defer stop()

	errc := make(chan error, 2)
	go func() { errc <- v.capture() }()
	go func() { errc <- v.playback() }()

	err := <-errc
	_ = v.conn.Close()
	_ = v.device.Close()
	<-errc

	if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (v *VoiceLink) capture() error {
	frame := make([]float32, FramesPerBuffer)
	buf := make([]byte, FrameBytes)
	for {
		if err := v.device.Read(frame); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		EncodeFrame(buf, frame)
		if _, err := v.conn.Write(buf); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}
	}
}

func (v *VoiceLink) playback() error {
	frame := make([]float32, FramesPerBuffer)
	buf := make([]byte, FrameBytes)
	for {
		n, err := v.conn.Read(buf)
		if err != nil {
			return fmt.Errorf("receive frame: %w", err)
		}
		if n != FrameBytes {
			v.log.Debug().Int("bytes", n).Msg("dropping short frame")
			continue
		}
		DecodeFrame(frame, buf)
		if err := v.device.Write(frame); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
	}
}

// EncodeFrame writes samples as little-endian float32 into dst.
func EncodeFrame(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
