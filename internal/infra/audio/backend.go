// Package audio plays resolved streams into voice connections.
package audio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"

	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/infra/config"
)

// Config holds decoder and encoder settings.
type Config struct {
	FFmpegPath    string
	BeforeOptions string
	Options       string
	SampleRate    int
	Channels      int
	FrameSize     int // Samples per channel per frame
	Bitrate       int
}

// ConfigFromSettings maps the audio settings onto a backend Config.
func ConfigFromSettings(a config.AudioConfig) Config {
	return Config{
		FFmpegPath:    a.FFmpegPath,
		BeforeOptions: a.BeforeOptions,
		Options:       a.Options,
		SampleRate:    a.SampleRate,
		Channels:      a.Channels,
		FrameSize:     a.FrameSize,
		Bitrate:       a.Bitrate,
	}
}

// Sink receives encoded Opus frames for one voice connection.
type Sink interface {
	Speaking(speaking bool) error
	Frames() chan<- []byte
}

// Source opens a raw PCM reader for a stream URL.
type Source func(ctx context.Context, url string) (io.ReadCloser, error)

// Encoder encodes one PCM frame.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// EncoderFactory creates an encoder per stream.
type EncoderFactory func(cfg Config) (Encoder, error)

// NewOpusEncoder creates a gopus encoder.
func NewOpusEncoder(cfg Config) (Encoder, error) {
	enc, err := gopus.NewEncoder(cfg.SampleRate, cfg.Channels, gopus.Audio)
	if err != nil {
		return nil, errors.Wrap(err, "opus encoder")
	}
	if cfg.Bitrate > 0 {
		enc.SetBitrate(cfg.Bitrate)
	}
	return enc, nil
}

// Option configures a Backend.
type Option func(*Backend)

// WithSource replaces the ffmpeg decoder.
func WithSource(src Source) Option {
	return func(b *Backend) { b.source = src }
}

// WithEncoder replaces the Opus encoder.
func WithEncoder(f EncoderFactory) Option {
	return func(b *Backend) { b.newEncoder = f }
}

// Backend decodes streams and sends them to voice sinks, one goroutine per stream.
// The end of every stream is posted to the completion bridge.
type Backend struct {
	cfg        Config
	bridge     *playback.Bridge
	source     Source
	newEncoder EncoderFactory

	mu      sync.Mutex
	next    playback.Handle
	streams map[playback.Handle]*stream
	wg      sync.WaitGroup
}

var _ playback.Backend = (*Backend)(nil)

// NewBackend creates an audio backend posting completions to bridge.
func NewBackend(cfg Config, bridge *playback.Bridge, opts ...Option) *Backend {
	b := &Backend{
		cfg:        cfg,
		bridge:     bridge,
		newEncoder: NewOpusEncoder,
		streams:    make(map[playback.Handle]*stream),
	}
	b.source = ffmpegSource(cfg)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// stream is one running playback.
type stream struct {
	handle  playback.Handle
	guildID string
	cancel  context.CancelFunc
	volume  atomic.Uint64 // math.Float64bits

	mu     sync.Mutex
	paused bool
	wake   chan struct{}
}

func (s *stream) setVolume(v float64) {
	s.volume.Store(math.Float64bits(v))
}

func (s *stream) getVolume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// waitIfPaused blocks while the stream is paused.
func (s *stream) waitIfPaused(ctx context.Context, sink Sink) error {
	for {
		s.mu.Lock()
		if !s.paused {
			s.mu.Unlock()
			return nil
		}
		wake := s.wake
		s.mu.Unlock()

		_ = sink.Speaking(false)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
			_ = sink.Speaking(true)
		}
	}
}

// Start opens the stream and begins sending frames to conn.
func (b *Backend) Start(ctx context.Context, conn playback.Connection, streamURL string, volume float64) (playback.Handle, error) {
	sink, ok := conn.(Sink)
	if !ok {
		return 0, errors.Newf("connection for guild %s cannot carry audio", conn.GuildID())
	}
	enc, err := b.newEncoder(b.cfg)
	if err != nil {
		return 0, err
	}

	sctx, cancel := context.WithCancel(ctx)
	src, err := b.source(sctx, streamURL)
	if err != nil {
		cancel()
		return 0, errors.Wrap(err, "open stream")
	}

	b.mu.Lock()
	b.next++
	st := &stream{handle: b.next, guildID: conn.GuildID(), cancel: cancel}
	st.setVolume(volume)
	b.streams[st.handle] = st
	b.mu.Unlock()

	zlog.Info().Msgf("audio: stream started: guild=%s handle=%d volume=%.2f", st.guildID, st.handle, volume)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(sctx, st, src, enc, sink)
	}()
	return st.handle, nil
}

// run plays one stream and posts its completion. A stream that ends before its
// first frame is reported as a failed start.
func (b *Backend) run(ctx context.Context, st *stream, src io.ReadCloser, enc Encoder, sink Sink) {
	sent, err := b.pump(ctx, st, src, enc, sink)
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	stopped := ctx.Err() != nil
	_ = sink.Speaking(false)
	st.cancel()

	b.mu.Lock()
	delete(b.streams, st.handle)
	b.mu.Unlock()

	switch {
	case stopped:
		// Stopped on request.
		err = nil
	case sent == 0 && err == nil:
		err = errors.Mark(errors.New("stream produced no audio"), playback.ErrBackendStartFailed)
	case sent == 0:
		err = errors.Mark(err, playback.ErrBackendStartFailed)
	}
	if err != nil {
		zlog.Warn().Msgf("audio: stream ended with error: guild=%s handle=%d error=%v", st.guildID, st.handle, err)
	} else {
		zlog.Debug().Msgf("audio: stream ended: guild=%s handle=%d", st.guildID, st.handle)
	}
	b.bridge.Post(playback.Completion{GuildID: st.guildID, Handle: st.handle, Err: err})
}

// pump reads PCM frames, scales, encodes and sends them until the source ends.
// It returns the number of frames sent.
func (b *Backend) pump(ctx context.Context, st *stream, src io.Reader, enc Encoder, sink Sink) (int, error) {
	frameLen := b.cfg.FrameSize * b.cfg.Channels
	pcm := make([]byte, frameLen*2)
	samples := make([]int16, frameLen)

	if err := sink.Speaking(true); err != nil {
		zlog.Debug().Msgf("audio: speaking failed: guild=%s error=%v", st.guildID, err)
	}

	sent := 0
	for {
		if err := st.waitIfPaused(ctx, sink); err != nil {
			return sent, err
		}

		if _, err := io.ReadFull(src, pcm); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return sent, nil
			}
			return sent, errors.Wrap(err, "read pcm")
		}
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		}
		applyVolume(samples, st.getVolume())

		frame, err := enc.Encode(samples, b.cfg.FrameSize, len(pcm))
		if err != nil {
			return sent, errors.Wrap(err, "encode")
		}

		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case sink.Frames() <- frame:
			sent++
		}
	}
}

func (b *Backend) lookup(h playback.Handle) *stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[h]
}

// Stop ends the stream. Its completion is still posted.
func (b *Backend) Stop(h playback.Handle) {
	if st := b.lookup(h); st != nil {
		zlog.Debug().Msgf("audio: stopping stream: guild=%s handle=%d", st.guildID, h)
		st.cancel()
	}
}

// Pause holds the stream at the current frame.
func (b *Backend) Pause(h playback.Handle) error {
	st := b.lookup(h)
	if st == nil {
		return errors.Newf("unknown stream handle %d", h)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.paused {
		st.paused = true
		st.wake = make(chan struct{})
	}
	return nil
}

// Resume continues a paused stream.
func (b *Backend) Resume(h playback.Handle) error {
	st := b.lookup(h)
	if st == nil {
		return errors.Newf("unknown stream handle %d", h)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.paused {
		st.paused = false
		close(st.wake)
	}
	return nil
}

// SetVolume changes the volume of a running stream from the next frame on.
func (b *Backend) SetVolume(h playback.Handle, volume float64) {
	if st := b.lookup(h); st != nil {
		st.setVolume(volume)
	}
}

// Close stops every stream and waits for their goroutines.
func (b *Backend) Close() {
	b.mu.Lock()
	for _, st := range b.streams {
		st.cancel()
	}
	b.mu.Unlock()
	b.wg.Wait()
}
