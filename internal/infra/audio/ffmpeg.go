package audio

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ffmpegArgs builds the command line that decodes url into raw s16le PCM on stdout.
func ffmpegArgs(cfg Config, url string) []string {
	args := strings.Fields(cfg.BeforeOptions)
	args = append(args, "-i", url)
	args = append(args, strings.Fields(cfg.Options)...)
	args = append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	return args
}

// ffmpegSource opens url through an ffmpeg subprocess.
func ffmpegSource(cfg Config) Source {
	return func(ctx context.Context, url string) (io.ReadCloser, error) {
		cmd := exec.CommandContext(ctx, cfg.FFmpegPath, ffmpegArgs(cfg, url)...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, errors.Wrap(err, "stdout pipe")
		}
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrapf(err, "failed to start %s", cfg.FFmpegPath)
		}
		zlog.Debug().Msgf("audio: ffmpeg started: pid=%d", cmd.Process.Pid)
		return &processReader{ReadCloser: stdout, cmd: cmd}, nil
	}
}

// processReader reaps the process on Close. A process still running is killed;
// the exit status is reported only when the output ended on its own.
type processReader struct {
	io.ReadCloser
	cmd *exec.Cmd
	eof bool
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.ReadCloser.Read(b)
	if errors.Is(err, io.EOF) {
		p.eof = true
	}
	return n, err
}

func (p *processReader) Close() error {
	if !p.eof {
		_ = p.ReadCloser.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
		return nil
	}
	if err := p.cmd.Wait(); err != nil {
		return errors.Wrapf(err, "%s exited", p.cmd.Path)
	}
	return nil
}
