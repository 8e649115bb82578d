package codec

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/jonas747/ogg"
	"go.uber.org/multierr"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// FFmpegName is the registry name of the subprocess Opus engine.
const FFmpegName = "ffmpeg-opus"

func init() {
	Default.Register(FFmpeg("ffmpeg"))
}

type ffmpegCodec struct {
	path string
}

// FFmpeg returns an engine that pipes raw s16le into an ffmpeg process
// encoding with libopus and reads the Opus packets back out of the Ogg
// stream. ffmpeg buffers internally, so output trails input and the tail only
// appears after end of stream.
func FFmpeg(path string) Codec { return ffmpegCodec{path: path} }

func (ffmpegCodec) Name() string     { return FFmpegName }
func (ffmpegCodec) LongName() string { return "libopus via ffmpeg subprocess" }
func (ffmpegCodec) ID() ID           { return IDOpus }

func (ffmpegCodec) NewConfig() (*Config, error) {
	return Opus().NewConfig()
}

func (c ffmpegCodec) Open(cfg *Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SampleFormat != media.SampleFormatS16 {
		return nil, fmt.Errorf("%w: %s needs s16 input, got %s", ErrInvalidConfig, FFmpegName, cfg.SampleFormat)
	}
	bin, err := exec.LookPath(c.path)
	if err != nil {
		return nil, fmt.Errorf("locate ffmpeg: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-application", "audio",
		"-frame_duration", strconv.Itoa(cfg.FrameSizeMs),
	}
	if cfg.BitRate > 0 {
		args = append(args, "-b:a", strconv.Itoa(cfg.BitRate))
	}
	args = append(args, "-f", "ogg", "-flush_packets", "1", "pipe:1")

	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	e := &ffmpegEngine{
		cmd:          cmd,
		stdin:        stdin,
		frameSamples: cfg.FrameSamples(),
		sampleBytes:  cfg.Channels * cfg.SampleFormat.BytesPerSample(),
		format:       cfg.SampleFormat,
		channels:     cfg.Channels,
	}
	e.cond = sync.NewCond(&e.mu)
	go e.readLoop(stdout)
	return e, nil
}

type ffmpegEngine struct {
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	frameSamples int
	sampleBytes  int
	format       media.SampleFormat
	channels     int

	// written only by the caller's goroutine
	stdinClosed bool
	closed      bool

	mu      sync.Mutex
	cond    *sync.Cond
	units   []media.Unit
	nextPTS int64
	ptsSet  bool
	done    bool
	readErr error
}

func (e *ffmpegEngine) FrameSize() int { return e.frameSamples }

func (e *ffmpegEngine) SendFrame(fr *Frame) error {
	if e.closed {
		return errEngineClosed
	}
	if e.stdinClosed {
		return ErrEOF
	}
	if fr == nil {
		e.mu.Lock()
		e.stdinClosed = true
		e.mu.Unlock()
		return e.stdin.Close()
	}
	if fr.Format != e.format {
		return fmt.Errorf("%w: sample format %s, want %s", ErrFrameMismatch, fr.Format, e.format)
	}
	if fr.Layout != 0 && fr.Layout.Channels() != e.channels {
		return fmt.Errorf("%w: layout %s, want %d channels", ErrFrameMismatch, fr.Layout, e.channels)
	}
	n := fr.NbSamples * e.sampleBytes
	if n > len(fr.Data) {
		return fmt.Errorf("%w: short frame", ErrFrameMismatch)
	}

	e.mu.Lock()
	if !e.ptsSet {
		e.nextPTS = fr.PTS
		e.ptsSet = true
	}
	e.mu.Unlock()

	if _, err := e.stdin.Write(fr.Data[:n]); err != nil {
		return fmt.Errorf("write to ffmpeg: %w", err)
	}
	return nil
}

// ReceiveUnit does not block while input is still open. After end of stream
// it waits for ffmpeg to hand out the remaining packets.
func (e *ffmpegEngine) ReceiveUnit() (media.Unit, error) {
	if e.closed {
		return media.Unit{}, errEngineClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.units) == 0 && !e.done && e.stdinClosed {
		e.cond.Wait()
	}
	if len(e.units) > 0 {
		u := e.units[0]
		e.units[0] = media.Unit{}
		e.units = e.units[1:]
		return u, nil
	}
	if e.done {
		if e.readErr != nil {
			return media.Unit{}, e.readErr
		}
		return media.Unit{}, ErrEOF
	}
	return media.Unit{}, ErrAgain
}

func (e *ffmpegEngine) readLoop(stdout io.Reader) {
	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(stdout))

	// The first two Ogg packets are the OpusHead and OpusTags headers.
	skip := 2
	for {
		packet, _, err := decoder.Decode()
		if err != nil {
			e.mu.Lock()
			e.done = true
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				e.readErr = fmt.Errorf("read ogg stream: %w", err)
			}
			e.cond.Broadcast()
			e.mu.Unlock()
			return
		}
		if skip > 0 {
			skip--
			continue
		}

		e.mu.Lock()
		e.units = append(e.units, media.Unit{
			Data:     append([]byte(nil), packet...),
			PTS:      e.nextPTS,
			Duration: e.frameSamples,
		})
		e.nextPTS += int64(e.frameSamples)
		e.cond.Broadcast()
		e.mu.Unlock()
	}
}

// Close stops ffmpeg. A process that has not finished draining is killed.
func (e *ffmpegEngine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if !e.stdinClosed {
		e.stdinClosed = true
		err = multierr.Append(err, e.stdin.Close())
	}

	e.mu.Lock()
	finished := e.done
	e.mu.Unlock()
	if !finished && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	if waitErr := e.cmd.Wait(); finished {
		err = multierr.Append(err, waitErr)
	}
	return err
}
