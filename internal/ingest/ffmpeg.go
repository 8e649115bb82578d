package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// FFmpegURLSource ingests audio from a URL using ffmpeg, normalizing it to
// interleaved s16le in the requested format and pushing one packet per
// frame into the queue.
type FFmpegURLSource struct {
	url      string
	q        Pusher
	format   media.Format
	frameMs  int
	maxDur   time.Duration
	realtime bool
	binary   string
	logger   *zap.Logger

	mu        sync.Mutex
	state     string
	lastError string
	cancel    context.CancelFunc

	bytesRead atomic.Int64
	pushed    atomic.Int64
}

// URLOptions tunes an FFmpegURLSource.
type URLOptions struct {
	Format      media.Format // SampleFormat is forced to s16
	FrameMs     int
	MaxDuration time.Duration // 0 means unlimited
	// Realtime paces packets at 1x so file URLs do not overrun the queue.
	Realtime bool
	// Binary overrides the ffmpeg executable.
	Binary string
}

// NewFFmpegURLSource creates a new ffmpeg-based URL ingest source.
func NewFFmpegURLSource(sourceURL string, q Pusher, opts URLOptions, logger *zap.Logger) *FFmpegURLSource {
	opts.Format.SampleFormat = media.SampleFormatS16
	if opts.FrameMs <= 0 {
		opts.FrameMs = 20
	}
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	return &FFmpegURLSource{
		url:      sourceURL,
		q:        q,
		format:   opts.Format,
		frameMs:  opts.FrameMs,
		maxDur:   opts.MaxDuration,
		realtime: opts.Realtime,
		binary:   opts.Binary,
		logger:   logger.With(zap.String("ingestURL", sourceURL)),
		state:    StateStopped,
	}
}

// Start begins ingesting audio. Blocks until the source ends, ctx is cancelled, or Stop is called.
func (f *FFmpegURLSource) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state == StateRunning || f.state == StateStarting {
		f.mu.Unlock()
		return fmt.Errorf("ingest already running")
	}
	f.state = StateStarting
	f.lastError = ""
	f.bytesRead.Store(0)
	f.pushed.Store(0)

	ingestCtx, cancel := context.WithCancel(ctx)
	if f.maxDur > 0 {
		ingestCtx, cancel = context.WithTimeout(ctx, f.maxDur)
	}
	f.cancel = cancel
	f.mu.Unlock()

	defer cancel()

	args := []string{
		"-nostdin",
		"-hide_banner", "-loglevel", "error",
		"-i", f.url,
		"-vn",
		"-ac", strconv.Itoa(f.format.Channels),
		"-ar", strconv.Itoa(f.format.SampleRate),
		"-f", "s16le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ingestCtx, f.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		f.setError(fmt.Sprintf("stdout pipe: %v", err))
		return err
	}

	if err := cmd.Start(); err != nil {
		f.setError(fmt.Sprintf("ffmpeg start: %v", err))
		return err
	}

	f.mu.Lock()
	f.state = StateRunning
	f.mu.Unlock()

	f.logger.Info("ingest started", zap.Stringer("format", f.format))

	readErr := f.readLoop(ingestCtx, stdout)

	// Wait for ffmpeg to exit
	waitErr := cmd.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()

	if ingestCtx.Err() != nil {
		f.state = StateStopped
		f.logger.Info("ingest stopped", zap.Int64("bytesRead", f.bytesRead.Load()))
		return nil
	}

	if err := errors.Join(readErr, waitErr); err != nil {
		f.state = StateError
		f.lastError = err.Error()
		f.logger.Warn("ingest error", zap.Error(err))
		return fmt.Errorf("ingest failed: %w", err)
	}

	f.state = StateStopped
	f.logger.Info("ingest completed (source ended)",
		zap.Int64("bytesRead", f.bytesRead.Load()),
		zap.Int64("packets", f.pushed.Load()))
	return nil
}

func (f *FFmpegURLSource) readLoop(ctx context.Context, r io.Reader) error {
	size := packetBytes(f.format, f.frameMs)
	if size == 0 {
		return fmt.Errorf("invalid ingest format %s", f.format)
	}
	p := newPacer(f.format.SampleRate, f.realtime)
	var ts int64
	lastLog := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		pkt := media.AcquirePacket(f.format, size, ts)
		n, err := io.ReadFull(r, pkt.Data)
		f.bytesRead.Add(int64(n))
		// a short read keeps whole samples only
		if whole := n - n%f.format.FrameBytes(); whole > 0 {
			pkt.Data = pkt.Data[:whole]
			ts += int64(pkt.Samples())
			f.pushed.Add(1)
			f.q.Push(pkt)

			if time.Since(lastLog) >= 5*time.Second {
				f.logger.Info("ingest progress",
					zap.Int64("packets", f.pushed.Load()),
					zap.Int64("bytesRead", f.bytesRead.Load()))
				lastLog = time.Now()
			}
			if p.wait(ctx, ts) != nil {
				return nil
			}
		} else {
			pkt.Release()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
}

// Stop terminates the ingest. Idempotent.
func (f *FFmpegURLSource) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of current ingest state.
func (f *FFmpegURLSource) Status() Status {
	f.mu.Lock()
	state := f.state
	lastErr := f.lastError
	f.mu.Unlock()

	return Status{
		State:         state,
		Source:        f.url,
		Format:        f.format.String(),
		PacketsPushed: f.pushed.Load(),
		BytesRead:     f.bytesRead.Load(),
		LastError:     lastErr,
	}
}

func (f *FFmpegURLSource) setError(msg string) {
	f.mu.Lock()
	f.state = StateError
	f.lastError = msg
	f.mu.Unlock()
}
