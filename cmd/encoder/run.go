package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/config"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/encoder"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/gateway"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/ingest"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/queue"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/sink"
)

type runFlags struct {
	engine      string
	packets     int
	switchEvery int
	realtime    bool
	development bool
}

func newRunCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the encoding stage until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, flags)
		},
	}
	cmd.Flags().StringVar(&flags.engine, "engine", "", "Engine name, overrides ENCODER_ENGINE")
	cmd.Flags().IntVar(&flags.packets, "packets", 0, "Stop the tone source after this many packets (0 = run until interrupted)")
	cmd.Flags().IntVar(&flags.switchEvery, "switch-every", 0, "Alternate the tone format every N packets")
	cmd.Flags().BoolVar(&flags.realtime, "realtime", true, "Pace the input at wall-clock speed")
	cmd.Flags().BoolVar(&flags.development, "dev", false, "Human-readable development logging")
	return cmd
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, flags runFlags) (err error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.engine != "" {
		cfg.Engine = flags.engine
	}

	logger, err := newLogger(flags.development)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	cd, ok := codec.Default.Lookup(cfg.Engine)
	if !ok {
		// The stage degrades gracefully, but a typo here is better caught early.
		logger.Warn("engine not registered, stage will drop all input",
			zap.String("engine", cfg.Engine), zap.Strings("available", codec.Default.Names()))
	}

	logger.Info("encoder starting",
		zap.String("engine", cfg.Engine),
		zap.Uint8("payloadType", cfg.PayloadType),
		zap.Bool("adaptFormat", cfg.AdaptFormat),
		zap.Int("queueSize", cfg.QueueSize),
		zap.String("rtp", cfg.RTPAddr),
		zap.String("frameFile", cfg.FrameFile),
		zap.String("gateway", cfg.GatewayAddr),
	)

	var (
		sinks   sink.Multi
		closers []func() error
		servers []*http.Server
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	if cfg.RTPAddr != "" {
		if cd == nil {
			return fmt.Errorf("RTP output needs a registered engine, %q is not", cfg.Engine)
		}
		conn, err := sink.DialRTP(cfg.RTPAddr)
		if err != nil {
			return err
		}
		closers = append(closers, conn.Close)
		rtpSink, err := sink.NewRTP(conn, cd.ID(), media.PayloadType(cfg.PayloadType), sink.RTPOptions{SampleRate: cfg.SampleRate, Channels: cfg.Channels})
		if err != nil {
			return err
		}
		logger.Info("rtp output", zap.String("addr", cfg.RTPAddr), zap.Uint32("ssrc", rtpSink.SSRC()))
		sinks = append(sinks, rtpSink)
	}

	if cfg.FrameFile != "" {
		f, err := os.Create(cfg.FrameFile)
		if err != nil {
			return fmt.Errorf("create frame file: %w", err)
		}
		closers = append(closers, f.Close)
		sinks = append(sinks, sink.NewFrameWriter(f))
	}

	var gw *gateway.Gateway
	if cfg.GatewayAddr != "" {
		if cd == nil || cd.ID() != codec.IDOpus {
			return fmt.Errorf("the WebRTC gateway carries Opus only, engine %q does not produce it", cfg.Engine)
		}
		gw, err = gateway.New(gateway.Config{
			PayloadType:    media.PayloadType(cfg.PayloadType),
			Channels:       cfg.Channels,
			SampleRate:     cfg.SampleRate,
			STUNServers:    cfg.STUNServers,
			MaxSessions:    cfg.MaxSessions,
			AllowedOrigins: cfg.AllowedOrigins,
		}, logger)
		if err != nil {
			return fmt.Errorf("create gateway: %w", err)
		}
		sinks = append(sinks, gw)
		servers = append(servers, &http.Server{
			Addr:         cfg.GatewayAddr,
			Handler:      gw.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 20 * time.Second,
		})
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	if len(sinks) == 0 {
		logger.Warn("no output configured, encoded units are discarded")
	}

	q := queue.New(cfg.QueueSize)
	layout := media.LayoutForChannels(cfg.Channels)
	stage := encoder.New(sinks, logger, encoder.Options{
		Engine:      cfg.Engine,
		PayloadType: media.PayloadType(cfg.PayloadType),
		Params: encoder.Params{
			SampleFormat:  media.SampleFormatS16,
			BitRate:       cfg.BitRate,
			SampleRate:    cfg.SampleRate,
			ChannelLayout: layout,
			FrameSizeMs:   cfg.FrameMs,
		},
		AdaptToInput: cfg.AdaptFormat,
		PollTimeout:  cfg.PollTimeout,
	})
	stage.Attach(q)

	format := media.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels, SampleFormat: media.SampleFormatS16}
	src, finite, err := newSource(ctx, cfg, flags, q, format, logger)
	if err != nil {
		return err
	}
	if gw != nil {
		gw.ReportIngest(src)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if err := stage.Start(); err != nil {
		return err
	}

	g.Go(func() error {
		<-ctx.Done()
		src.Stop()
		stage.Close()
		if gw != nil {
			gw.Shutdown()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		var err error
		for _, srv := range servers {
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}
		return err
	})

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if finite {
			waitDrained(ctx, q)
			logger.Info("input exhausted", zap.Any("stats", stage.Stats()), zap.Any("ingest", src.Status()))
			cancel()
		}
		return nil
	})

	return g.Wait()
}

// newSource picks the ffmpeg URL ingest when INGEST_URL is set and the tone
// generator otherwise. finite reports whether the source ends on its own.
func newSource(ctx context.Context, cfg *config.Config, flags runFlags, q *queue.Queue, format media.Format, logger *zap.Logger) (ingest.Source, bool, error) {
	if cfg.IngestURL != "" {
		if err := ingest.ValidateURL(ctx, cfg.IngestURL); err != nil {
			return nil, false, fmt.Errorf("ingest url: %w", err)
		}
		return ingest.NewFFmpegURLSource(cfg.IngestURL, q, ingest.URLOptions{
			Format:   format,
			FrameMs:  cfg.FrameMs,
			Realtime: flags.realtime,
		}, logger), true, nil
	}

	formats := []media.Format{format}
	if flags.switchEvery > 0 {
		alt := media.Format{SampleRate: 16000, Channels: 1, SampleFormat: media.SampleFormatS16}
		if alt == format {
			alt = media.Format{SampleRate: 48000, Channels: 2, SampleFormat: media.SampleFormatS16}
		}
		formats = append(formats, alt)
	}
	return ingest.NewToneSource(q, ingest.ToneOptions{
		Formats:     formats,
		SwitchEvery: flags.switchEvery,
		FrameMs:     cfg.FrameMs,
		Packets:     flags.packets,
		Realtime:    flags.realtime,
	}, logger), flags.packets > 0, nil
}

// waitDrained blocks until the stage has taken every queued packet.
func waitDrained(ctx context.Context, q *queue.Queue) {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for q.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
