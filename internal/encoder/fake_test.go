package encoder

import (
	"sync"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

const fakeName = "fake"

// fakeCodec produces one unit per frame, echoing the frame's samples. With
// hold set, each unit is held back until the next frame or the flush.
type fakeCodec struct {
	frameSize int
	hold      bool
	configErr error
	openErr   error
	sendErr   error // returned for every frame
	exhausted bool  // report end of stream without a flush


	mu      sync.Mutex
	configs []codec.Config
	opened  int
	closed  int
	flushes int
}

func (c *fakeCodec) Name() string     { return fakeName }
func (c *fakeCodec) LongName() string { return "fake test engine" }
func (c *fakeCodec) ID() codec.ID     { return codec.IDPCMS16LE }

func (c *fakeCodec) NewConfig() (*codec.Config, error) {
	if c.configErr != nil {
		return nil, c.configErr
	}
	return &codec.Config{FrameSizeMs: 20}, nil
}

func (c *fakeCodec) Open(cfg *codec.Config) (codec.Engine, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, *cfg)
	c.opened++
	return &fakeEngine{codec: c, frameSize: c.frameSize}, nil
}

func (c *fakeCodec) flushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

func (c *fakeCodec) counts() (opened, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.closed
}

type fakeEngine struct {
	codec     *fakeCodec
	frameSize int
	held      *media.Unit
	out       []media.Unit
	eof       bool
}

func (e *fakeEngine) FrameSize() int { return e.frameSize }

func (e *fakeEngine) SendFrame(fr *codec.Frame) error {
	if e.eof {
		return codec.ErrEOF
	}
	if fr == nil {
		e.codec.mu.Lock()
		e.codec.flushes++
		e.codec.mu.Unlock()
		if e.held != nil {
			e.out = append(e.out, *e.held)
			e.held = nil
		}
		e.eof = true
		return nil
	}
	if e.codec.sendErr != nil {
		return e.codec.sendErr
	}
	u := media.Unit{
		Data:     append([]byte(nil), fr.Data...),
		PTS:      fr.PTS,
		Duration: fr.NbSamples,
	}
	if !e.codec.hold {
		e.out = append(e.out, u)
		return nil
	}
	if e.held != nil {
		e.out = append(e.out, *e.held)
	}
	e.held = &u
	return nil
}

func (e *fakeEngine) ReceiveUnit() (media.Unit, error) {
	if len(e.out) > 0 {
		u := e.out[0]
		e.out = e.out[1:]
		return u, nil
	}
	if e.eof || e.codec.exhausted {
		return media.Unit{}, codec.ErrEOF
	}
	return media.Unit{}, codec.ErrAgain
}

func (e *fakeEngine) Close() error {
	e.codec.mu.Lock()
	e.codec.closed++
	e.codec.mu.Unlock()
	return nil
}

// collector is a Sink recording every unit.
type collector struct {
	mu    sync.Mutex
	units []media.Unit
	err   error
}

func (c *collector) WriteUnit(u media.Unit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = append(c.units, u)
	return c.err
}

func (c *collector) pts() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.units))
	for i, u := range c.units {
		out[i] = u.PTS
	}
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.units)
}

var (
	stereo48 = media.Format{SampleRate: 48000, Channels: 2, SampleFormat: media.SampleFormatS16}
	mono16   = media.Format{SampleRate: 16000, Channels: 1, SampleFormat: media.SampleFormatS16}
)

func packet(f media.Format, samples int, ts int64) *media.Packet {
	data := make([]byte, samples*f.FrameBytes())
	for i := range data {
		data[i] = byte(int(ts) + i)
	}
	return media.NewPacket(data, f, ts)
}

func registryWith(c codec.Codec) *codec.Registry {
	r := codec.NewRegistry()
	r.Register(c)
	return r
}
