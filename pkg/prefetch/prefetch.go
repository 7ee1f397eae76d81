// Package prefetch loads the next comparison pair in the background while the
// current one is on screen.
//
// A single goroutine picks a pair and reads both images, then parks the
// finished result in a one-slot channel. The consumer takes either that whole
// result or loads a pair itself; it never sees half a pair. The prefetcher
// only reads: it picks pairs but never records comparisons.
package prefetch

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/pairing"
	"github.com/pixelsort/imgrank/pkg/security"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("prefetcher closed")

const (
	// DefaultCacheTTL is how long loaded images stay cached.
	DefaultCacheTTL = 5 * time.Minute
	// defaultRetryDelay paces the background loop after a failed load.
	defaultRetryDelay = 500 * time.Millisecond
)

// Picker hands out comparison pairs.
type Picker interface {
	PickPair(ctx context.Context) (*pairing.Pair, error)
}

// Loaded is an image read from disk with its decoded header.
type Loaded struct {
	Image  *db.Image
	Data   []byte
	Config image.Config
	Format string
}

// Result is a fully loaded pair.
type Result struct {
	Pair  pairing.Pair
	Left  *Loaded
	Right *Loaded
}

type pending struct {
	res *Result
	err error
}

// Options configure a Prefetcher.
type Options struct {
	Validator  *security.Validator
	CacheTTL   time.Duration
	RetryDelay time.Duration
}

// Prefetcher keeps one loaded pair ready.
type Prefetcher struct {
	picker     Picker
	validator  *security.Validator
	cache      *cache.Cache
	retryDelay time.Duration

	ready  chan pending
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup

	hits   atomic.Int64
	misses atomic.Int64
}

// New starts a prefetcher over picker. Call Close to stop it.
func New(picker Picker, opts Options) *Prefetcher {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	retry := opts.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}
	validator := opts.Validator
	if validator == nil {
		validator = security.NewValidator(0, 0, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Prefetcher{
		picker:     picker,
		validator:  validator,
		cache:      cache.New(ttl, ttl*2),
		retryDelay: retry,
		ready:      make(chan pending, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	p.wg.Add(1)
	go p.run()

	slog.Info("prefetch_started", "cache_ttl", ttl.String())
	return p
}

func (p *Prefetcher) run() {
	defer p.wg.Done()

	for {
		res, err := p.loadPair(p.ctx)
		if p.ctx.Err() != nil {
			if res != nil {
				slog.Debug("prefetch_result_discarded", "left_id", res.Pair.Left.ID, "right_id", res.Pair.Right.ID)
			}
			return
		}

		select {
		case p.ready <- pending{res: res, err: err}:
		case <-p.ctx.Done():
			return
		}

		if err != nil {
			select {
			case <-time.After(p.retryDelay):
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Next returns the prefetched pair if one is ready, otherwise it loads a pair
// synchronously. A failed background load is not reused: the pair is loaded
// again in the foreground so callers see current state.
func (p *Prefetcher) Next(ctx context.Context) (*Result, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	select {
	case item := <-p.ready:
		if item.err == nil {
			p.hits.Add(1)
			slog.Debug("prefetch_hit", "left_id", item.res.Pair.Left.ID, "right_id", item.res.Pair.Right.ID)
			return item.res, nil
		}
	default:
	}

	p.misses.Add(1)
	slog.Debug("prefetch_miss")
	return p.loadPair(ctx)
}

// Close stops the background goroutine without waiting for it. Results that
// arrive afterwards are dropped.
func (p *Prefetcher) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.cancel()
	p.cache.Flush()
	slog.Info("prefetch_closed", "hits", p.hits.Load(), "misses", p.misses.Load())
}

// Wait blocks until the background goroutine has exited.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Hits returns how many Next calls were served from the background.
func (p *Prefetcher) Hits() int64 {
	return p.hits.Load()
}

// Misses returns how many Next calls loaded synchronously.
func (p *Prefetcher) Misses() int64 {
	return p.misses.Load()
}

func (p *Prefetcher) loadPair(ctx context.Context) (*Result, error) {
	pair, err := p.picker.PickPair(ctx)
	if err != nil {
		return nil, err
	}

	left, err := p.Load(pair.Left)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	right, err := p.Load(pair.Right)
	if err != nil {
		return nil, err
	}

	return &Result{Pair: *pair, Left: left, Right: right}, nil
}

// Load reads an image and its header, using the cache when possible.
func (p *Prefetcher) Load(img *db.Image) (*Loaded, error) {
	if v, ok := p.cache.Get(img.Filepath); ok {
		cached := v.(*Loaded)
		return &Loaded{Image: img, Data: cached.Data, Config: cached.Config, Format: cached.Format}, nil
	}

	info, err := os.Stat(img.Filepath)
	if err != nil {
		slog.Warn("prefetch_stat_failed", "filepath", img.Filepath, "error", err)
		return nil, errors.Wrap(err, "failed to stat image")
	}
	if err := p.validator.ValidateFileSize(info.Size()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(img.Filepath)
	if err != nil {
		slog.Warn("prefetch_read_failed", "filepath", img.Filepath, "error", err)
		return nil, errors.Wrap(err, "failed to read image")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		slog.Warn("prefetch_decode_failed", "filepath", img.Filepath, "error", err)
		return nil, errors.Wrap(err, "failed to decode image header")
	}
	if err := p.validator.ValidatePixelRatio(int64(len(data)), cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	loaded := &Loaded{Image: img, Data: data, Config: cfg, Format: format}
	p.cache.SetDefault(img.Filepath, loaded)

	slog.Debug("prefetch_image_loaded", "image_id", img.ID, "format", format, "width", cfg.Width, "height", cfg.Height)
	return loaded, nil
}
