// Package dataset performs the single fetch of the round dataset and
// publishes its outcome: a frozen snapshot or an error message.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"runtimeviewer/internal/models"
	"runtimeviewer/internal/storage"
)

const (
	defaultTimeout = 60 * time.Second
	userAgent      = "runtimeviewer"
)

// ErrNotLoaded is returned while the fetch has not completed yet.
var ErrNotLoaded = errors.New("dataset is still loading")

// State is the loader lifecycle.
type State int

const (
	StateLoading State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configure where the dataset comes from.
type Options struct {
	// URL is fetched with a single GET when set.
	URL string
	// Store is read first when set; a successful URL fetch is written back
	// to it if it held no dataset.
	Store   *storage.RoundStorage
	Timeout time.Duration
	Client  *http.Client
	Logger  *zap.Logger
	// OnLoad is called once with the final state, round count and duration.
	OnLoad func(state State, rounds int, elapsed time.Duration)
}

// Loader fetches the dataset once. There are no retries: a failed load stays
// failed for the lifetime of the loader.
type Loader struct {
	opts   Options
	client *http.Client
	logger *zap.Logger

	once sync.Once
	done chan struct{}

	mu       sync.RWMutex
	state    State
	snapshot *Snapshot
	err      error
}

// NewLoader prepares a loader; nothing is fetched until Load or Start.
func NewLoader(opts Options) *Loader {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		client = &http.Client{Transport: transport}
	}
	return &Loader{
		opts:   opts,
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start triggers the fetch in the background on first call. The fetch runs
// under ctx; later calls are no-ops.
func (l *Loader) Start(ctx context.Context) {
	l.once.Do(func() {
		go l.run(ctx)
	})
}

// Load triggers the fetch if needed and waits for its outcome or for ctx to
// end. Every caller observes the same outcome.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	l.Start(ctx)

	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return l.Snapshot()
}

func (l *Loader) run(ctx context.Context) {
	started := time.Now()
	snapshot, err := l.fetch(ctx)

	l.mu.Lock()
	if err != nil {
		l.state = StateFailed
		l.err = err
		l.logger.Error("dataset load failed", zap.Error(err))
	} else {
		l.state = StateLoaded
		l.snapshot = snapshot
		l.logger.Info("dataset loaded",
			zap.Int("rounds", snapshot.Len()),
			zap.String("source", snapshot.Source()),
			zap.Duration("elapsed", time.Since(started)))
	}
	state := l.state
	l.mu.Unlock()

	if l.opts.OnLoad != nil {
		l.opts.OnLoad(state, snapshot.Len(), time.Since(started))
	}
	close(l.done)
}

// Done is closed once the load has finished either way.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// State reports the lifecycle stage and, once failed, the error message.
func (l *Loader) State() (State, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.err != nil {
		return l.state, l.err.Error()
	}
	return l.state, ""
}

// Snapshot returns the published snapshot without blocking.
func (l *Loader) Snapshot() (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch l.state {
	case StateLoaded:
		return l.snapshot, nil
	case StateFailed:
		return nil, l.err
	default:
		return nil, ErrNotLoaded
	}
}

func (l *Loader) fetch(ctx context.Context) (*Snapshot, error) {
	if l.opts.Store == nil && strings.TrimSpace(l.opts.URL) == "" {
		return nil, errors.New("no dataset source configured")
	}

	if l.opts.Store != nil {
		rounds, err := l.opts.Store.Load()
		switch {
		case err == nil:
			l.logger.Debug("loading dataset from file", zap.String("path", l.opts.Store.Path()))
			return NewSnapshot(rounds, l.opts.Store.Path(), time.Now()), nil
		case !errors.Is(err, storage.ErrNoDataset):
			return nil, err
		case l.opts.URL == "":
			return nil, err
		}
		l.logger.Debug("dataset file missing, loading from url", zap.String("path", l.opts.Store.Path()))
	}

	rounds, err := l.fetchURL(ctx)
	if err != nil {
		return nil, err
	}

	if l.opts.Store != nil {
		if err := l.opts.Store.Replace(rounds); err != nil {
			l.logger.Warn("could not cache dataset", zap.Error(err))
		} else {
			l.logger.Debug("cached dataset", zap.String("path", l.opts.Store.Path()))
		}
	}
	return NewSnapshot(rounds, l.opts.URL, time.Now()), nil
}

func (l *Loader) fetchURL(ctx context.Context) ([]models.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build dataset request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.New("dataset request timed out")
		}
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch dataset: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var rounds []models.Round
	if err := json.Unmarshal(body, &rounds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if rounds == nil {
		rounds = []models.Round{}
	}
	return rounds, nil
}
