package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the bridge lifecycle state.
type State int32

const (
	// StateStopped means no analyzer process exists.
	StateStopped State = iota
	// StateStarting means the process is spawning or the version handshake
	// is in progress.
	StateStarting
	// StateRunning means the analyzer is serving requests.
	StateRunning
	// StateStopping means a deliberate shutdown is in progress.
	StateStopping
	// StateCrashed means the process exited unexpectedly. The bridge fails
	// all pending work and auto-transitions to StateStopped; an explicit
	// Restart is required afterwards.
	StateCrashed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Config configures the request bridge.
type Config struct {
	// Command is the analyzer executable (typically "pike").
	Command string

	// Args are command-line arguments (typically the analyzer script).
	Args []string

	// Env are additional environment variables for the process.
	Env map[string]string

	// WorkDir is the process working directory.
	WorkDir string

	// RequestTimeout is the default per-request budget (default: 15s).
	RequestTimeout time.Duration

	// StopGrace is how long Stop waits for a clean exit before killing
	// the process (default: 2s).
	StopGrace time.Duration

	// CacheSize bounds the result cache entry count (default: 256).
	CacheSize int

	// Denylist holds filename patterns known to crash the analyzer.
	Denylist []string

	// RestartAfterTimeouts is the consecutive-timeout count at which the
	// bridge logs a restart recommendation (default: 3). The bridge never
	// restarts itself on timeouts; that policy belongs to the caller.
	RestartAfterTimeouts int
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.StopGrace == 0 {
		c.StopGrace = 2 * time.Second
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	if c.RestartAfterTimeouts == 0 {
		c.RestartAfterTimeouts = 3
	}
}

// Health is a best-effort status snapshot. Obtaining one never fails.
type Health struct {
	Running             bool
	State               string
	PID                 int
	SessionID           string
	Uptime              time.Duration
	PendingRequests     int
	CachedResults       int
	ConsecutiveTimeouts int
	LastError           string
}

// Call describes one request to the analyzer.
type Call struct {
	// Method is the JSON-RPC method name.
	Method string

	// Params is the request payload, serialized as-is.
	Params any

	// Timeout overrides the configured default when non-zero.
	Timeout time.Duration

	// Fingerprint is the dedup/cache key over the request-relevant inputs.
	// When empty the call is neither deduplicated nor cached.
	Fingerprint string

	// Cacheable enables temporal result caching in addition to in-flight
	// dedup. Only meaningful with a Fingerprint.
	Cacheable bool

	// Filename, when known, is checked against the denylist and used to
	// index cache entries for file-level invalidation.
	Filename string
}

// processHandle is the slice of Process the bridge drives. It exists so
// tests can substitute a scripted analyzer.
type processHandle interface {
	Start(ctx context.Context) error
	WriteLine(line string) error
	Lines() <-chan string
	StderrLines() <-chan string
	Exit() <-chan ExitStatus
	Running() bool
	PID() int
	Uptime() time.Duration
	Stop(grace time.Duration) error
}

// pendingRequest is the bookkeeping record for one outstanding round trip.
type pendingRequest struct {
	id     int64
	method string
	start  time.Time
	ch     chan rpcOutcome // buffered 1; the dispatcher never blocks on it
}

type rpcOutcome struct {
	resp *response
	err  error
}

// Bridge turns the analyzer's raw line stream into a correlated
// request/response API with per-request timeouts, in-flight dedup, result
// caching, and crash recovery.
//
// Thread safety: Bridge is safe for concurrent use. Requests from many
// callers are interleaved onto the single stdin pipe one full line at a
// time; responses may arrive in any order and are matched to callers by
// id, never by send order.
type Bridge struct {
	config Config
	logger *zap.Logger

	state atomic.Int32

	mu        sync.Mutex // guards proc, ready, sessionID, lastErr
	proc      processHandle
	ready     chan struct{} // closed when Starting resolves either way
	sessionID string
	lastErr   error

	// spawn creates the process handle; replaced in tests.
	spawn func() processHandle

	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]*pendingRequest

	flight singleflight.Group
	cache  Cache

	// fileKeys indexes cache keys by filename so cross-file invalidation
	// can evict every entry computed from a given file.
	fileKeysMu sync.Mutex
	fileKeys   map[string]map[string]struct{}

	denylist *Denylist

	consecutiveTimeouts atomic.Int32
}

// New creates a bridge (not yet started).
func New(config Config, logger *zap.Logger) *Bridge {
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := NewLRUCache(config.CacheSize)
	if err != nil {
		// Only reachable with a non-positive capacity; fall back to the
		// default bound.
		cache, _ = NewLRUCache(256)
	}

	b := &Bridge{
		config:   config,
		logger:   logger,
		pending:  make(map[int64]*pendingRequest),
		cache:    cache,
		fileKeys: make(map[string]map[string]struct{}),
		denylist: NewDenylist(config.Denylist),
	}
	b.state.Store(int32(StateStopped))
	b.spawn = func() processHandle {
		return NewProcess(ProcessConfig{
			Command: config.Command,
			Args:    config.Args,
			Env:     config.Env,
			WorkDir: config.WorkDir,
		}, logger.Named("process"))
	}
	return b
}

// Start spawns the analyzer and performs the version handshake. Callers
// that issue requests while the handshake is in progress are held until it
// resolves rather than being rejected.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if State(b.state.Load()) != StateStopped {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.state.Store(int32(StateStarting))

	proc := b.spawn()
	if err := proc.Start(ctx); err != nil {
		b.state.Store(int32(StateStopped))
		b.lastErr = err
		b.mu.Unlock()
		return err
	}

	b.proc = proc
	b.sessionID = uuid.NewString()
	ready := make(chan struct{})
	b.ready = ready
	b.mu.Unlock()

	go b.dispatch(proc)

	// Version probe: confirms the analyzer is alive and speaking the
	// protocol before any caller's request is accepted.
	raw, err := b.roundTrip(ctx, proc, "version", nil, b.config.RequestTimeout)
	if err != nil {
		_ = proc.Stop(b.config.StopGrace)
		b.mu.Lock()
		b.proc = nil
		b.lastErr = err
		b.state.Store(int32(StateStopped))
		b.mu.Unlock()
		close(ready)
		return fmt.Errorf("analyzer handshake: %w", err)
	}

	var info VersionInfo
	_ = json.Unmarshal(raw, &info)

	b.consecutiveTimeouts.Store(0)
	b.state.Store(int32(StateRunning))
	close(ready)

	b.logger.Info("analyzer ready",
		zap.String("version", info.Version),
		zap.Int("pid", proc.PID()),
		zap.String("session", b.SessionID()))

	return nil
}

// dispatch owns the process's output for one lifetime: it correlates
// response lines with pending requests, forwards stderr to the logger,
// and reacts to process exit. Exactly one dispatch goroutine runs per
// started process.
func (b *Bridge) dispatch(proc processHandle) {
	lines := proc.Lines()
	stderr := proc.StderrLines()
	exit := proc.Exit()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			b.handleLine(line)
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			b.logger.Debug("analyzer stderr", zap.String("line", line))
		case status := <-exit:
			b.handleExit(status)
			return
		}
	}
}

// handleLine routes one response line to its waiting caller. A line whose
// id matches nothing is a late response for a request that already timed
// out; ids are never reused within a process lifetime, so it can be
// discarded without risk of satisfying the wrong caller.
func (b *Bridge) handleLine(line string) {
	var resp response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		b.logger.Warn("undecodable line from analyzer",
			zap.Error(err), zap.Int("length", len(line)))
		return
	}

	b.pendingMu.Lock()
	p, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
	}
	b.pendingMu.Unlock()

	if !ok {
		b.logger.Debug("orphan response discarded", zap.Int64("id", resp.ID))
		return
	}

	p.ch <- rpcOutcome{resp: &resp}
}

// handleExit reacts to process termination. A deliberate stop has already
// moved the state to Stopping; anything else is a crash, which fails every
// outstanding request simultaneously and invalidates all cached results
// (the next analyzer starts with nothing compiled).
func (b *Bridge) handleExit(status ExitStatus) {
	b.mu.Lock()
	st := State(b.state.Load())
	deliberate := st == StateStopping || st == StateStopped
	if !deliberate {
		b.state.Store(int32(StateCrashed))
		b.lastErr = fmt.Errorf("%w: exit code %d %s", ErrCrashed, status.Code, status.Signal)
		b.proc = nil
	}
	b.mu.Unlock()

	if deliberate {
		b.failAllPending(ErrShutdown)
		return
	}

	b.logger.Error("analyzer crashed",
		zap.Int("code", status.Code),
		zap.String("signal", status.Signal),
		zap.Error(status.Err))

	b.failAllPending(ErrCrashed)
	b.clearCache()
	b.state.Store(int32(StateStopped))
}

// failAllPending rejects every outstanding request with err. This applies
// to all of them, not just the most recent.
func (b *Bridge) failAllPending(err error) {
	b.pendingMu.Lock()
	pending := b.pending
	b.pending = make(map[int64]*pendingRequest)
	b.pendingMu.Unlock()

	for _, p := range pending {
		p.ch <- rpcOutcome{err: fmt.Errorf("%s: %w", p.method, err)}
	}
}

// removePending drops one entry, if still present.
func (b *Bridge) removePending(id int64) {
	b.pendingMu.Lock()
	delete(b.pending, id)
	b.pendingMu.Unlock()
}

// roundTrip performs one uncached, undeduplicated request against proc.
func (b *Bridge) roundTrip(ctx context.Context, proc processHandle, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := b.nextID.Add(1)
	p := &pendingRequest{
		id:     id,
		method: method,
		start:  time.Now(),
		ch:     make(chan rpcOutcome, 1),
	}

	b.pendingMu.Lock()
	b.pending[id] = p
	b.pendingMu.Unlock()

	line, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		b.removePending(id)
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if err := proc.WriteLine(string(line)); err != nil {
		b.removePending(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		b.removePending(id)
		return nil, ctx.Err()

	case <-timer.C:
		b.removePending(id)
		n := b.consecutiveTimeouts.Add(1)
		b.logger.Warn("analyzer request timed out",
			zap.String("method", method),
			zap.Duration("timeout", timeout),
			zap.Int32("consecutive", n))
		if int(n) >= b.config.RestartAfterTimeouts {
			b.logger.Error("consecutive timeout budget exceeded; restart recommended",
				zap.Int32("consecutive", n))
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, method, timeout)

	case out := <-p.ch:
		if out.err != nil {
			return nil, out.err
		}
		b.consecutiveTimeouts.Store(0)
		if out.resp.Error != nil {
			return nil, out.resp.Error
		}
		b.logger.Debug("analyzer request completed",
			zap.String("method", method),
			zap.Duration("latency", time.Since(p.start)))
		return out.resp.Result, nil
	}
}

// Send issues one request. Identical concurrent requests (same
// fingerprint) share a single subprocess round trip, and cacheable
// requests whose fingerprint was seen before skip the subprocess entirely.
// Dedup and cache are consulted in that order before any line is written.
func (b *Bridge) Send(ctx context.Context, call Call) (json.RawMessage, error) {
	switch State(b.state.Load()) {
	case StateRunning:
	case StateStarting:
		// Requests racing the handshake are held, not dropped.
		b.mu.Lock()
		ready := b.ready
		b.mu.Unlock()
		if ready != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ready:
			}
		}
		if State(b.state.Load()) != StateRunning {
			return nil, ErrNotRunning
		}
	default:
		return nil, ErrNotRunning
	}

	if call.Filename != "" && b.denylist.Blocked(call.Filename) {
		b.logger.Warn("request skipped: denylisted input",
			zap.String("method", call.Method),
			zap.String("filename", call.Filename))
		return nil, ErrDenylisted
	}

	timeout := call.Timeout
	if timeout == 0 {
		timeout = b.config.RequestTimeout
	}

	if call.Fingerprint == "" {
		proc := b.currentProc()
		if proc == nil {
			return nil, ErrNotRunning
		}
		return b.roundTrip(ctx, proc, call.Method, call.Params, timeout)
	}

	key := call.Method + ":" + call.Fingerprint

	v, err, shared := b.flight.Do(key, func() (any, error) {
		if call.Cacheable {
			if cached, ok := b.cache.Get(key); ok {
				b.logger.Debug("result cache hit", zap.String("method", call.Method))
				return cached, nil
			}
		}

		proc := b.currentProc()
		if proc == nil {
			return nil, ErrNotRunning
		}

		raw, err := b.roundTrip(ctx, proc, call.Method, call.Params, timeout)
		if err != nil {
			return nil, err
		}

		if call.Cacheable {
			b.cache.Put(key, raw)
			if call.Filename != "" {
				b.indexFileKey(call.Filename, key)
			}
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger.Debug("request coalesced with identical in-flight call",
			zap.String("method", call.Method))
	}
	return v.(json.RawMessage), nil
}

// currentProc returns the live process handle, or nil.
func (b *Bridge) currentProc() processHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.proc
}

// indexFileKey records that key was computed from filename.
func (b *Bridge) indexFileKey(filename, key string) {
	b.fileKeysMu.Lock()
	defer b.fileKeysMu.Unlock()
	keys, ok := b.fileKeys[filename]
	if !ok {
		keys = make(map[string]struct{})
		b.fileKeys[filename] = keys
	}
	keys[key] = struct{}{}
}

// EvictFile drops every cached result computed from the given file. Used
// by the cross-file invalidation layer when a dependency changes: the
// file's own text did not change, so its fingerprints still match, but the
// results were computed against a dependency that is now stale.
func (b *Bridge) EvictFile(filename string) {
	b.fileKeysMu.Lock()
	keys := b.fileKeys[filename]
	delete(b.fileKeys, filename)
	b.fileKeysMu.Unlock()

	for key := range keys {
		b.cache.Evict(key)
	}
	if len(keys) > 0 {
		b.logger.Debug("evicted cached results for file",
			zap.String("filename", filename),
			zap.Int("entries", len(keys)))
	}
}

// clearCache drops every cached result and the file index.
func (b *Bridge) clearCache() {
	b.cache.Clear()
	b.fileKeysMu.Lock()
	b.fileKeys = make(map[string]map[string]struct{})
	b.fileKeysMu.Unlock()
}

// Stop shuts the bridge down deliberately. Pending requests fail with
// ErrShutdown. Idempotent.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	st := State(b.state.Load())
	if st == StateStopped || st == StateStopping {
		b.mu.Unlock()
		return nil
	}
	b.state.Store(int32(StateStopping))
	proc := b.proc
	b.proc = nil
	b.mu.Unlock()

	var err error
	if proc != nil {
		err = proc.Stop(b.config.StopGrace)
	}
	b.failAllPending(ErrShutdown)
	b.state.Store(int32(StateStopped))
	return err
}

// Restart stops the analyzer if running, clears every cache tied to
// subprocess-side state, and starts fresh. The new process has nothing
// compiled, so no cached result may survive it.
func (b *Bridge) Restart(ctx context.Context) error {
	if err := b.Stop(); err != nil {
		b.logger.Warn("stop before restart", zap.Error(err))
	}
	b.clearCache()
	b.consecutiveTimeouts.Store(0)
	return b.Start(ctx)
}

// IsRunning reports whether the bridge is serving requests.
func (b *Bridge) IsRunning() bool {
	return State(b.state.Load()) == StateRunning
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// SessionID returns the id of the current analyzer session. It changes on
// every (re)start.
func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// ConsecutiveTimeouts returns how many requests in a row have timed out
// since the last successful response. Callers may use it to decide on a
// restart.
func (b *Bridge) ConsecutiveTimeouts() int {
	return int(b.consecutiveTimeouts.Load())
}

// HealthCheck returns a best-effort status snapshot. It never fails,
// degrading to Running: false when process state is unknown.
func (b *Bridge) HealthCheck() Health {
	h := Health{
		State:               b.State().String(),
		ConsecutiveTimeouts: b.ConsecutiveTimeouts(),
		CachedResults:       b.cache.Len(),
	}

	b.pendingMu.Lock()
	h.PendingRequests = len(b.pending)
	b.pendingMu.Unlock()

	b.mu.Lock()
	proc := b.proc
	h.SessionID = b.sessionID
	if b.lastErr != nil {
		h.LastError = b.lastErr.Error()
	}
	b.mu.Unlock()

	if proc != nil && proc.Running() {
		h.Running = true
		h.PID = proc.PID()
		h.Uptime = proc.Uptime()
	}
	return h
}

// pendingCount reports the number of outstanding requests.
func (b *Bridge) pendingCount() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}
