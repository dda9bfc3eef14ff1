package rsihost

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// LifecycleState is the coarse state machine every exported entry point
// checks before acting.
type LifecycleState int

const (
	Uninitialized LifecycleState = iota
	Initialized
	Running
)

func (s LifecycleState) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initialized:
		return "Initialized"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// instance is the process-wide engine singleton. Exactly one engine may
// exist per process, armed lazily on the first Init call and guarded by a
// mutex for the state transitions themselves (the hot path inside the
// running engine uses its own stateStore lock, not this one).
type instance struct {
	mu         sync.Mutex
	state      LifecycleState
	engineID   string
	eng        *engine
}

var (
	singleton     *instance
	singletonOnce sync.Once
)

// get returns the package-wide instance, constructing it on first use: a
// single lazily-armed resource rather than a constructor callers must
// thread through every call site.
func get() *instance {
	singletonOnce.Do(func() {
		singleton = &instance{state: Uninitialized}
	})
	return singleton
}

// Init prepares the engine with the given configuration but does not bind
// a socket or start receiving. An empty LocalIP or zero LocalPort is
// replaced with its default; every other field is used as given (a zero
// TimeoutMs disables the watchdog). Returns AlreadyRunning if
// called while Initialized or Running; callers must Cleanup first.
func Init(cfg Config) error {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state != Uninitialized {
		return AlreadyRunning
	}
	in.engineID = ulid.Make().String()
	in.eng = newEngine(cfg.withDefaults())
	in.eng.broadcaster, in.eng.telemetry, in.eng.tracer = buildSinks(in.eng.cfg, in.engineID)
	in.state = Initialized
	return nil
}

// SetCallbacks installs the callback set the I/O goroutine invokes once
// started. Valid only in Initialized state: the I/O goroutine reads
// e.callbacks without its own lock once running, so replacing it while
// Running would race. Returns InitFailed before Init, AlreadyRunning while
// Running.
func SetCallbacks(cb Callbacks) error {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()

	switch in.state {
	case Uninitialized:
		return InitFailed
	case Running:
		return AlreadyRunning
	}
	in.eng.callbacks = cb
	return nil
}

// SetCartesianCorrection replaces the correction superimposed on every
// outbound response until the next call. Valid only while Running.
func SetCartesianCorrection(c CartesianCorrection) error {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state != Running {
		return NotRunning
	}
	in.eng.state.setCorrection(c)
	return nil
}

// GetCartesianPosition copies out the most recently received Cartesian
// pose. ok is false if no Cartesian fragment has ever been received.
func GetCartesianPosition() (pos CartesianPosition, ok bool) {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == Uninitialized {
		return CartesianPosition{}, false
	}
	pos = in.eng.state.snapshotCartesian()
	return pos, pos.IPOC != 0 || pos.TimestampUs != 0
}

// GetJointPosition copies out the most recently received joint pose. ok is
// false if no AIPos fragment has ever been received.
func GetJointPosition() (pos JointPosition, ok bool) {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == Uninitialized {
		return JointPosition{}, false
	}
	pos = in.eng.state.snapshotJoints()
	return pos, pos.IPOC != 0 || pos.TimestampUs != 0
}

// GetStatistics copies out the current statistics aggregate. Valid in any
// state; returns a zero Statistics (with MinResponseTimeMs at its sentinel)
// before Init.
func GetStatistics() Statistics {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == Uninitialized {
		return Statistics{MinResponseTimeMs: minResponseSentinel}
	}
	return in.eng.state.snapshotStatistics()
}

// Start binds the socket and starts the real-time I/O goroutine. Requires
// Initialized state; returns AlreadyRunning if already Running, InitFailed
// if called before Init. If no optional sink exists at this point (none is
// enabled, or every enabled one failed to construct), it tries once more to
// build them from the config; sinks that already exist are kept as they are.
func Start() error {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()

	switch in.state {
	case Uninitialized:
		return InitFailed
	case Running:
		return AlreadyRunning
	}

	if in.eng.broadcaster == nil && in.eng.telemetry == nil && in.eng.tracer == nil {
		in.eng.broadcaster, in.eng.telemetry, in.eng.tracer = buildSinks(in.eng.cfg, in.engineID)
	}

	if err := in.eng.start(); err != nil {
		return err
	}
	in.state = Running
	return nil
}

// Stop halts the I/O goroutine and releases the socket, returning the
// engine to Initialized state so it can be Started again without a fresh
// Init/ULID. Returns NotRunning if not currently Running. The optional
// sinks stay open across Stop; only Cleanup closes them.
func Stop() error {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state != Running {
		return NotRunning
	}
	in.eng.stop()
	in.state = Initialized
	return nil
}

// Cleanup tears down the engine entirely, returning to Uninitialized. If
// Running, it stops first. After Cleanup, Init must be called again before
// any other exported function will succeed.
func Cleanup() error {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.state == Uninitialized {
		return nil
	}
	if in.state == Running {
		in.eng.stop()
	}
	in.eng.closeSinks()
	in.eng = nil
	in.engineID = ""
	in.state = Uninitialized
	return nil
}

// State reports the current lifecycle state, mainly for diagnostics and
// tests; exported API callers should not need to branch on it in normal
// operation since every function already reports state preconditions via
// its ErrorCode return.
func State() LifecycleState {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// InstanceID returns the ULID assigned at the most recent Init, or the
// empty string before the first Init. Used to correlate engine restarts
// across the event broadcaster and telemetry sink.
func InstanceID() string {
	in := get()
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.engineID
}
