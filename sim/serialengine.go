package sim

import (
	"context"
	"sync"
	"sync/atomic"
)

// A SerialEngine is an Engine that ticks its tickers one after another, one
// cycle at a time, on the goroutine that calls Run.
type SerialEngine struct {
	HookableBase

	cycle   atomic.Uint64
	tickers []Ticker

	// pauseLock guards isPaused and resume. It is held for the whole of a
	// cycle.
	pauseLock sync.Mutex
	isPaused  bool
	resume    chan struct{}

	singleRunLock sync.Mutex

	simulationEndHandlers []SimulationEndHandler
}

// NewSerialEngine creates a SerialEngine
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)
	return e
}

// RegisterTicker adds a ticker to the engine. Tickers are ticked in the order
// that they are registered.
func (e *SerialEngine) RegisterTicker(t Ticker) {
	e.tickers = append(e.tickers, t)
}

// Run ticks all the registered tickers until a cycle passes without any of
// them making progress. The context is polled before every cycle, and also
// while the engine is paused.
func (e *SerialEngine) Run(ctx context.Context) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		madeProgress, err := e.runOneCycle(ctx)
		if err != nil {
			return err
		}

		if !madeProgress {
			return nil
		}
	}
}

// waitUntilRunnable returns with pauseLock held once the engine is not
// paused, or with an error and without the lock once ctx is done.
func (e *SerialEngine) waitUntilRunnable(ctx context.Context) error {
	for {
		e.pauseLock.Lock()
		if !e.isPaused {
			return nil
		}
		resume := e.resume
		e.pauseLock.Unlock()

		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *SerialEngine) runOneCycle(ctx context.Context) (bool, error) {
	if err := e.waitUntilRunnable(ctx); err != nil {
		return false, err
	}
	defer e.pauseLock.Unlock()

	hookCtx := HookCtx{
		Domain: e,
		Pos:    HookPosBeforeTick,
		Item:   e.cycle.Load(),
	}
	e.InvokeHook(hookCtx)

	madeProgress := false
	for _, t := range e.tickers {
		madeProgress = t.Tick() || madeProgress
	}

	if madeProgress {
		e.cycle.Add(1)
	}

	hookCtx.Pos = HookPosAfterTick
	hookCtx.Detail = madeProgress
	e.InvokeHook(hookCtx)

	return madeProgress, nil
}

// Pause prevents the SerialEngine to start another cycle. It returns after
// the cycle in flight, if any, completes. A paused Run still returns when its
// context is done.
func (e *SerialEngine) Pause() {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	if e.isPaused {
		return
	}

	e.isPaused = true
	e.resume = make(chan struct{})
}

// Continue allows the SerialEngine to run more cycles.
func (e *SerialEngine) Continue() {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	if !e.isPaused {
		return
	}

	e.isPaused = false
	close(e.resume)
}

// CurrentCycle returns the number of cycles in which at least one ticker
// made progress.
func (e *SerialEngine) CurrentCycle() uint64 {
	return e.cycle.Load()
}

// RegisterSimulationEndHandler registers a handler to be called by Finished.
func (e *SerialEngine) RegisterSimulationEndHandler(
	handler SimulationEndHandler,
) {
	e.simulationEndHandlers = append(e.simulationEndHandlers, handler)
}

// Finished should be called after the simulation ends. This function
// calls all the registered SimulationEndHandler.
func (e *SerialEngine) Finished() {
	cycle := e.CurrentCycle()
	for _, h := range e.simulationEndHandlers {
		h.Handle(cycle)
	}
}
