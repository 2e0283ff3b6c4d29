package sim

import "context"

// A Ticker is an object that updates states with ticks. Tick returns false
// when the ticker has nothing more to do.
type Ticker interface {
	Tick() bool
}

// CycleTeller can be used to get the number of cycles simulated so far.
type CycleTeller interface {
	CurrentCycle() uint64
}

// A SimulationEndHandler is a handler that is called after the simulation ends.
type SimulationEndHandler interface {
	Handle(cycle uint64)
}

// An Engine keeps the registered tickers running, one cycle at a time.
type Engine interface {
	Hookable
	CycleTeller

	// RegisterTicker adds a ticker that is ticked once every cycle.
	RegisterTicker(t Ticker)

	// Run ticks the registered tickers until none of them makes progress or
	// the context is cancelled. Cancellation is only observed between
	// cycles.
	Run(ctx context.Context) error

	// Pause blocks until the current cycle finishes and prevents the engine
	// from starting another one until Continue is called.
	Pause()

	// Continue resumes a paused engine.
	Continue()

	// RegisterSimulationEndHandler registers a handler that perform some
	// actions after the simulation is finished.
	RegisterSimulationEndHandler(handler SimulationEndHandler)

	// Finished invokes all the registered SimulationEndHandler
	Finished()
}
