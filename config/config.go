// Package config holds the configuration of a simulated machine.
//
// A configuration starts from Default and may be overlaid by .env files and
// by VMSIM_* environment variables:
//
//	VMSIM_PAGE_SIZE     words per page
//	VMSIM_NUM_PAGES     virtual pages
//	VMSIM_FRAMES        physical frames
//	VMSIM_SWAP_SLOTS    swap slots
//	VMSIM_TLB_ENTRIES   TLB entries, 0 disables the TLB
//	VMSIM_POLICY        fifo, second-chance or optimal
//	VMSIM_TRACE_FILE    page access trace for the optimal policy
//	VMSIM_FREQ_MHZ      CPU frequency used to report simulated time
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sarchlab/vmsim/mem/vm/replacement"
	"github.com/sarchlab/vmsim/sim"
)

// ErrInvalidConfig means that a configuration cannot build a machine.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config describes a machine.
type Config struct {
	PageSize     int
	NumPages     int
	NumFrames    int
	NumSwapSlots int
	TLBEntries   int
	Policy       string
	TraceFile    string
	Freq         sim.Freq
}

// Default returns the configuration of the reference machine: pages of 4
// words, 2048 virtual pages, 8 frames, 128 swap slots, no TLB and FIFO
// replacement at 1 GHz.
func Default() Config {
	return Config{
		PageSize:     4,
		NumPages:     2048,
		NumFrames:    8,
		NumSwapSlots: 128,
		TLBEntries:   0,
		Policy:       replacement.FIFO.String(),
		Freq:         1 * sim.GHz,
	}
}

// Load returns the default configuration overlaid by the given .env files and
// then by the environment. Variables set in the environment take precedence
// over the files. Missing files are an error.
func Load(files ...string) (Config, error) {
	values := map[string]string{}

	if len(files) > 0 {
		read, err := godotenv.Read(files...)
		if err != nil {
			return Config{}, fmt.Errorf("reading env files: %w", err)
		}
		values = read
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := values[key]

		return v, ok
	}

	c := Default()
	if err := c.overlay(lookup); err != nil {
		return Config{}, err
	}

	return c, nil
}

func (c *Config) overlay(lookup func(string) (string, bool)) error {
	ints := []struct {
		key   string
		field *int
	}{
		{"VMSIM_PAGE_SIZE", &c.PageSize},
		{"VMSIM_NUM_PAGES", &c.NumPages},
		{"VMSIM_FRAMES", &c.NumFrames},
		{"VMSIM_SWAP_SLOTS", &c.NumSwapSlots},
		{"VMSIM_TLB_ENTRIES", &c.TLBEntries},
	}

	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer",
				ErrInvalidConfig, i.key, v)
		}
		*i.field = n
	}

	if v, ok := lookup("VMSIM_POLICY"); ok {
		c.Policy = v
	}

	if v, ok := lookup("VMSIM_TRACE_FILE"); ok {
		c.TraceFile = v
	}

	if v, ok := lookup("VMSIM_FREQ_MHZ"); ok {
		mhz, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: VMSIM_FREQ_MHZ=%q is not a number",
				ErrInvalidConfig, v)
		}
		c.Freq = sim.Freq(mhz) * sim.MHz
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate reports every problem of the configuration. The returned error
// wraps ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error

	mustBePowerOfTwo := func(name string, n int) {
		if !isPowerOfTwo(n) {
			errs = append(errs, fmt.Errorf("%s must be a power of two, got %d",
				name, n))
		}
	}

	mustBePowerOfTwo("page size", c.PageSize)
	mustBePowerOfTwo("number of pages", c.NumPages)
	mustBePowerOfTwo("number of frames", c.NumFrames)
	mustBePowerOfTwo("number of swap slots", c.NumSwapSlots)

	if c.NumFrames > c.NumPages {
		errs = append(errs, fmt.Errorf(
			"%d frames is more than the %d virtual pages",
			c.NumFrames, c.NumPages))
	}

	if c.TLBEntries < 0 {
		errs = append(errs, fmt.Errorf("TLB entries cannot be negative"))
	}

	if _, err := replacement.ParseKind(c.Policy); err != nil {
		errs = append(errs, err)
	}

	if c.Freq <= 0 {
		errs = append(errs, fmt.Errorf("frequency must be positive"))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// PolicyKind returns the replacement policy. It panics if the policy is
// unknown, which Validate reports.
func (c Config) PolicyKind() replacement.Kind {
	kind, err := replacement.ParseKind(c.Policy)
	if err != nil {
		panic(err)
	}

	return kind
}
