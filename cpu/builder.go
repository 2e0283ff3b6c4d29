package cpu

// A Builder can build CPUs.
type Builder struct {
	memory Memory
}

// MakeBuilder creates a new Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithMemory sets the memory that the CPU fetches from, loads from and stores
// to.
func (b Builder) WithMemory(m Memory) Builder {
	b.memory = m
	return b
}

// Build creates a CPU with the program counter and every register at 0.
func (b Builder) Build(name string) *Comp {
	if b.memory == nil {
		panic("a CPU requires a memory")
	}

	return &Comp{
		name:   name,
		memory: b.memory,
	}
}
