package testutil

// FixedIDGenerator returns the same instance ID every time.
//
// Unlike engine.FixedGenerator, which hands out a sequence and panics when
// it runs out, this generator never runs out. Use it where every engine in
// a test should carry the same ID, e.g. golden traces.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator. If id is empty, Generate returns
// "test-instance-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-instance-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID. Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
