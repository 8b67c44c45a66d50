package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xll-gen/rtd/internal/engine"
)

func TestFixedIDGenerator(t *testing.T) {
	var gen engine.IDGenerator = NewFixedIDGenerator("instance-1")
	assert.Equal(t, "instance-1", gen.Generate())
	assert.Equal(t, "instance-1", gen.Generate())
}

func TestFixedIDGenerator_Default(t *testing.T) {
	assert.Equal(t, "test-instance-default", NewFixedIDGenerator("").Generate())
}
