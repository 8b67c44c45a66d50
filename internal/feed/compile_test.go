package feed

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/ir"
)

func TestLoadFile_Quotes(t *testing.T) {
	spec, err := LoadFile(filepath.Join("testdata", "quotes.cue"))
	require.NoError(t, err)

	assert.Equal(t, "quotes", spec.Name)
	assert.Equal(t, 50*time.Millisecond, spec.Delay)
	assert.Equal(t, time.Second, spec.Interval)
	require.Len(t, spec.Topics, 7)

	assert.Equal(t, GeneratorConstant, spec.Topics[0].Generator, "constant is the default")
	assert.Equal(t, ir.Text("Value1"), spec.Topics[0].Value)
	assert.Equal(t, ir.Real(123.45), spec.Topics[1].Value)

	counter := spec.Topics[2]
	assert.Equal(t, GeneratorCounter, counter.Generator)
	assert.Equal(t, int64(100), counter.Start)
	assert.Equal(t, int64(5), counter.Step)

	assert.Equal(t, "15:04:05", spec.Topics[3].Layout)
	assert.Equal(t, []string{"IBM", "Last"}, spec.Topics[4].Args)
	assert.Equal(t, ir.ErrorCode(ir.ErrNA), spec.Topics[5].Value)
	assert.Equal(t, ir.Absent{}, spec.Topics[6].Value)

	assert.Empty(t, Validate(spec))
}

func TestCompileBytes_Defaults(t *testing.T) {
	spec, err := CompileBytes([]byte(`feed: {name: "d", topics: [{key: 1, value: 1}]}`), "d.cue")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, spec.Delay)
	assert.Equal(t, time.Duration(0), spec.Interval)
	assert.Equal(t, ir.Int(1), spec.Topics[0].Value)
}

func TestCompileBytes_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing feed", `other: 1`},
		{"syntax", `feed: {`},
		{"unknown generator", `feed: {name: "x", topics: [{key: 1, generator: "random"}]}`},
		{"unknown field", `feed: {name: "x", topics: [{key: 1, value: 1, color: "red"}]}`},
		{"key out of range", `feed: {name: "x", topics: [{key: 4294967296, value: 1}]}`},
		{"empty name", `feed: {name: "", topics: []}`},
		{"bad duration", `feed: {name: "x", delay: "soon", topics: [{key: 1, value: 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileBytes([]byte(tt.src), "bad.cue")
			require.Error(t, err)
		})
	}
}

func TestCompileBytes_DurationError(t *testing.T) {
	src := "feed: {\n\tname: \"x\"\n\tdelay: \"soon\"\n\ttopics: [{key: 1, value: 1}]\n}\n"
	_, err := CompileBytes([]byte(src), "pos.cue")

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "delay", ce.Field)
	assert.Contains(t, ce.Message, `"soon"`)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "nope.cue"))
	assert.Error(t, err)
}
