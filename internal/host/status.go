package host

import (
	"errors"
	"fmt"

	"github.com/xll-gen/rtd/internal/engine"
)

// HResult is a host status code.
type HResult uint32

// Status codes returned to the host.
const (
	SOK          HResult = 0x00000000
	SFalse       HResult = 0x00000001
	EFail        HResult = 0x80004005
	EPointer     HResult = 0x80004003
	EInvalidArg  HResult = 0x80070057
	EOutOfMemory HResult = 0x8007000E
)

func (h HResult) String() string {
	switch h {
	case SOK:
		return "S_OK"
	case SFalse:
		return "S_FALSE"
	case EFail:
		return "E_FAIL"
	case EPointer:
		return "E_POINTER"
	case EInvalidArg:
		return "E_INVALIDARG"
	case EOutOfMemory:
		return "E_OUTOFMEMORY"
	default:
		return fmt.Sprintf("HRESULT(0x%08X)", uint32(h))
	}
}

// Failed reports whether h is an error status.
func (h HResult) Failed() bool {
	return h&0x80000000 != 0
}

// ErrNilTarget is wrapped by errors for nil output targets.
var ErrNilTarget = errors.New("output target is nil")

// StatusOf maps an error from a Binding call to the status the host sees.
func StatusOf(err error) HResult {
	switch {
	case err == nil:
		return SOK
	case errors.Is(err, ErrNilTarget):
		return EPointer
	case engine.IsInvalidArgument(err):
		return EInvalidArg
	case engine.IsResourceExhausted(err):
		return EOutOfMemory
	default:
		return EFail
	}
}

func nilTarget(name string) error {
	err := engine.NewInvalidArgumentError(name + " target is nil")
	return fmt.Errorf("%w: %w", ErrNilTarget, err)
}
