package types

import "fmt"

// Status is the native result code of a remote call (an HRESULT).
// Negative values are failures.
type Status int32

// Status codes relayed across the bridge.
const (
	StatusOK           Status = 0
	StatusFalse        Status = 1
	StatusFail         Status = -2147467259 // 0x80004005
	StatusNotAvailable Status = -2005530518 // 0x8876086A
	StatusDeviceLost   Status = -2005530520 // 0x88760868
	StatusInvalidCall  Status = -2005530516 // 0x8876086C
)

// Failed reports whether s is a failure code.
func (s Status) Failed() bool {
	return s < 0
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFalse:
		return "FALSE"
	case StatusFail:
		return "FAIL"
	case StatusNotAvailable:
		return "NOTAVAILABLE"
	case StatusDeviceLost:
		return "DEVICELOST"
	case StatusInvalidCall:
		return "INVALIDCALL"
	default:
		return fmt.Sprintf("Status(%#08x)", uint32(s))
	}
}
