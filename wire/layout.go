package wire

import "fmt"

// Layout describes a raw OS structure copied verbatim into a payload.
//
// PaddingTolerance is the largest size difference accepted between the
// sender's and the receiver's notion of the structure. It exists because
// 32-bit and 64-bit builds can pad the same structure differently. Only
// layouts whose differing bytes are trailing padding carry a tolerance;
// structures with pointer-width members in the middle are encoded field by
// field instead (see PresentParameters).
type Layout struct {
	Name             string
	Size             int
	PaddingTolerance int
}

// Layouts carried across the bridge. Sizes are the receiver's native sizes.
var (
	// LayoutCaps is D3DCAPS9. No pointer members, identical on both widths.
	LayoutCaps = Layout{Name: "D3DCAPS9", Size: 304}
	// LayoutDisplayMode is D3DDISPLAYMODE.
	LayoutDisplayMode = Layout{Name: "D3DDISPLAYMODE", Size: 16}
	// LayoutAdapterIdentifier is D3DADAPTER_IDENTIFIER9. Its members sum to
	// 1100 bytes; the LARGE_INTEGER DriverVersion gives it 8-byte alignment,
	// so MSVC pads it to 1104 on both x86 and x64. Packed senders send 1100.
	LayoutAdapterIdentifier = Layout{Name: "D3DADAPTER_IDENTIFIER9", Size: 1100, PaddingTolerance: 4}
)

// Check validates a received structure size against l.
func (l Layout) Check(n int) error {
	delta := n - l.Size
	if delta < 0 {
		delta = -delta
	}
	if delta <= l.PaddingTolerance {
		return nil
	}
	return &PayloadError{
		Kind: PayloadLengthMismatch,
		Msg:  fmt.Sprintf("%s: received %d bytes, expected %d (tolerance %d)", l.Name, n, l.Size, l.PaddingTolerance),
	}
}
