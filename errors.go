package ducttape

import "errors"

// Error taxonomy returned to the fabric/TUN callers. A nil error is the
// NONE case — the packet was handled normally (delivered, forwarded, or
// intentionally dropped as DHT traffic). ErrInvalid and ErrUndeliverable
// are sentinel errors, always tested with errors.Is since they may be
// wrapped with additional context.
var (
	// ErrInvalid indicates a malformed IPv6 header, a source-address/key
	// mismatch, or a non-0xFC derived address.
	ErrInvalid = errors.New("ducttape: invalid packet")

	// ErrUndeliverable indicates hop-limit exhaustion, no known next hop,
	// or no TUN device configured.
	ErrUndeliverable = errors.New("ducttape: undeliverable")

	// ErrNoFabric indicates Register was called without a fabric switch.
	ErrNoFabric = errors.New("ducttape: no fabric switch configured")

	// ErrZeroPeerKey indicates a zero public key was observed at the outer
	// layer — a fatal invariant violation (spec §7): the outer session
	// should never produce one. Callers encountering this should treat it
	// as a broken upstream rather than a recoverable packet error.
	ErrZeroPeerKey = errors.New("ducttape: zero peer public key observed at outer layer")
)
