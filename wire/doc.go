// Package wire defines the fixed on-the-wire header layouts this module
// stacks: SwitchHeader, IP6Header, UDPHeader, and fabric control/error
// frames. It owns no cryptography and no routing decisions; it is the
// byte-level vocabulary the rest of the module reasons about.
package wire
