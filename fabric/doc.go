// Package fabric defines the label-switching fabric interface the core
// sends frames to and receives frames from, plus an in-memory LoopbackSwitch
// test double that wires two cores directly together without a real
// network underneath.
package fabric
