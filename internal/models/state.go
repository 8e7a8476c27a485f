package models

// SweepState is the state of the daily maintenance sweep.
type SweepState int

const (
	SweepIdle SweepState = iota
	SweepRunning
)

func (s SweepState) String() string {
	switch s {
	case SweepIdle:
		return "idle"
	case SweepRunning:
		return "running"
	default:
		return "unknown"
	}
}
