package validator

// RunState is the lifecycle state of the background worker.
type RunState int32

const (
	Stopped RunState = iota
	Starting
	Running
	Stopping
)

func (s RunState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
