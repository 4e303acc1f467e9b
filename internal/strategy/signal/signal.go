package signal

// Signal is what a rule asks the engine to do on one bar.
type Signal int8

const (
	Hold Signal = iota
	Enter
	Exit
)

func (s Signal) String() string {
	switch s {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "hold"
	}
}
