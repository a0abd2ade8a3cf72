package lighting

// SimPWM is an in-memory duty-cycle ledger with no hardware I/O, selected
// for every zone when simulation_mode is set.
type SimPWM struct {
	LastDuty float64
}

// NewSimPWM constructs a simulated PWM channel.
func NewSimPWM() *SimPWM {
	return &SimPWM{}
}

func (s *SimPWM) SetDuty(duty float64) error {
	s.LastDuty = duty
	return nil
}
