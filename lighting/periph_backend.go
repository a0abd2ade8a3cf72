package lighting

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
)

// pwmFrequency is the PWM carrier frequency driven to every LED channel.
const pwmFrequency = 1 * physic.KiloHertz

// PeriphPWM wraps a periph.io/x/periph GPIO pin addressed by name (as
// gpioreg.ByName resolves it), converting the [0,1] duty float this
// package works in into periph's integer gpio.Duty scale.
type PeriphPWM struct {
	pin gpio.PinIO
}

// NewPeriphPWM looks up a PWM-capable pin by its configured channel name.
func NewPeriphPWM(channel string) (*PeriphPWM, error) {
	pin := gpioreg.ByName(channel)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", channel)
	}
	return &PeriphPWM{pin: pin}, nil
}

// SetDuty converts a [0,1] duty fraction into periph's gpio.Duty scale and
// drives the pin's PWM output.
func (p *PeriphPWM) SetDuty(duty float64) error {
	d := gpio.Duty(duty * float64(gpio.DutyMax))
	return p.pin.PWM(d, pwmFrequency)
}
