package agent

import (
	"math"

	"github.com/pthm-cable/animat/genome"
)

// Wheel grouping: sensors [0, leftWheelSensors) drive the left wheel, the
// rest of the active sensors drive the right wheel.
const leftWheelSensors = 4

// speedLimit is the largest float64 strictly below 1. Saturated tanh output
// is pulled back to it so wheel speeds stay inside (-1, 1).
var speedLimit = math.Nextafter(1, 0)

// Link is one decoded sensorimotor transfer function.
type Link struct {
	T1, T2    float64    // Breakpoints in [-100, 100]
	G         [4]float64 // Slopes g1..g4
	SlopeMod  float64    // Battery modulation of the slope, [0, 1]
	OffsetMod float64    // Battery-proportional offset, [0, 1]
	UseB2     bool       // Odd battery-select gene reads b2
}

// DecodeLink maps genome.LinkParams genes onto a transfer function.
func DecodeLink(p []int) Link {
	var l Link
	l.T1 = float64(p[0])/genome.MaxGene*200 - 100
	l.T2 = float64(p[1])/genome.MaxGene*200 - 100
	for k := range l.G {
		// tan over (-pi/2, pi/2) allows near-vertical and negative slopes
		l.G[k] = math.Tan(float64(p[k+2])/genome.MaxGene*math.Pi - math.Pi/2)
	}
	l.SlopeMod = float64(p[6]) / genome.MaxGene
	l.OffsetMod = float64(p[7]) / genome.MaxGene
	l.UseB2 = p[8]%2 != 0
	return l
}

// Base returns the piecewise response to a sensor reading before battery
// modulation. The middle segment is anchored at T1, so the response is
// continuous at the first breakpoint only.
func (l Link) Base(sensor float64) float64 {
	switch {
	case sensor < l.T1:
		return l.G[0] * (sensor - l.T1)
	case sensor < l.T2:
		return l.G[1] * (sensor - l.T1)
	default:
		return l.G[2]*(sensor-l.T2) + l.G[3]
	}
}

// Output returns the link's motor contribution for the given batteries.
func (l Link) Output(sensor, b1, b2 float64) float64 {
	battery := b1
	if l.UseB2 {
		battery = b2
	}
	factor := (battery - 100) / 100
	base := l.Base(sensor)
	return base*(1+factor*l.SlopeMod) + (battery/200)*l.OffsetMod
}

// Controller turns sensor readings into wheel speeds.
type Controller struct {
	links      [genome.NumSlots]Link
	thresholdL float64
	thresholdR float64
}

// NewController decodes every link of g. It fails on a genome of the wrong length.
func NewController(g genome.Genome) (*Controller, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{}
	for i := range c.links {
		c.links[i] = DecodeLink(g.Link(i))
	}
	tl, tr := g.Thresholds()
	c.thresholdL = scaleThreshold(tl)
	c.thresholdR = scaleThreshold(tr)
	return c, nil
}

func scaleThreshold(gene int) float64 {
	return float64(gene)/genome.MaxGene*6 - 3
}

// Link returns the decoded link of slot i.
func (c *Controller) Link(i int) Link {
	return c.links[i]
}

// WheelSpeeds sums link outputs per wheel and squashes each sum with tanh
// against that wheel's threshold. The reserved slot never drives a wheel.
func (c *Controller) WheelSpeeds(s *Sensors, b1, b2 float64) (left, right float64) {
	var sumL, sumR float64
	for i := 0; i < NumSensors; i++ {
		out := c.links[i].Output(s[i], b1, b2)
		if i < leftWheelSensors {
			sumL += out
		} else {
			sumR += out
		}
	}
	return activate(sumL - c.thresholdL), activate(sumR - c.thresholdR)
}

func activate(x float64) float64 {
	v := math.Tanh(x)
	if v >= speedLimit {
		return speedLimit
	}
	if v <= -speedLimit {
		return -speedLimit
	}
	return v
}
