package optim

import (
	"fmt"
	"math"
)

// Scheduler adjusts an optimizer's learning rate over training. The
// training loop calls Step once per optimizer step; schedules that
// think in epochs take step counts (steps per epoch × epochs).
type Scheduler interface {
	// Step advances the schedule by one optimizer step and writes the
	// new learning rate into the wrapped optimizer.
	Step()

	// LastLR returns the learning rate most recently written.
	LastLR() float32
}

// StepLR multiplies the learning rate by gamma every stepSize steps.
type StepLR struct {
	opt      Optimizer
	stepSize int
	gamma    float32
	baseLR   float32
	count    int
}

// NewStepLR creates a StepLR schedule around opt. The base rate is the
// optimizer's rate at construction.
func NewStepLR(opt Optimizer, stepSize int, gamma float32) *StepLR {
	if stepSize <= 0 {
		panic(fmt.Sprintf("StepLR: stepSize must be positive, got %d", stepSize))
	}
	return &StepLR{opt: opt, stepSize: stepSize, gamma: gamma, baseLR: opt.LR()}
}

// Step advances the schedule.
func (s *StepLR) Step() {
	s.count++
	decays := s.count / s.stepSize
	s.opt.SetLR(s.baseLR * float32(math.Pow(float64(s.gamma), float64(decays))))
}

// LastLR returns the current learning rate.
func (s *StepLR) LastLR() float32 { return s.opt.LR() }

// CosineAnnealing decays the learning rate from the optimizer's base
// rate to etaMin along a half cosine over tMax steps, then holds etaMin.
type CosineAnnealing struct {
	opt    Optimizer
	tMax   int
	etaMin float32
	baseLR float32
	count  int
}

// NewCosineAnnealing creates a cosine schedule around opt.
func NewCosineAnnealing(opt Optimizer, tMax int, etaMin float32) *CosineAnnealing {
	if tMax <= 0 {
		panic(fmt.Sprintf("CosineAnnealing: tMax must be positive, got %d", tMax))
	}
	return &CosineAnnealing{opt: opt, tMax: tMax, etaMin: etaMin, baseLR: opt.LR()}
}

// Step advances the schedule.
func (c *CosineAnnealing) Step() {
	c.count++
	t := c.count
	if t > c.tMax {
		t = c.tMax
	}
	c.opt.SetLR(cosAnneal(c.baseLR, c.etaMin, float64(t)/float64(c.tMax)))
}

// LastLR returns the current learning rate.
func (c *CosineAnnealing) LastLR() float32 { return c.opt.LR() }

// OneCycle ramps the learning rate from MaxLR/DivFactor up to MaxLR
// over the first PctStart of the cycle, then anneals it down to
// MaxLR/(DivFactor*FinalDivFactor), both phases along cosines
// (Smith & Topin, 2018).
type OneCycle struct {
	opt        Optimizer
	maxLR      float32
	initialLR  float32
	minLR      float32
	totalSteps int
	warmSteps  int
	count      int
}

// OneCycleConfig holds the cycle shape. Zero values take defaults.
type OneCycleConfig struct {
	MaxLR          float32 // peak learning rate (required)
	TotalSteps     int     // optimizer steps in the cycle (required)
	PctStart       float64 // rising fraction of the cycle (default 0.3)
	DivFactor      float32 // initial = MaxLR/DivFactor (default 25)
	FinalDivFactor float32 // floor = initial/FinalDivFactor (default 1e4)
}

// NewOneCycle creates a one-cycle schedule around opt. Unlike the other
// schedules it ignores the optimizer's base rate; the cycle is fixed by
// the config.
func NewOneCycle(opt Optimizer, config OneCycleConfig) *OneCycle {
	if config.MaxLR <= 0 {
		panic(fmt.Sprintf("OneCycle: MaxLR must be positive, got %v", config.MaxLR))
	}
	if config.TotalSteps <= 0 {
		panic(fmt.Sprintf("OneCycle: TotalSteps must be positive, got %d", config.TotalSteps))
	}
	if config.PctStart == 0 {
		config.PctStart = 0.3
	}
	if config.PctStart < 0 || config.PctStart >= 1 {
		panic(fmt.Sprintf("OneCycle: PctStart must be in (0, 1), got %v", config.PctStart))
	}
	if config.DivFactor == 0 {
		config.DivFactor = 25
	}
	if config.FinalDivFactor == 0 {
		config.FinalDivFactor = 1e4
	}

	initial := config.MaxLR / config.DivFactor
	oc := &OneCycle{
		opt:        opt,
		maxLR:      config.MaxLR,
		initialLR:  initial,
		minLR:      initial / config.FinalDivFactor,
		totalSteps: config.TotalSteps,
		warmSteps:  int(config.PctStart * float64(config.TotalSteps)),
	}
	opt.SetLR(initial)
	return oc
}

// Step advances the schedule.
func (o *OneCycle) Step() {
	o.count++
	t := o.count
	if t > o.totalSteps {
		t = o.totalSteps
	}

	var lr float32
	if o.warmSteps > 0 && t <= o.warmSteps {
		lr = cosAnneal(o.initialLR, o.maxLR, float64(t)/float64(o.warmSteps))
	} else {
		down := o.totalSteps - o.warmSteps
		lr = cosAnneal(o.maxLR, o.minLR, float64(t-o.warmSteps)/float64(down))
	}
	o.opt.SetLR(lr)
}

// LastLR returns the current learning rate.
func (o *OneCycle) LastLR() float32 { return o.opt.LR() }

// cosAnneal interpolates from start (pct 0) to end (pct 1) along a half
// cosine.
func cosAnneal(start, end float32, pct float64) float32 {
	return end + (start-end)*float32(1+math.Cos(math.Pi*pct))/2
}
