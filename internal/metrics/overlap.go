package metrics

import (
	"fmt"

	"github.com/anvil-ml/anvil/internal/tensor"
)

// overlap accumulates per-class intersection and area counts, the
// shared substrate of Dice, GeneralizedDice, and IoU.
type overlap struct {
	settings
	classes      int
	intersection []float64
	predArea     []float64
	targetArea   []float64
}

func newOverlap(classes int, opts ...Option) overlap {
	if classes < 2 {
		panic(fmt.Sprintf("metrics: need at least 2 classes, got %d", classes))
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return overlap{
		settings:     s,
		classes:      classes,
		intersection: make([]float64, classes),
		predArea:     make([]float64, classes),
		targetArea:   make([]float64, classes),
	}
}

func (o *overlap) reset() {
	for c := 0; c < o.classes; c++ {
		o.intersection[c] = 0
		o.predArea[c] = 0
		o.targetArea[c] = 0
	}
}

func (o *overlap) update(preds, targets *tensor.RawTensor) {
	p := labels(preds, o.argmaxPreds, o.classes)
	t := labels(targets, o.argmaxTargets, o.classes)
	if len(p) != len(t) {
		panic(fmt.Sprintf("metrics: %d predictions vs %d targets", len(p), len(t)))
	}

	for i := range p {
		pc, tc := p[i], t[i]
		if pc < 0 || pc >= o.classes {
			panic(fmt.Sprintf("metrics: predicted label %d out of range [0, %d)", pc, o.classes))
		}
		if tc < 0 || tc >= o.classes {
			panic(fmt.Sprintf("metrics: target label %d out of range [0, %d)", tc, o.classes))
		}
		o.predArea[pc]++
		o.targetArea[tc]++
		if pc == tc {
			o.intersection[pc]++
		}
	}
}

// firstClass returns the first class included in reductions.
func (o *overlap) firstClass() int {
	if o.skipBG {
		return 1
	}
	return 0
}

// Dice computes the mean Sørensen–Dice coefficient over classes:
// 2·|P∩T| / (|P|+|T|) per class, averaged over classes present in
// either predictions or targets.
type Dice struct {
	overlap
}

// NewDice creates a Dice metric over classes.
func NewDice(classes int, opts ...Option) *Dice {
	return &Dice{overlap: newOverlap(classes, opts...)}
}

// Name returns "dice".
func (d *Dice) Name() string { return "dice" }

// Reset clears the per-class counts.
func (d *Dice) Reset() { d.reset() }

// Update folds one batch into the per-class counts.
func (d *Dice) Update(preds, targets *tensor.RawTensor) { d.update(preds, targets) }

// Compute returns the mean per-class Dice score.
func (d *Dice) Compute() float64 {
	var sum float64
	var n int
	for c := d.firstClass(); c < d.classes; c++ {
		denom := d.predArea[c] + d.targetArea[c]
		if denom == 0 {
			continue
		}
		sum += 2 * d.intersection[c] / denom
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// GeneralizedDice computes the generalized Dice score (Sudre et al.,
// 2017): class contributions weighted by the inverse square of the
// target area, so small structures count as much as large ones.
type GeneralizedDice struct {
	overlap
}

// NewGeneralizedDice creates a GeneralizedDice metric over classes.
func NewGeneralizedDice(classes int, opts ...Option) *GeneralizedDice {
	return &GeneralizedDice{overlap: newOverlap(classes, opts...)}
}

// Name returns "generalized_dice".
func (g *GeneralizedDice) Name() string { return "generalized_dice" }

// Reset clears the per-class counts.
func (g *GeneralizedDice) Reset() { g.reset() }

// Update folds one batch into the per-class counts.
func (g *GeneralizedDice) Update(preds, targets *tensor.RawTensor) { g.update(preds, targets) }

// Compute returns the generalized Dice score. Classes absent from the
// targets get zero weight.
func (g *GeneralizedDice) Compute() float64 {
	var num, den float64
	for c := g.firstClass(); c < g.classes; c++ {
		if g.targetArea[c] == 0 {
			continue
		}
		w := 1 / (g.targetArea[c] * g.targetArea[c])
		num += w * g.intersection[c]
		den += w * (g.predArea[c] + g.targetArea[c])
	}
	if den == 0 {
		return 0
	}
	return 2 * num / den
}

// IoU computes the mean Jaccard index over classes:
// |P∩T| / |P∪T| per class, averaged over classes present in either
// predictions or targets.
type IoU struct {
	overlap
}

// NewIoU creates an IoU metric over classes.
func NewIoU(classes int, opts ...Option) *IoU {
	return &IoU{overlap: newOverlap(classes, opts...)}
}

// Name returns "iou".
func (i *IoU) Name() string { return "iou" }

// Reset clears the per-class counts.
func (i *IoU) Reset() { i.reset() }

// Update folds one batch into the per-class counts.
func (i *IoU) Update(preds, targets *tensor.RawTensor) { i.update(preds, targets) }

// Compute returns the mean per-class IoU.
func (i *IoU) Compute() float64 {
	var sum float64
	var n int
	for c := i.firstClass(); c < i.classes; c++ {
		union := i.predArea[c] + i.targetArea[c] - i.intersection[c]
		if union == 0 {
			continue
		}
		sum += i.intersection[c] / union
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
