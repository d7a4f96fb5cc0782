// Copyright 2025 Anvil ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics provides evaluation metrics that accumulate over
// batches.
//
// # Overview
//
// This package contains:
//   - Accuracy: fraction of correctly classified examples
//   - Dice, GeneralizedDice, IoU: overlap metrics for dense predictions
//   - Metric interface for custom metrics
//   - Options for label/score input conventions
//
// # Basic Usage
//
//	m := metrics.NewAccuracy()
//	for batch := range loader.Batches(ctx) {
//	    preds := model.Forward(batch.X)
//	    m.Update(preds.Raw(), batch.Y.Raw())
//	}
//	score := m.Compute() // in [0, 1]
//
// Predictions default to score tensors with the class dimension at
// dim 1 and are argmaxed; targets default to integer class labels.
// Options flip either convention:
//
//	m := metrics.NewDice(3, metrics.WithoutBackground())
//
// The train package wraps any Metric as a callback that resets per
// epoch and logs the computed value into the run history:
//
//	train.NewMetric[B](metrics.NewAccuracy())
package metrics

import (
	"github.com/anvil-ml/anvil/internal/metrics"
)

// Metric accumulates batch statistics and reduces them to one scalar.
type Metric = metrics.Metric

// Option adjusts how a metric reads its inputs.
type Option = metrics.Option

// WithPredLabels treats predictions as class labels instead of score
// tensors needing an argmax.
func WithPredLabels() Option {
	return metrics.WithPredLabels()
}

// WithTargetScores treats targets as score tensors with a class
// dimension instead of integer labels.
func WithTargetScores() Option {
	return metrics.WithTargetScores()
}

// WithoutBackground drops class 0 from the reduction.
func WithoutBackground() Option {
	return metrics.WithoutBackground()
}

// Accuracy is the fraction of examples whose predicted class matches
// the target.
type Accuracy = metrics.Accuracy

// NewAccuracy creates an accuracy metric.
func NewAccuracy(opts ...Option) *Accuracy {
	return metrics.NewAccuracy(opts...)
}

// Dice is the mean per-class Dice coefficient over classes seen so far.
type Dice = metrics.Dice

// NewDice creates a Dice metric over classes.
func NewDice(classes int, opts ...Option) *Dice {
	return metrics.NewDice(classes, opts...)
}

// GeneralizedDice weights each class by inverse squared target volume,
// compensating for class imbalance.
type GeneralizedDice = metrics.GeneralizedDice

// NewGeneralizedDice creates a generalized Dice metric over classes.
func NewGeneralizedDice(classes int, opts ...Option) *GeneralizedDice {
	return metrics.NewGeneralizedDice(classes, opts...)
}

// IoU is the mean per-class intersection over union.
type IoU = metrics.IoU

// NewIoU creates an IoU metric over classes.
func NewIoU(classes int, opts ...Option) *IoU {
	return metrics.NewIoU(classes, opts...)
}
