package data

import (
	"fmt"
	"math"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is cl100k_base, the GPT-4 tokenizer.
const defaultEncoding = "cl100k_base"

// TextDataset turns labeled strings into fixed-width bag-of-tokens
// feature vectors: each text is BPE-tokenized with tiktoken, token ids
// are hashed into `features` buckets by modulo, and the counts are
// L2-normalized. Crude, but linear models separate real text classes
// on it surprisingly well.
type TextDataset struct {
	x        []float32
	y        []int32
	features int
}

// NewTextDataset encodes texts eagerly. Labels pair with texts by
// index.
func NewTextDataset(texts []string, labels []int32, features int) (*TextDataset, error) {
	if len(texts) != len(labels) {
		return nil, fmt.Errorf("data: %d texts vs %d labels", len(texts), len(labels))
	}
	if features <= 0 {
		return nil, fmt.Errorf("data: features must be positive, got %d", features)
	}

	encoding, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("data: load tiktoken encoding: %w", err)
	}

	x := make([]float32, len(texts)*features)
	for i, text := range texts {
		row := x[i*features : (i+1)*features]
		for _, token := range encoding.Encode(text, nil, nil) {
			row[token%features]++
		}

		var norm float64
		for _, v := range row {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			inv := float32(1 / math.Sqrt(norm))
			for j := range row {
				row[j] *= inv
			}
		}
	}

	return &TextDataset{x: x, y: append([]int32(nil), labels...), features: features}, nil
}

// Len returns the number of examples.
func (d *TextDataset) Len() int { return len(d.y) }

// Features returns the feature vector width.
func (d *TextDataset) Features() int { return d.features }

// At returns example i.
func (d *TextDataset) At(i int) ([]float32, int32, error) {
	if i < 0 || i >= len(d.y) {
		return nil, 0, fmt.Errorf("data: index %d out of range [0, %d)", i, len(d.y))
	}
	return d.x[i*d.features : (i+1)*d.features], d.y[i], nil
}
