package checkpoint

import "time"

// Format constants.
const (
	Magic         = "ANVL"
	FormatVersion = 1

	fixedHeaderSize = 64   // bytes before the JSON header
	payloadAlign    = 64   // payload starts on a 64-byte boundary
	checksumOffset  = 0x20 // within the fixed header
	checksumSize    = 32   // SHA-256
)

// Flags stored in the fixed header.
const (
	// FlagHasOptimizer marks files whose state includes optimizer tensors.
	FlagHasOptimizer uint32 = 1 << 0
)

// Meta records the training state stored alongside the tensors.
type Meta struct {
	RunID           string             `json:"run_id,omitempty"`
	Epoch           int                `json:"epoch"`
	Step            int64              `json:"step"`
	Loss            float64            `json:"loss"`
	OptimizerType   string             `json:"optimizer_type,omitempty"`
	OptimizerConfig map[string]float64 `json:"optimizer_config,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// TensorMeta locates one tensor inside the payload.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the payload
	Size   int64  `json:"size"`
}

// header is the JSON section between the fixed header and the payload.
type header struct {
	Version int          `json:"version"`
	Meta    Meta         `json:"meta"`
	Tensors []TensorMeta `json:"tensors"`
}

// padding returns the zero bytes needed after pos to reach the next
// payload alignment boundary.
func padding(pos int) int {
	return (payloadAlign - pos%payloadAlign) % payloadAlign
}
