package checkpoint

import (
	"fmt"
	"sort"
	"strings"
)

// Limits applied when decoding untrusted files.
const (
	MaxHeaderSize    = 64 << 20 // 64 MiB of JSON is already absurd
	MaxTensorCount   = 65536
	MaxTensorNameLen = 512
)

// validateName rejects names that could not have come from a state
// dict: path separators and traversal sequences in particular, since
// downstream tools may use tensor names to build file paths.
func validateName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d exceeds max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains '..'"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains path separator"}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains null byte"}
	}
	return nil
}

// validateTensors checks the tensor table against the payload size:
// every region must lie inside the payload and no two regions may
// overlap. A crafted table could otherwise alias one tensor's bytes
// into another.
func validateTensors(tensors []TensorMeta, payloadSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	for _, t := range tensors {
		if err := validateName(t.Name); err != nil {
			return err
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > payloadSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d exceeds payload size %d", t.Offset, t.Size, payloadSize),
			}
		}
		if i+1 < len(sorted) {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:   "offset_overlap",
					Tensor: t.Name,
					Details: fmt.Sprintf("region [%d,%d) overlaps %q at [%d,%d)",
						t.Offset, t.Offset+t.Size, next.Name, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	return nil
}
