// Package checkpoint reads and writes ANVL files, the native snapshot
// format for Anvil models and training state.
//
//	Layout:
//	  [0x00] 4  bytes  magic "ANVL"
//	  [0x04] 4  bytes  format version (uint32 LE)
//	  [0x08] 4  bytes  flags (uint32 LE)
//	  [0x0C] 4  bytes  reserved
//	  [0x10] 8  bytes  header length (uint64 LE)
//	  [0x18] 8  bytes  payload length (uint64 LE)
//	  [0x20] 32 bytes  SHA-256 checksum of the payload
//	  [0x40]           header: JSON (tensor table + training meta)
//	  ...              zero padding to a 64-byte boundary
//	  ...              payload: raw tensor bytes, offsets per the table
//
// Tensors are written in sorted name order, so saving the same state
// twice produces identical bytes. The checksum covers the payload and
// is verified on every load; a flipped bit surfaces as
// ErrChecksumMismatch rather than silently corrupt weights.
//
// Example usage:
//
//	state := model.StateDict()
//	meta := checkpoint.Meta{RunID: runID, Epoch: 3, Step: 1200, Loss: 0.041}
//	if err := checkpoint.Save("run.anvl", state, meta); err != nil {
//	    log.Fatal(err)
//	}
//
//	state, meta, err := checkpoint.Load("run.anvl", tensor.CPU)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := model.LoadStateDict(state); err != nil {
//	    log.Fatal(err)
//	}
package checkpoint
