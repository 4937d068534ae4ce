// Package ioutilx provides shared buffer pools for the byte-pumping code in
// the tunnel service.
package ioutilx

import "sync"

// Buffer64K provides reusable 64KiB buffers for io.CopyBuffer, bounding the
// working set of a splice pump to a fixed 64KiB per direction.
// Using *[]byte avoids interface-boxing allocation in sync.Pool.
var Buffer64K = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024)
		return &b
	},
}
