package omap

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to size index buckets so that one bucket spans
// a single cache line. It's automatically calculated using the
// `golang.org/x/sys` package.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})
