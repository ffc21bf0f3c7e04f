package region

import "runtime"

// runtimeNumCPU bounds the fan-out used by Flush's hole-punch pass and
// Compact's candidate scan (original_source/crates/rawdb/src/lib.rs uses
// rayon's global pool, sized off available parallelism the same way).
func runtimeNumCPU() int {
	return runtime.NumCPU()
}
