package starpu

// starpugen:start
//
// Bindings are regenerated from the installed StarPU. Set
// STARPUGEN_DOCS_BUILD=1 to skip generation when no StarPU is available.
//
//go:generate go run github.com/phobologic/starpugen
// starpugen:end
