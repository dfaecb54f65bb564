//go:build starpu

package starpu

/*
#include <stdlib.h>
#include <starpu.h>

static void vector_scal_cpu(void *buffers[], void *cl_arg)
{
	float *val = (float *)STARPU_VECTOR_GET_PTR(buffers[0]);
	unsigned n = STARPU_VECTOR_GET_NX(buffers[0]);
	float factor = *(float *)cl_arg;

	for (unsigned i = 0; i < n; i++)
		val[i] *= factor;
}

static starpu_cpu_func_t vector_scal_func(void) { return vector_scal_cpu; }
*/
import "C"

import "unsafe"

// vectorScalFunc returns a CPU implementation that scales a vector of
// floats in place by the float the task argument points to.
func vectorScalFunc() *[0]byte {
	return (*[0]byte)(C.vector_scal_func())
}

// cAlloc allocates a zeroed T in C memory, so StarPU may keep pointers to
// it after the call that hands it over.
func cAlloc[T any]() (*T, func()) {
	var zero T
	p := C.calloc(1, C.size_t(unsafe.Sizeof(zero)))
	return (*T)(p), func() { C.free(p) }
}

// cFloats allocates n floats in C memory.
func cFloats(n int) ([]float32, func()) {
	p := C.calloc(C.size_t(n), C.size_t(unsafe.Sizeof(float32(0))))
	return unsafe.Slice((*float32)(p), n), func() { C.free(p) }
}
