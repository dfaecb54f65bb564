// Package starpu exposes the StarPU runtime to Go through cgo.
//
// The bindings live in the zstarpu_*.go files, which starpugen writes from
// the StarPU installed on the build machine:
//
//	go generate ./starpu
//
// C identifiers keep their native spelling with the first letter upper-cased,
// so starpu_task_submit is Starpu_task_submit and struct starpu_conf is
// Starpu_conf. Types StarPU borrows from hwloc, OpenCL and the C library are
// re-exported by zstarpu_hwloc.go, zstarpu_opencl.go (build tag opencl) and
// zstarpu_libc.go.
//
// Task states are grouped under the Starpu_task_status namespace:
//
//	if status == starpu.Starpu_task_status.STARPU_TASK_FINISHED {
//		...
//	}
//
// STARPU_TASK_INIT is not bound; DefaultStarpu_task returns the same
// zero-initialized task.
package starpu
