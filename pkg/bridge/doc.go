// Package bridge exposes a model graph to callers that cannot hold Go
// pointers.
//
// Every call takes and returns opaque handles, flat slices and a
// status.Code. Nothing panics across the boundary: failures are recovered,
// turned into a code, and the full message is kept for LastError in the
// slot of the handle category the call operated on.
//
// Buffers are never resized. Export calls return the number of elements
// required; when dst is shorter they return status.BufferTooSmall with that
// number and leave dst untouched:
//
//	n, code := b.Vertices(shape, nil)     // size query
//	buf := make([]float32, n)
//	_, code = b.Vertices(shape, buf)
//
// Flat layouts:
//
//	transform  13 float32: translation xyz, rotation row-major 3x3, scale
//	vertices   3 float32 per vertex, normals 3, UVs 2, colors RGBA 4
//	triangles  3 uint16 per triangle
//	track      9 float32 per sample: time, translation xyz, rotation wxyz, scale
//
// Distinct assets may be used from distinct goroutines. Calls that touch the
// same asset must be serialized by the caller.
package bridge
