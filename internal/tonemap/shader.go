package tonemap

import _ "embed"

// tonemapSPV is meant to hold the compiled SPIR-V module for
// assets/tonemap.comp, embedded directly so the binary has no runtime
// dependency on a shader compiler or an on-disk asset path — the same
// contract gviegas-neo3/driver/vk/shader.go's NewShaderCode expects of
// its caller.
//
// This build environment has no SPIR-V compiler (glslc/glslangValidator
// are unavailable, and no toolchain invocation is permitted here), so
// assets/tonemap.spv is not a real compiled module: it is 8 placeholder
// bytes carrying only the SPIR-V magic number and a version word. NewKernel's
// validateShaderBlob rejects it outright, so the GPU tone-mapping
// dispatch path fails closed with a clear error instead of attempting
// to run fabricated shader bytes on real hardware. See DESIGN.md's
// "internal/tonemap" entry. assets/tonemap.comp carries the full
// eight-operator reference source to compile once a toolchain is
// available.
//
//go:embed assets/tonemap.spv
var tonemapSPV []byte
