// Package simd holds the block kernels used on the audio path.
//
// Kernels delegate to github.com/tphakala/simd, which selects AVX/NEON
// implementations at init time and falls back to scalar Go elsewhere.
// All kernels are allocation free.
package simd
