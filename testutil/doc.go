// Package testutil provides testing utilities for tiergo.
//
// This package is intended for use in tests, benchmarks and examples
// only. It provides a seeded thread-safe random source plus generators
// for vectors, vector documents and collection access patterns.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(1000, 128) // uniform [0, 1)
//	unit := rng.UnitVectors(1000, 128)    // L2-normalized
//
// # Document Generation
//
//	docs := rng.Documents(1000, 128)
//
// # Access Patterns
//
//	hits := rng.ZipfAccesses(10_000, 50, 1.5) // 80/20 popularity skew
package testutil
