// Package internal contains the implementation packages of tilestack.
//
// # Package Organization
//
// The packages follow the data flow of a run:
//
//   - types: grid coordinates, columns, bounds and grid geometry
//   - raster: RGBA raster buffer, resampling, compositing and codecs
//   - atlas: background atlas loading and bounds-checked chunk extraction
//   - capture: PNG payload extraction from capture fragments
//   - scanner: fragment and tile discovery, X-Y-Z filename parsing
//   - build: layer cache, column worker pool and the tile compositor
//   - mosaic: per-floor mosaics and the full composite
//   - report: run summary and HTML gallery
//   - services: orchestration of a complete run
//   - config, logging, errors, version: ambient support
//
// # Concurrency
//
// Columns are composed concurrently and floors within a column strictly in
// order. The layer cache is complete once the compositor returns; the
// assembler only reads it after that point.
package internal
