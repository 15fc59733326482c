// Package cmd provides the command-line interface for tilestack.
//
// This package implements the CLI commands using the Cobra framework, with
// flags bound to Viper configuration keys.
//
// # Available Commands
//
//   - build: compose every tile, then assemble the layer mosaics and composite
//   - compose: compose and write the X-Y-Z tiles only
//   - stitch: assemble the mosaics from previously rendered tiles
//   - config show|validate: inspect the resolved configuration
//   - version: print build information
//
// # Command Examples
//
//	// Full run with explicit locations
//	tilestack build --input-dir captures --background-file world.png --output-dir out
//
//	// Reproduce the strict cascade: a failed tile write breaks the floors above
//	tilestack build --cache-policy persist
//
//	// Re-stitch after editing tiles by hand
//	tilestack stitch --tiles-dir out/tiles --grayscale-underground
//
// The process exits with status 1 whenever a run records any error.
package cmd
