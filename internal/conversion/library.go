// Package conversion implements the Conversion Worker (spec §4.4): format
// detection, invoking the external NWB conversion library, and managing
// output file versioning across retries. The conversion library itself is an
// out-of-scope external collaborator (spec §1); only its contract is
// implemented here, behind the Library interface.
package conversion

import "context"

// ProgressFunc receives a percentage and a short textual step description
// while the external conversion callable runs (spec §4.4 step 3: "stream
// progress updates through the message bus").
type ProgressFunc func(percent int, step string)

// Library is the contract the external NWB conversion callable exposes:
// given an input path, a detected format, nested metadata, and the versioned
// output path this attempt must write to (spec §4.4 step 2's "_v2", "_v3"...
// suffixing), it writes an NWB file and reports progress along the way.
type Library interface {
	// Convert writes an NWB file to outputPath, reporting progress via
	// onProgress, and returns the path it actually wrote to (normally
	// outputPath itself; implementations that cannot honor a requested name
	// may return a different path, which the caller then treats as
	// authoritative).
	Convert(ctx context.Context, path, format, outputPath string, metadata map[string]any, onProgress ProgressFunc) (writtenPath string, err error)
}
