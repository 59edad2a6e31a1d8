// Package scheduler iterates linkage regions through the element and
// transcript collaborators under a per-region deadline, and commits each
// region's records to the output multiplexer as one unit.
//
// The only contracts to implement are ElementIdentifier and
// TranscriptAssembler. This keeps the scheduler swappable and testable.
package scheduler
