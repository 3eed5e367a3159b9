// Package domain contains the core entities and value objects for pixdaq.
//
// This package has no dependencies on infrastructure concerns (serial ports,
// file system, logging) and contains only the data model shared by the
// acquisition and decode halves of the system.
//
// # Entities
//
//   - [RawFrame]: one accepted readout buffer, as persisted to the frame log
//   - [RunConfig]: immutable parameters of a single acquisition run
//   - [HitRecord]: one decoded detector hit
//   - [RunStatus]: persisted progress of a run, used as a completion marker
package domain
