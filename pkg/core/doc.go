// Package core defines the shared language of the leapdoc system.
//
// This package contains:
//   - Domain entities (Fragment, ValidationIssue, Run, RowRun)
//   - Layout and granularity enumerations
//   - The error taxonomy shared by every component
//   - Service interfaces (Store)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
