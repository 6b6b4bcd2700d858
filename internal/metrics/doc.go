// Package metrics provides internal prometheus metrics collection for the
// dispatch engine. This package is internal and should not be imported by
// external projects.
package metrics
