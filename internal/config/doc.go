// Package config defines the analysis configuration struct, its defaults, and
// eager validation.
//
// Configuration is always passed explicitly into constructors; the package
// holds no mutable process-wide state. ValidateConfig is a pure function
// returning field-level errors, and Sanitize offers a degrade-with-warnings
// alternative for callers that prefer substituting defaults over rejecting
// the run.
package config
