// Package policy holds the immutable conversion policy shared by every
// PengyStream component.
//
// A Policy is built once from configuration at startup and passed by value,
// so no component can observe another mutating it. Besides the thresholds and
// codec targets, it owns the naming convention for converted files: the
// expected output path is always a sibling of the source with the configured
// suffix inserted before the extension, and the source can be recovered from
// any output by stripping that suffix again. Reconciliation depends on that
// round trip, so every path decision should go through these helpers.
package policy
