// Package writers serializes the final bin assignment.
//
// Design:
//   - Each output format registers one handler under its name.
//   - Handlers see only assign.Table; clustering and I/O layout stay elsewhere.
//   - JSON goes through pkg/api (v1) for a stable wire format.
package writers
