// Package types defines the entity records, the storage engine contract,
// configuration, and the standard error types shared by every arcstore
// component.
//
// Records are plain values. Callers build them with struct literals and
// check them with Validate before they reach a storage engine.
package types
