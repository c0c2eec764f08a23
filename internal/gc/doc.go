// Package gc implements an incremental, non-moving, tri-color mark-and-sweep
// collector for engine-managed objects.
//
// Objects live in an arena owned by a Collector and are addressed through
// generation-checked Handles. Each Go type placed in the arena is described by
// a ClassDescriptor whose flattened reference table tells the marker where the
// Handle and Tracked fields of an instance are.
//
// The collector runs on the mutator's goroutine. Work happens only inside
// Step, StepN, FullGC and FreeAll; nothing runs in the background. Mutator
// code has two obligations:
//
//   - every store of a Handle into a field owned by a managed object must be
//     followed by WriteBarrier(holder, referent), and every store into
//     non-object engine state that the collector learns about through a root
//     marker must be followed by WriteBarrierRoot(referent);
//   - every read of a tolerant reference goes through Tracked.Get, which runs
//     the read barrier and yields nil for objects that asked to die.
//
// A cycle moves through StatePause, StatePropagate, StateSweep and
// StateFinalize. Dead objects are unlinked during the sweep walk and queued;
// their OnDestroy hooks run later, a few per step, so teardown code never
// runs while the object list is being walked.
package gc
