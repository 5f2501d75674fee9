// Package workflow runs the worker pool that drives jobs through the episode
// pipeline. Workers claim jobs from the queue under a lease, execute the stage
// handler for the job's current stage, and persist the outcome with optimistic
// versioning. A reclaimer returns leases lost to crashes, and a retry policy
// decides between rescheduling, failing, and abandoning superseded work.
package workflow
