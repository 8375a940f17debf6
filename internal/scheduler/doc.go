// Package scheduler ties the post store and the platform publishers together.
//
// Service owns the in-memory post collection. Every mutation (create,
// execute, cancel) takes the store lock, reloads the stored collection,
// applies the change by id and saves before it returns, so a concurrent CLI
// invocation and the watch loop never overwrite each other.
//
// Execution is at-most-once: a post is marked posted before the save, and a
// post whose save failed stays posted in memory and is written again on the
// next reload, so a later tick never publishes it again.
package scheduler
