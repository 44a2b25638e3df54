// Package scheduler runs flows: it expands nodes into task instances, submits
// them to the run's worker pool and decides, one completion at a time, which
// successors run next.
//
// # How It Works
//
// A run starts by dispatching the root node. Dispatching a node:
//  1. passes straight through to the successors when the node has no shape,
//  2. evaluates the guard of the edge that led to it,
//  3. looks up the handler registered for the node's shape,
//  4. resolves the loop range from the node's loop_* keys,
//  5. builds one task per iteration with its own copy of the variables and
//     submits it to the pool (async handlers) or runs it inline (sync ones).
//
// Every task leaves a future in the run's pending queue. A single coordinator
// goroutine polls that queue, takes the settled future preferred by the
// submission strategy, decrements the node's pending counter and, when the
// handler allows it, dispatches the node's successors with the task's
// variables. The run ends when the queue is empty.
//
// # Failure Handling
//
//   - Handler errors and panics are stored in the task variables under "ex"
//     and never abort the run. Edges routed "on_error" or "on_success" test it.
//   - A shape without a handler stops the run.
//   - A loop or guard expression that fails to evaluate means zero iterations
//     or a closed edge.
//   - More task executions than the dead-cycle ceiling stop the run.
//
// Stopping is advisory: in-flight handlers finish, queued tasks drain without
// running their handlers, and the after-end listeners still fire.
package scheduler
