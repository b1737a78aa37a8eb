/*
Package ports defines the driven ports (interfaces) of the mindgraph engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends, model providers and tools.

# Key Interfaces

  - CheckpointStore: Append-only persistence of per-step checkpoints, keyed by thread.
  - DistributedLocker: Distributed locking for the single-writer thread lease.
  - Model: A language model able to stream text and request tool calls.
  - Tool: An external capability invoked by the tool-calling loop.
  - Retriever / ThoughtReader: Lookups over the caller's journal entries.

RunCheckpointStoreContract is a reusable test suite every CheckpointStore adapter runs.
*/
package ports
