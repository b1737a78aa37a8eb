/*
Package domain contains the core domain models of the mindgraph engine.

It defines the entities shared by the graph scheduler, the tool-calling loop,
the persistence adapters and the streaming encoder. This package is kept pure
and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Message: One entry of a conversation history (human, assistant or tool).
  - ToolCall / ToolResult: A model request to invoke a tool and its outcome.
  - Checkpoint: The immutable snapshot of a thread taken after every step.
  - StreamEvent: A transient progress notification delivered while a run executes.
  - RunContext: Caller-supplied handles passed through to tools unchanged.
*/
package domain
