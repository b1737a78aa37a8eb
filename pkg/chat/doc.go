/*
Package chat implements the tool-calling conversation loop as a two-node graph.

	START --> model-call
	model-call -. "continue" .-> tool-execution
	model-call -. "end" .-> END
	tool-execution --> model-call

The model-call node sends the trimmed history, prefixed with the system
prompt, to the model and appends its answer. When that answer requests tools,
tool-execution invokes them concurrently through the registry and appends one
tool message per call. Tool failures are reported to the model as error results
and never abort the run.

Text fragments, tool starts and tool results are published as stream events
through graph.Emit while the run progresses.
*/
package chat
