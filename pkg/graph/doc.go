/*
Package graph implements directed-graph execution with conditional routing
and checkpointed persistence.

A graph is declared with a Builder over a caller-defined state type S, whose
merge rules come from a Schema (Append, Replace). Compile validates
the definition and returns an immutable Compiled graph that can be shared by
any number of concurrent executions.

An Executor runs a Compiled graph in super-steps: every node of the current
frontier runs concurrently, the executor waits for all of them, folds their
partial updates into the state in frontier order, evaluates outgoing edges
against the merged state and appends a checkpoint before moving on. A failed
step merges nothing and writes nothing, so a run can always be resumed from
its latest checkpoint.

	g, err := graph.NewBuilder(schema).
		AddNode("model-call", callModel).
		AddNode("tool-execution", runTools).
		AddEdge(graph.Start, "model-call").
		AddConditionalEdges("model-call", route, map[string]string{
			"continue": "tool-execution",
			"end":      graph.End,
		}).
		AddEdge("tool-execution", "model-call").
		Compile()
*/
package graph
