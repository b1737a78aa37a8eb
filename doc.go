/*
Package mindgraph runs durable, streaming conversations with a tool-calling
assistant and builds self-reflection graphs from a user's journal.

Conversations are graphs executed by pkg/graph: a model-call node and a
tool-execution node loop until the model answers without calling tools. Every
step is checkpointed under the conversation's thread id, so a thread survives
process restarts and continues from its latest checkpoint.

# Usage

	eng, err := mindgraph.New(
		mindgraph.WithModel(model),
		mindgraph.WithStore(store),
		mindgraph.WithTools(thoughts.Tools(corpus, corpus)...),
	)
	if err != nil {
		log.Fatal(err)
	}

	// Blocking call.
	answer, err := eng.Submit(ctx, "thread-1", "What did I write about sleep?", domain.RunContext{UserID: "u1"})

	// Streaming call. The channel always ends with a finish or an error frame.
	for f := range eng.SubmitStreaming(ctx, "thread-1", "And about work?", rc) {
		fmt.Print(f)
	}

Reflect runs the parallel theme, emotion and goal extractors over the same
message and returns the cross-referenced result graph. Running Reflect again on
the same thread revises the prior result instead of starting over.
*/
package mindgraph
