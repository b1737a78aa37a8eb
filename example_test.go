package mindgraph_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/mindgraph"
	"github.com/aretw0/mindgraph/pkg/adapters/modeltest"
	"github.com/aretw0/mindgraph/pkg/domain"
)

// ExampleEngine_Submit runs a conversation against the echo model, which
// needs no credentials.
func ExampleEngine_Submit() {
	eng, err := mindgraph.New(mindgraph.WithModel(modeltest.NewEcho()))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	me := domain.RunContext{UserID: "me"}
	answer, err := eng.Submit(ctx, "demo", "hello", me)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(answer.Content)

	history, _ := eng.History(ctx, "demo", me)
	fmt.Println(len(history), "messages")
	// Output:
	// You said: hello
	// 2 messages
}

// ExampleEngine_SubmitStreaming prints the raw data stream frames.
func ExampleEngine_SubmitStreaming() {
	model := modeltest.New(modeltest.Turn{Text: "Hi there", Usage: domain.Usage{PromptTokens: 2, CompletionTokens: 2}})
	eng, err := mindgraph.New(mindgraph.WithModel(model))
	if err != nil {
		log.Fatal(err)
	}

	for f := range eng.SubmitStreaming(context.Background(), "demo", "hello", domain.RunContext{}) {
		fmt.Print(f)
	}
	// Output:
	// 8:[{"threadId":"demo"}]
	// 0:"Hi "
	// 0:"there"
	// e:{"finishReason":"stop","isContinued":false,"usage":{"promptTokens":2,"completionTokens":2}}
}
