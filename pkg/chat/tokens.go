package chat

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/aretw0/mindgraph/pkg/domain"
)

func init() {
	// Encodings ship with the binary instead of being downloaded on first use.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TiktokenCounter counts tokens with the BPE encoding of an OpenAI model.
// Unknown models use cl100k_base.
func TiktokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return nil, fmt.Errorf("load token encoding: %w", err)
		}
	}

	var mu sync.Mutex
	tokens := func(s string) int {
		if s == "" {
			return 0
		}
		mu.Lock()
		defer mu.Unlock()
		return len(enc.Encode(s, nil, nil))
	}

	return func(m domain.Message) int {
		n := tokens(m.Content) + messageOverhead
		for _, c := range m.ToolCalls {
			n += tokens(c.Name)
			if b, err := json.Marshal(c.Args); err == nil {
				n += tokens(string(b))
			}
		}
		return n
	}, nil
}
