package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/stream"
)

// Streamer is the engine surface the chat loop drives.
type Streamer interface {
	SubmitStreaming(ctx context.Context, threadID, input string, rc domain.RunContext) <-chan stream.Frame
}

// ChatOptions configures RunChat.
type ChatOptions struct {
	ThreadID string
	UserID   string
	In       io.Reader
	Out      io.Writer
	// Render formats a whole answer, for example as terminal markdown.
	// When nil, text is written as it streams.
	Render func(string) (string, error)
	// Quiet hides tool activity.
	Quiet bool
}

var exitCommands = map[string]bool{"q": true, "quit": true, "exit": true}

// RunChat reads one message per line and streams each answer. It returns
// nil at end of input or on an exit command.
func RunChat(ctx context.Context, engine Streamer, opts ChatOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(opts.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	rc := domain.RunContext{UserID: opts.UserID}
	for {
		fmt.Fprint(opts.Out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.Out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(opts.Out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			return nil
		}
		if err := answer(ctx, engine, opts.ThreadID, rc, line, opts); err != nil {
			return err
		}
	}
}

// answer writes one streamed reply. Run errors are shown and the loop goes
// on; only a cancelled context stops it.
func answer(ctx context.Context, engine Streamer, threadID string, rc domain.RunContext, input string, opts ChatOptions) error {
	var text strings.Builder
	for f := range engine.SubmitStreaming(ctx, threadID, input, rc) {
		switch f.Tag {
		case stream.TagText:
			s, err := f.Text()
			if err != nil {
				continue
			}
			if opts.Render == nil {
				fmt.Fprint(opts.Out, s)
			}
			text.WriteString(s)
		case stream.TagToolCall:
			if opts.Quiet {
				continue
			}
			var call stream.ToolCall
			if err := json.Unmarshal(f.Payload, &call); err == nil {
				printSystemMessage(opts.Out, "Calling %s", call.ToolName)
			}
		case stream.TagFinish:
			flush(opts, text.String())
			return nil
		case stream.TagError, stream.TagErrorAlt:
			flush(opts, text.String())
			printSystemMessage(opts.Out, "Error: %v", f.Err())
			return nil
		}
	}
	return ctx.Err()
}

func flush(opts ChatOptions, text string) {
	if opts.Render == nil {
		if text != "" {
			fmt.Fprintln(opts.Out)
		}
		return
	}
	out, err := opts.Render(text)
	if err != nil {
		out = text + "\n"
	}
	fmt.Fprint(opts.Out, out)
}
