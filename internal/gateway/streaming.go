package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/af-corp/relay/internal/httputil"
	"github.com/af-corp/relay/internal/types"
)

// streamChunkWords is how many words each re-emitted delta carries.
const streamChunkWords = 8

type streamChunk struct {
	ID      string       `json:"id"`
	Backend string       `json:"backend"`
	Model   string       `json:"model"`
	Delta   string       `json:"delta"`
	Done    bool         `json:"done,omitempty"`
	Usage   *types.Usage `json:"usage,omitempty"`
}

// streamText re-emits a completed response as server-sent events: text deltas,
// a final chunk carrying usage, then [DONE]. Backends are always called
// without streaming, so the full text is known up front.
func streamText(w http.ResponseWriter, reqID string, resp *types.CompletionResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(c streamChunk) {
		data, _ := json.Marshal(c)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for _, delta := range splitDeltas(resp.Text, streamChunkWords) {
		emit(streamChunk{ID: resp.ID, Backend: resp.Backend, Model: resp.Model, Delta: delta})
	}
	usage := resp.Usage
	emit(streamChunk{ID: resp.ID, Backend: resp.Backend, Model: resp.Model, Done: true, Usage: &usage})

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// splitDeltas cuts text into pieces of n words, keeping the original spacing
// so the pieces concatenate back to text.
func splitDeltas(text string, n int) []string {
	if text == "" {
		return nil
	}
	words := strings.SplitAfter(text, " ")
	var out []string
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		out = append(out, strings.Join(words[i:end], ""))
	}
	return out
}
