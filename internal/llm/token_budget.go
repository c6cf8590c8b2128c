package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/wolfman30/medibot/pkg/logging"
)

// TokenBudget caps how much retrieved context is sent to a provider.
type TokenBudget struct {
	max    int
	logger *logging.Logger
	load   func() (*tiktoken.Tiktoken, error)

	once   sync.Once
	encode func(string) []int
	decode func([]int) string
}

var loadEncoding = sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding("cl100k_base")
})

// NewTokenBudget counts with the cl100k_base encoding, falling back to a
// four-characters-per-token estimate when the encoding cannot be loaded.
// The encoding is loaded on first use, not here.
func NewTokenBudget(maxTokens int, logger *logging.Logger) *TokenBudget {
	return &TokenBudget{max: maxTokens, logger: logger, load: loadEncoding}
}

func (b *TokenBudget) encoder() {
	b.once.Do(func() {
		if b.load == nil {
			return
		}
		tke, err := b.load()
		if err != nil || tke == nil {
			if b.logger != nil {
				b.logger.Warn("token encoding unavailable, estimating four characters per token", "encoding", "cl100k_base", "error", err)
			}
			return
		}
		b.encode = func(s string) []int { return tke.Encode(s, nil, nil) }
		b.decode = tke.Decode
	})
}

// Count returns the token count of s.
func (b *TokenBudget) Count(s string) int {
	b.encoder()
	if b.encode == nil {
		return (len(s) + 3) / 4
	}
	return len(b.encode(s))
}

// Fit keeps passages in order until the budget is spent. A passage that
// would overflow is truncated if nothing has been kept yet, otherwise it
// and everything after it is dropped.
func (b *TokenBudget) Fit(passages []string) []string {
	if b == nil || b.max <= 0 {
		return passages
	}
	used := 0
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		n := b.Count(p)
		if used+n <= b.max {
			out = append(out, p)
			used += n
			continue
		}
		if len(out) == 0 {
			out = append(out, b.truncate(p, b.max))
		}
		break
	}
	return out
}

func (b *TokenBudget) truncate(s string, tokens int) string {
	b.encoder()
	if b.encode == nil {
		if limit := tokens * 4; limit < len(s) {
			return strings.ToValidUTF8(s[:limit], "")
		}
		return s
	}
	enc := b.encode(s)
	if len(enc) <= tokens {
		return s
	}
	return b.decode(enc[:tokens])
}
