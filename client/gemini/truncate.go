package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// ErrEncodingLoading is returned by TiktokenCounter while its encoding is
// still being fetched.
var ErrEncodingLoading = errors.New("tiktoken encoding is loading")

// TiktokenCounter counts tokens with a tiktoken encoding. The encoding is
// fetched once in the background on first use; until it is ready
// CountTokens fails fast with ErrEncodingLoading.
type TiktokenCounter struct {
	encoding    string
	getEncoding func(name string) (*tiktoken.Tiktoken, error)

	once    sync.Once
	done    chan struct{}
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenCounter creates a counter for the named encoding.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	return &TiktokenCounter{
		encoding:    encoding,
		getEncoding: tiktoken.GetEncoding,
		done:        make(chan struct{}),
	}
}

func (t *TiktokenCounter) start() {
	t.once.Do(func() {
		go func() {
			defer close(t.done)
			enc, err := t.getEncoding(t.encoding)
			if err != nil {
				t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
				return
			}
			t.enc = enc
		}()
	})
}

// Load starts fetching the encoding and waits until it is ready or ctx is
// done. An abandoned fetch keeps running and serves later calls.
func (t *TiktokenCounter) Load(ctx context.Context) error {
	t.start()
	select {
	case <-t.done:
		return t.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CountTokens implements TokenCounter.
func (t *TiktokenCounter) CountTokens(text string) (int, error) {
	t.start()
	select {
	case <-t.done:
	default:
		return 0, ErrEncodingLoading
	}
	if t.initErr != nil {
		return 0, t.initErr
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Truncate drops the oldest transcript lines until the rest fits within
// maxTokens. The newest line is always kept. When counter fails the last
// fallbackLines lines are kept instead.
func Truncate(text string, maxTokens, fallbackLines int, counter TokenCounter) string {
	if maxTokens <= 0 || text == "" {
		return text
	}

	lines := strings.Split(text, "\n")

	if counter == nil {
		return tail(lines, fallbackLines)
	}

	counts := make([]int, len(lines))
	total := 0
	for i, l := range lines {
		n, err := counter.CountTokens(l)
		if err != nil {
			return tail(lines, fallbackLines)
		}
		counts[i] = n + 1
		total += counts[i]
	}

	start := 0
	for total > maxTokens && start < len(lines)-1 {
		total -= counts[start]
		start++
	}

	return strings.Join(lines[start:], "\n")
}

func tail(lines []string, n int) string {
	if n <= 0 || n >= len(lines) {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
