package embedder

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func benchWindows(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = strings.Repeat(fmt.Sprintf("if err := step%d(ctx); err != nil { return err } ", i), 5)
	}
	return texts
}

func BenchmarkLocalEmbed(b *testing.B) {
	ctx := context.Background()
	for _, n := range []int{1, 10, 50} {
		texts := benchWindows(n)

		b.Run(fmt.Sprintf("n=%d/cold", n), func(b *testing.B) {
			p, _ := NewLocalProvider(Config{}, nil)
			for b.Loop() {
				if _, err := p.Embed(ctx, texts); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("n=%d/cached", n), func(b *testing.B) {
			p, _ := NewLocalProvider(Config{}, NewCache(n))
			if _, err := p.Embed(ctx, texts); err != nil {
				b.Fatal(err)
			}
			for b.Loop() {
				if _, err := p.Embed(ctx, texts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTokenize(b *testing.B) {
	text := benchWindows(1)[0]
	for b.Loop() {
		_ = tokenize(text)
	}
}
