package telegram

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text: %q", got)
	}
	if got := splitMessage("", 10); len(got) != 0 {
		t.Fatalf("empty text: %q", got)
	}

	got := splitMessage(strings.Repeat("x", 25), 10)
	if len(got) != 3 || got[0] != strings.Repeat("x", 10) || got[2] != "xxxxx" {
		t.Fatalf("hard cut: %q", got)
	}

	got = splitMessage("hello there general kenobi", 12)
	if strings.Join(got, "|") != "hello there|general|kenobi" {
		t.Fatalf("word cut: %q", got)
	}

	got = splitMessage(strings.Repeat("ж", 12), 5)
	for _, p := range got {
		if !utf8.ValidString(p) || utf8.RuneCountInString(p) > 5 {
			t.Fatalf("chunk not rune safe: %q", p)
		}
	}
}

func TestLongReplyIsSentInParts(t *testing.T) {
	reply := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 3000)
	b, fs := newTestBot(t, &fakeReplier{replies: []string{reply}}, nil)
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMsg(candidateID, "hi")})

	got := fs.to(candidateID)
	if len(got) != 2 || got[0] != strings.Repeat("a", 3000) || got[1] != strings.Repeat("b", 3000) {
		t.Fatalf("reply not split on the paragraph break: %d parts", len(got))
	}
}
