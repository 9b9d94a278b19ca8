package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// maxMessageLen is the Bot API limit for one text message, in characters.
const maxMessageLen = 4096

// sender is the part of the Bot API the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type botAPISender struct{ api *tgbotapi.BotAPI }

func (s botAPISender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.api.Send(c)
}

// splitMessage cuts a persona reply into chunks Telegram accepts. Cuts fall on
// the last line break or space in the second half of a chunk, else mid-word.
func splitMessage(text string, limit int) []string {
	var parts []string
	rest := []rune(text)
	for len(rest) > limit {
		cut := lastBreak(rest[:limit], '\n')
		if cut <= limit/2 {
			cut = lastBreak(rest[:limit], ' ')
		}
		if cut <= limit/2 {
			cut = limit
		}
		parts = append(parts, string(trimBreaks(rest[:cut], false)))
		rest = trimBreaks(rest[cut:], true)
	}
	if len(rest) > 0 {
		parts = append(parts, string(rest))
	}
	return parts
}

func lastBreak(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

func trimBreaks(rs []rune, left bool) []rune {
	isBreak := func(r rune) bool { return r == '\n' || r == ' ' }
	if left {
		for len(rs) > 0 && isBreak(rs[0]) {
			rs = rs[1:]
		}
		return rs
	}
	for len(rs) > 0 && isBreak(rs[len(rs)-1]) {
		rs = rs[:len(rs)-1]
	}
	return rs
}
