package format

import (
	"regexp"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

// UTF16Len calculates the UTF-16 length of a string
// This is required because Telegram uses UTF-16 code units for entity offsets/lengths
func UTF16Len(s string) int {
	length := 0
	for _, b := range []byte(s) {
		if (b & 0xc0) != 0x80 {
			if b >= 0xf0 {
				length += 2 // Non-BMP characters (surrogate pairs)
			} else {
				length += 1
			}
		}
	}
	return length
}

var boldRe = regexp.MustCompile(`\*([^*\n]+?)\*`)

// ParseWhatsApp converts WhatsApp *bold* markup into Telegram bold entities
// so the same notification text renders on both channels.
func ParseWhatsApp(text string) ParseResult {
	var entities []tgbotapi.MessageEntity
	result := text

	for {
		loc := boldRe.FindStringSubmatchIndex(result)
		if loc == nil {
			break
		}
		fullStart, fullEnd := loc[0], loc[1]
		inner := result[loc[2]:loc[3]]

		entities = append(entities, tgbotapi.MessageEntity{
			Type:   "bold",
			Offset: UTF16Len(result[:fullStart]),
			Length: UTF16Len(inner),
		})

		// Remove the markers but keep the inner text
		result = result[:fullStart] + inner + result[fullEnd:]
	}

	return ParseResult{Text: result, Entities: entities}
}
