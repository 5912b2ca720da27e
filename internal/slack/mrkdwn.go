package slack

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Slack sections reject text over 3000 characters, so long replies are split
// across several section blocks.
const sectionLimit = 3000

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	h1Re        = regexp.MustCompile(`(?m)^# (.+)$`)
	h2Re        = regexp.MustCompile(`(?m)^## (.+)$`)
	h3Re        = regexp.MustCompile(`(?m)^### (.+)$`)
	bulletRe    = regexp.MustCompile(`(?m)^\* (.+)$`)
)

// AdjustMarkdown rewrites common markdown into Slack mrkdwn: double-asterisk
// emphasis becomes single, headers become bold lines, "*" bullets become
// "•". Fenced code blocks are left untouched.
func AdjustMarkdown(text string) string {
	if text == "" {
		return ""
	}

	codeBlocks := codeBlockRe.FindAllString(text, -1)
	for i, block := range codeBlocks {
		text = strings.Replace(text, block, fmt.Sprintf("__CODE_BLOCK_%d__", i), 1)
	}

	text = boldRe.ReplaceAllString(text, "*$1*")

	text = h1Re.ReplaceAllString(text, "*$1*")
	text = h2Re.ReplaceAllString(text, "**$1**")
	text = h3Re.ReplaceAllString(text, "***$1***")

	// Monospace table separators so columns stay readable.
	text = strings.ReplaceAll(text, "|", "`|`")

	text = bulletRe.ReplaceAllString(text, "• $1")

	for i := range codeBlocks {
		text = strings.Replace(text, fmt.Sprintf("__CODE_BLOCK_%d__", i), codeBlocks[i], 1)
	}

	return text
}

type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

func divider() Block {
	return Block{Type: "divider"}
}

func section(text string) Block {
	return Block{Type: "section", Text: &TextObject{Type: "mrkdwn", Text: text}}
}

// FormatBlocks renders mrkdwn strings as Block Kit sections separated by
// dividers, chunking each string under the section size limit. Cuts land on
// rune boundaries so a section is never invalid UTF-8.
func FormatBlocks(responses ...string) []Block {
	var blocks []Block
	for _, response := range responses {
		blocks = append(blocks, divider())
		for len(response) > sectionLimit {
			cut := sectionLimit
			for cut > 0 && !utf8.RuneStart(response[cut]) {
				cut--
			}
			blocks = append(blocks, section(response[:cut]))
			response = response[cut:]
		}
		blocks = append(blocks, section(response))
	}
	blocks = append(blocks, divider())
	return blocks
}
