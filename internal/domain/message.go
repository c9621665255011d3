package domain

// FormattedMessage is the rendering of one NotificationEvent: a single log
// line and the Slack Block Kit blocks for the chat message.
type FormattedMessage struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
}

// Block is a Slack layout block. Only section and context blocks are produced.
type Block struct {
	Type     string       `json:"type"`
	Text     *TextObject  `json:"text,omitempty"`
	Fields   []TextObject `json:"fields,omitempty"`
	Elements []TextObject `json:"elements,omitempty"`
}

// TextObject is a Slack composition text object.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	BlockSection = "section"
	BlockContext = "context"
	TextMarkdown = "mrkdwn"
)

// Markdown builds an mrkdwn text object.
func Markdown(text string) TextObject {
	return TextObject{Type: TextMarkdown, Text: text}
}
