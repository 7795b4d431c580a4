package messaging

// WhatsApp Cloud API webhook envelope. Deliveries arrive as
// entry[].changes[].value with zero or more messages and/or status events.

type WebhookEnvelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
	Image     *Media `json:"image,omitempty"`
	Document  *Media `json:"document,omitempty"`
	Audio     *Media `json:"audio,omitempty"`
	Video     *Media `json:"video,omitempty"`
	Sticker   *Media `json:"sticker,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Inbound is the flattened shape the conversation engine consumes: one
// per user message, never per status event.
type Inbound struct {
	MessageID string
	SenderID  string
	Text      string
	HasMedia  bool
	MediaKind string
}

func (m *Message) media() *Media {
	switch m.Type {
	case "image":
		return m.Image
	case "document":
		return m.Document
	case "audio":
		return m.Audio
	case "video":
		return m.Video
	case "sticker":
		return m.Sticker
	}
	return nil
}

func (m *Message) isMedia() bool {
	switch m.Type {
	case "image", "document", "audio", "video", "sticker":
		return true
	}
	return false
}

// InboundMessages flattens the envelope, dropping status-only deliveries.
// Media captions travel as the message text so a receipt photo captioned
// with an operation id still reaches the id extractor.
func (e *WebhookEnvelope) InboundMessages() []Inbound {
	var out []Inbound
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				in := Inbound{
					MessageID: msg.ID,
					SenderID:  msg.From,
				}
				if msg.Text != nil {
					in.Text = msg.Text.Body
				}
				if msg.isMedia() {
					in.HasMedia = true
					in.MediaKind = msg.Type
					if media := msg.media(); media != nil && media.Caption != "" {
						in.Text = media.Caption
					}
				}
				if in.SenderID == "" || in.MessageID == "" {
					continue
				}
				out = append(out, in)
			}
		}
	}
	return out
}
