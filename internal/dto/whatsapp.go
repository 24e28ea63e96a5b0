package dto

// WebhookPayload is the body Meta posts to the webhook.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type WebhookMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *WebhookText        `json:"text,omitempty"`
	Image       *WebhookMedia       `json:"image,omitempty"`
	Audio       *WebhookMedia       `json:"audio,omitempty"`
	Document    *WebhookMedia       `json:"document,omitempty"`
	Interactive *WebhookInteractive `json:"interactive,omitempty"`
	Button      *WebhookButton      `json:"button,omitempty"`
}

type WebhookText struct {
	Body string `json:"body"`
}

type WebhookMedia struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	Voice    bool   `json:"voice"`
}

type WebhookInteractive struct {
	Type        string         `json:"type"`
	ListReply   *WebhookChoice `json:"list_reply,omitempty"`
	ButtonReply *WebhookChoice `json:"button_reply,omitempty"`
}

type WebhookChoice struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type WebhookButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// OutboundMessage is the Cloud API send-message body.
type OutboundMessage struct {
	MessagingProduct string               `json:"messaging_product"`
	RecipientType    string               `json:"recipient_type"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *OutboundText        `json:"text,omitempty"`
	Interactive      *OutboundInteractive `json:"interactive,omitempty"`
}

type OutboundText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type OutboundInteractive struct {
	Type   string          `json:"type"`
	Header *OutboundHeader `json:"header,omitempty"`
	Body   OutboundBody    `json:"body"`
	Action OutboundAction  `json:"action"`
}

type OutboundHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type OutboundBody struct {
	Text string `json:"text"`
}

type OutboundAction struct {
	Button   string            `json:"button"`
	Sections []OutboundSection `json:"sections"`
}

type OutboundSection struct {
	Title string        `json:"title,omitempty"`
	Rows  []OutboundRow `json:"rows"`
}

type OutboundRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

type GraphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// WebhookAck is returned for every accepted delivery.
type WebhookAck struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
}
