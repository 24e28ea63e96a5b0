package models

// OutgoingMessage is either plain text or an interactive list.
type OutgoingMessage struct {
	Text string
	List *ListMessage
}

type ListMessage struct {
	Header   string
	Body     string
	Button   string
	Sections []ListSection
}

type ListSection struct {
	Title string
	Rows  []ListRow
}

type ListRow struct {
	ID          string
	Title       string
	Description string
}

func Text(text string) OutgoingMessage {
	return OutgoingMessage{Text: text}
}
