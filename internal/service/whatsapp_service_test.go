package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pagado/internal/dto"
	"pagado/internal/models"
	"pagado/pkg/config"

	"go.uber.org/zap"
)

func newTestWhatsApp(t *testing.T, handler http.HandlerFunc) *WhatsAppService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWhatsAppService(&config.WhatsAppConfig{
		AccessToken:   "token",
		PhoneNumberID: "123",
		APIVersion:    "v22.0",
		BaseURL:       srv.URL,
	}, zap.NewNop())
}

func TestWhatsAppSendText(t *testing.T) {
	var got dto.OutboundMessage
	wa := newTestWhatsApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v22.0/123/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})

	if err := wa.SendText(context.Background(), "5491100000000", "hola"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if got.Type != "text" || got.Text == nil || got.Text.Body != "hola" || got.To != "5491100000000" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWhatsAppSendListTruncates(t *testing.T) {
	var got dto.OutboundMessage
	wa := newTestWhatsApp(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	})

	list := &models.ListMessage{
		Header: "Cuenta",
		Body:   "Elige",
		Button: "Cuentas",
		Sections: []models.ListSection{{Rows: []models.ListRow{
			{ID: "acc_1", Title: "Caja de ahorro en pesos del Banco Nación"},
		}}},
	}
	if err := wa.SendList(context.Background(), "u1", list); err != nil {
		t.Fatalf("SendList() error = %v", err)
	}
	if got.Interactive == nil || got.Interactive.Type != "list" {
		t.Fatalf("payload = %+v", got)
	}
	row := got.Interactive.Action.Sections[0].Rows[0]
	if row.ID != "acc_1" || len([]rune(row.Title)) != maxRowTitleLen {
		t.Errorf("row = %+v", row)
	}
}

func TestWhatsAppGraphError(t *testing.T) {
	wa := newTestWhatsApp(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
	})

	err := wa.SendText(context.Background(), "u1", "hola")
	if err == nil || !strings.Contains(err.Error(), "Invalid parameter") {
		t.Errorf("SendText() error = %v", err)
	}
}

func TestWhatsAppDownloadMedia(t *testing.T) {
	var srvURL string
	wa := newTestWhatsApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v22.0/media-1":
			json.NewEncoder(w).Encode(dto.MediaInfo{ID: "media-1", URL: srvURL + "/files/media-1", MIMEType: "image/jpeg"})
		case "/files/media-1":
			if r.Header.Get("Authorization") != "Bearer token" {
				t.Error("media download must be authenticated")
			}
			io.WriteString(w, "jpeg-bytes")
		default:
			http.NotFound(w, r)
		}
	})
	srvURL = strings.TrimSuffix(wa.apiURL, "/v22.0")

	media, err := wa.DownloadMedia(context.Background(), &models.Media{ID: "media-1"})
	if err != nil {
		t.Fatalf("DownloadMedia() error = %v", err)
	}
	if string(media.Data) != "jpeg-bytes" || media.MIMEType != "image/jpeg" {
		t.Errorf("media = %+v", media)
	}

	if _, err := wa.DownloadMedia(context.Background(), &models.Media{ID: "missing"}); err == nil {
		t.Error("unknown media should fail")
	}
}

func TestParseWebhook(t *testing.T) {
	raw := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"id": "1", "changes": [{"field": "messages", "value": {
	    "messaging_product": "whatsapp",
	    "messages": [
	      {"from": "549111", "id": "m1", "type": "text", "text": {"body": "Gasté 5000"}},
	      {"from": "549111", "id": "m2", "type": "interactive", "interactive": {"type": "list_reply", "list_reply": {"id": "acc_a1", "title": "Banco"}}},
	      {"from": "549111", "id": "m3", "type": "audio", "audio": {"id": "aud-1", "mime_type": "audio/ogg; codecs=opus", "voice": true}},
	      {"from": "549111", "id": "m4", "type": "image", "image": {"id": "img-1", "mime_type": "image/jpeg", "caption": "almuerzo"}},
	      {"from": "549111", "id": "m5", "type": "document", "document": {"id": "doc-1", "mime_type": "application/pdf", "filename": "factura.pdf"}},
	      {"from": "549111", "id": "m6", "type": "sticker"}
	    ]}}]}]
	}`
	var payload dto.WebhookPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	events := ParseWebhook(&payload)
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5 (sticker skipped)", len(events))
	}

	tests := []struct {
		modality models.Modality
		text     string
		replyID  string
		mediaID  string
	}{
		{models.ModalityText, "Gasté 5000", "", ""},
		{models.ModalityText, "Banco", "acc_a1", ""},
		{models.ModalityVoice, "", "", "aud-1"},
		{models.ModalityImage, "almuerzo", "", "img-1"},
		{models.ModalityDocument, "", "", "doc-1"},
	}
	for i, tt := range tests {
		ev := events[i]
		if ev.UserID != "549111" || ev.Modality != tt.modality || ev.Text != tt.text || ev.ReplyID != tt.replyID {
			t.Errorf("event %d = %+v", i, ev)
		}
		if tt.mediaID != "" && (ev.Media == nil || ev.Media.ID != tt.mediaID) {
			t.Errorf("event %d media = %+v", i, ev.Media)
		}
	}
	if events[4].Media.Filename != "factura.pdf" {
		t.Errorf("document filename = %q", events[4].Media.Filename)
	}
}
