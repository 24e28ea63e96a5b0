// Command console drives the conversation flow from a terminal, against an
// in-memory profile and ledger, using the configured extraction model.
package main

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pagado/internal/models"
	"pagado/internal/repository"
	"pagado/internal/service"
	"pagado/pkg/config"
	"pagado/pkg/logger"

	"go.uber.org/zap"
)

const consoleUser = "5491100000000"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(cfg.Logger.Level)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	ctx := context.Background()

	model, err := newModel(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize extraction model", zap.Error(err))
	}

	backend := newFixtureBackend()
	messenger := &consoleMessenger{out: os.Stdout}

	store := service.NewSessionStore(backend, cfg.Session.ProfileTTL, appLogger)
	gate := service.NewAuthorizationGate(nil, true)
	lifecycle := service.NewLifecycleManager(store, gate, messenger, service.ClockScheduler(), cfg.Session.InactivityTimeout, appLogger)
	defer lifecycle.Shutdown()

	conversation := service.NewConversationService(
		store,
		gate,
		lifecycle,
		service.NewExtractionService(model, service.NewOCRService(appLogger), repository.NopAuditSink{}, cfg.AI.DefaultCurrency, appLogger),
		service.NewNormalizer(cfg.AI.DefaultCurrency, appLogger),
		service.NewDisambiguationController(cfg.Session.MaxSelectionAttempts, appLogger),
		service.NewCommitter(backend, repository.NewMemoryJournal(time.Hour), cfg.AI.DefaultCurrency, appLogger),
		messenger,
		repository.NopArchive{},
		appLogger,
	)

	fmt.Println("Pagado console. Escribe un mensaje, /img|/voice|/pdf <archivo> para adjuntar, !<id> para elegir una opción de lista, /ledger o /quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/ledger":
			backend.print(os.Stdout)
			continue
		}

		ev, err := parseLine(line)
		if err != nil {
			fmt.Println("!", err)
			continue
		}

		msgCtx, cancel := context.WithTimeout(ctx, cfg.Session.MessageTimeout)
		if err := conversation.HandleEvent(msgCtx, ev); err != nil {
			appLogger.Debug("Message handling failed", zap.Error(err))
		}
		cancel()
	}
}

func parseLine(line string) (models.Event, error) {
	ev := models.Event{
		MessageID: fmt.Sprintf("console-%d", time.Now().UnixNano()),
		UserID:    consoleUser,
		Modality:  models.ModalityText,
		Text:      line,
	}

	if strings.HasPrefix(line, "!") {
		ev.ReplyID = strings.TrimPrefix(line, "!")
		ev.Text = ev.ReplyID
		return ev, nil
	}

	cmd, path, ok := strings.Cut(line, " ")
	if !ok {
		return ev, nil
	}
	var modality models.Modality
	switch cmd {
	case "/img":
		modality = models.ModalityImage
	case "/voice":
		modality = models.ModalityVoice
	case "/pdf":
		modality = models.ModalityDocument
	default:
		return ev, nil
	}

	path = strings.TrimSpace(path)
	if _, err := os.Stat(path); err != nil {
		return ev, fmt.Errorf("cannot read %s: %w", path, err)
	}
	ev.Modality = modality
	ev.Text = ""
	ev.Media = &models.Media{
		ID:       path,
		MIMEType: mime.TypeByExtension(filepath.Ext(path)),
		Filename: filepath.Base(path),
	}
	return ev, nil
}

func newModel(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (service.ExtractionModel, error) {
	if cfg.AI.Provider == "gigachat" {
		return service.NewLLMService(ctx, &cfg.GigaChat, appLogger)
	}
	return service.NewGeminiService(ctx, &cfg.Gemini, appLogger)
}

// consoleMessenger prints outgoing messages and reads media from local files.
type consoleMessenger struct {
	mu  sync.Mutex
	out *os.File
}

func (m *consoleMessenger) SendText(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.out, "\n%s\n\n", text)
	return nil
}

func (m *consoleMessenger) SendList(_ context.Context, _ string, list *models.ListMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.out, "\n[%s]\n%s\n", list.Header, list.Body)
	for _, section := range list.Sections {
		if section.Title != "" {
			fmt.Fprintf(m.out, "  %s\n", section.Title)
		}
		for _, row := range section.Rows {
			fmt.Fprintf(m.out, "    !%s  %s\n", row.ID, row.Title)
		}
	}
	fmt.Fprintln(m.out)
	return nil
}

func (m *consoleMessenger) DownloadMedia(_ context.Context, media *models.Media) (*models.Media, error) {
	data, err := os.ReadFile(media.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", media.ID, err)
	}
	out := *media
	out.Data = data
	return &out, nil
}

// fixtureBackend is an in-memory stand-in for the profile and ledger API.
type fixtureBackend struct {
	mu      sync.Mutex
	profile models.UserProfile
	ledger  []models.LedgerEntry
}

func newFixtureBackend() *fixtureBackend {
	return &fixtureBackend{profile: models.UserProfile{
		Name:         "Consola Local",
		Email:        "consola@pagado.local",
		Subscription: true,
		Categories: []models.Category{
			{ID: "1", Name: "Comida"},
			{ID: "2", Name: "Transporte"},
			{ID: "3", Name: "Servicios"},
			{ID: "4", Name: "Sueldo"},
		},
		Accounts: []models.Account{
			{ID: "10", Title: "Banco Nación"},
			{ID: "11", Title: "Efectivo"},
		},
		PaymentMethods: []models.PaymentMethod{
			{ID: "20", Title: "Visa", CardType: "crédito", AccountID: "10"},
			{ID: "21", Title: "Débito", CardType: "débito", AccountID: "10"},
			{ID: "22", Title: "Efectivo", AccountID: "11"},
		},
	}}
}

func (b *fixtureBackend) FetchProfile(_ context.Context, _ string) (*models.UserProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.profile
	return &p, nil
}

func (b *fixtureBackend) PostTransaction(_ context.Context, _ string, tx *models.CommittedTransaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger = append(b.ledger, models.LedgerEntry{
		ID:          tx.IdempotencyKey[:12],
		Description: tx.Description,
		Type:        tx.Type,
		Category:    tx.Category,
		Amount:      tx.Amount,
		Date:        tx.Date,
		Currency:    tx.Currency,
		Account:     tx.Account,
		Method:      tx.Method,
	})
	return nil
}

func (b *fixtureBackend) QueryTransactions(_ context.Context, _ string, _ string) ([]models.LedgerEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.LedgerEntry(nil), b.ledger...), nil
}

func (b *fixtureBackend) print(out *os.File) {
	entries, _ := b.QueryTransactions(context.Background(), "", "")
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })
	if len(entries) == 0 {
		fmt.Fprintln(out, "(sin transacciones)")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-7s %-12s %-14s %-10s %s  %s\n",
			e.Date.Format("2006-01-02 15:04"), e.Type, e.Category, e.Account, e.Method,
			service.FormatAmount(e.Amount, e.Currency), e.Description)
	}
}
