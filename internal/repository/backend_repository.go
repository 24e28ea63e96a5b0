package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pagado/internal/dto"
	"pagado/internal/models"
	"pagado/pkg/auth"
	"pagado/pkg/config"
	"pagado/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNotFound = errors.New("not found")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// BackendRepository talks to the profile and ledger HTTP API.
type BackendRepository struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenSource
	logger     *zap.Logger
}

func NewBackendRepository(cfg *config.BackendConfig, tokens auth.TokenSource, logger *zap.Logger) *BackendRepository {
	return &BackendRepository{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// FetchProfile loads the user record and then its three catalogs in parallel.
func (r *BackendRepository) FetchProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var user dto.UserResponse
	if err := r.getJSON(ctx, "/user/phone/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user.Email == "" {
		return nil, fmt.Errorf("user %s has no email: %w", logger.MaskPhone(userID), ErrNotFound)
	}

	byMail := url.Values{"mail": {user.Email}}
	var (
		categories dto.CategoryListResponse
		accounts   dto.AccountListResponse
		methods    dto.MethodListResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.getJSON(gctx, "/category", byMail, &categories); err != nil {
			return fmt.Errorf("failed to fetch categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.getJSON(gctx, "/accounts", byMail, &accounts); err != nil {
			return fmt.Errorf("failed to fetch accounts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.getJSON(gctx, "/methods", byMail, &methods); err != nil {
			return fmt.Errorf("failed to fetch payment methods: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profile := &models.UserProfile{
		UserID:       userID,
		Name:         user.Name,
		Email:        user.Email,
		Subscription: user.Subscription,
	}
	for _, c := range categories.FormattedCategories {
		cat := models.Category{
			ID:         c.ID,
			Name:       c.Nombre,
			Color:      c.Color,
			Percentage: parseLooseFloat(c.Porcentaje),
		}
		if c.Icon != nil {
			cat.Icon = *c.Icon
		}
		profile.Categories = append(profile.Categories, cat)
	}
	for _, a := range accounts.FormattedAccounts {
		profile.Accounts = append(profile.Accounts, models.Account{ID: a.ID, Title: a.Title})
	}
	for _, m := range methods.FormattedMethods {
		if _, ok := profile.AccountByID(m.IDAccount); !ok {
			r.logger.Warn("Dropping payment method with unknown account",
				logger.User(userID),
				zap.String("method_id", m.ID),
				zap.String("account_id", m.IDAccount),
			)
			continue
		}
		profile.PaymentMethods = append(profile.PaymentMethods, models.PaymentMethod{
			ID:        m.ID,
			Title:     m.Title,
			CardType:  m.CardType,
			AccountID: m.IDAccount,
		})
	}

	r.logger.Debug("Profile fetched",
		logger.User(userID),
		zap.Int("categories", len(profile.Categories)),
		zap.Int("accounts", len(profile.Accounts)),
		zap.Int("payment_methods", len(profile.PaymentMethods)),
	)

	return profile, nil
}

// PostTransaction appends one transaction to the owner's ledger. The
// idempotency key lets the backend drop replays of the same draft.
func (r *BackendRepository) PostTransaction(ctx context.Context, owner string, tx *models.CommittedTransaction) error {
	body := dto.TransactionRequest{
		ID:          "",
		Description: tx.Description,
		Type:        string(tx.Type),
		Category:    tx.Category,
		Amount:      json.Number(tx.Amount.String()),
		Date:        tx.Date.Format(time.RFC3339),
		Currency:    tx.Currency,
		Account:     tx.Account,
		Method:      tx.Method,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	req, err := r.newRequest(ctx, http.MethodPost, "/transaction", url.Values{"mail": {owner}}, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tx.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", tx.IdempotencyKey)
	}

	return r.do(req, nil)
}

// QueryTransactions lists the owner's transactions for the month containing periodKey (YYYY-MM-DD).
func (r *BackendRepository) QueryTransactions(ctx context.Context, owner, periodKey string) ([]models.LedgerEntry, error) {
	var resp dto.TransactionListResponse
	if err := r.getJSON(ctx, "/transaction", url.Values{"mail": {owner}, "month": {periodKey}}, &resp); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	entries := make([]models.LedgerEntry, 0, len(resp.FormattedTransactions))
	for _, t := range resp.FormattedTransactions {
		entries = append(entries, models.LedgerEntry{
			ID:          t.ID,
			Description: t.Description,
			Type:        models.TransactionType(t.Type),
			Category:    t.Category,
			Amount:      t.Amount,
			Date:        parseLedgerDate(t.Date),
			Currency:    t.Currency,
			Account:     t.Account,
			Method:      t.Method,
		})
	}
	return entries, nil
}

func (r *BackendRepository) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := r.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return r.do(req, out)
}

func (r *BackendRepository) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := r.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	token, err := r.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain backend token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (r *BackendRepository) do(req *http.Request, out interface{}) error {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// parseLooseFloat accepts a JSON number, a numeric string or null.
func parseLooseFloat(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	if d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1)); err == nil {
		return d.InexactFloat64()
	}
	return 0
}

var ledgerDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// parseLedgerDate understands the formats the ledger has been seen to emit.
// Unparseable dates sort last.
func parseLedgerDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, " ("); i > 0 {
		raw = raw[:i]
	}
	for _, layout := range ledgerDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(unix)
	}
	return time.Time{}
}
