package service

import (
	"errors"
	"fmt"
	"strings"

	"pagado/internal/models"
	"pagado/pkg/logger"

	"go.uber.org/zap"
)

var (
	cancelKeywords = map[string]bool{"cancelar": true, "salir": true, "volver": true, "menu": true, "menú": true, "inicio": true}
	retryKeywords  = map[string]bool{"reintentar": true, "reintenta": true, "si": true, "sí": true, "ok": true}
)

func normalizeKeyword(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!¡¿?")
}

func IsCancelKeyword(text string) bool { return cancelKeywords[normalizeKeyword(text)] }

func isRetryKeyword(text string) bool { return retryKeywords[normalizeKeyword(text)] }

// Reply is the user's answer while a draft is pending.
type Reply struct {
	Text    string
	ReplyID string
}

// Step is the outcome of one disambiguation transition.
type Step struct {
	State    models.State
	Messages []models.OutgoingMessage
	// Commit is set when State is ReadyToCommit and the draft should be
	// committed right away.
	Commit bool
}

func (s Step) say(msgs ...models.OutgoingMessage) Step {
	s.Messages = append(s.Messages, msgs...)
	return s
}

// DisambiguationController drives a draft from extraction to a committable
// state by asking for whatever is still missing.
type DisambiguationController struct {
	maxAttempts int
	logger      *zap.Logger
}

func NewDisambiguationController(maxAttempts int, logger *zap.Logger) *DisambiguationController {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &DisambiguationController{maxAttempts: maxAttempts, logger: logger}
}

// Begin picks the first state for a new draft and produces its prompt.
func (c *DisambiguationController) Begin(draft *models.Draft, profile *models.UserProfile) Step {
	return c.next(draft, profile)
}

// StartManual opens a menu-driven capture for txType.
func (c *DisambiguationController) StartManual(txType models.TransactionType, profile *models.UserProfile) Step {
	return c.next(models.NewDraft(txType, models.OriginManual), profile)
}

// Cancel discards any pending draft.
func (c *DisambiguationController) Cancel() Step {
	return Step{State: models.Idle{}}.say(models.Text(msgCancelled), mainMenu())
}

// Advance applies a reply to a non-idle state. A reply that does not resolve
// the pending question keeps the state, re-prompts and returns ErrSelection
// or ErrValidation; after maxAttempts consecutive misses the draft is dropped.
func (c *DisambiguationController) Advance(userID string, state models.State, reply Reply, profile *models.UserProfile) (Step, error) {
	switch st := state.(type) {
	case models.AwaitingCategory:
		opts := categoryOptions(profile)
		i := pick(opts, reply.ReplyID, reply.Text)
		if i < 0 {
			return c.miss(userID, st.Attempts, ErrSelection, func(n int) models.State {
				return models.AwaitingCategory{Draft: st.Draft, Attempts: n}
			}, c.prompt(st.Draft, profile))
		}
		d := st.Draft.Clone()
		d.Category = profile.Categories[i].Name
		return c.next(d, profile), nil

	case models.AwaitingAccount:
		opts := accountOptions(profile)
		i := pick(opts, reply.ReplyID, reply.Text)
		if i < 0 {
			return c.miss(userID, st.Attempts, ErrSelection, func(n int) models.State {
				return models.AwaitingAccount{Draft: st.Draft, Attempts: n}
			}, c.prompt(st.Draft, profile))
		}
		d := st.Draft.Clone()
		d.Account = profile.Accounts[i].Title
		d.AccountID = profile.Accounts[i].ID
		if d.PaymentMethodHint != "" {
			if m, ok := resolveMethod(profile.MethodsForAccount(d.AccountID), d.PaymentMethodHint); ok {
				d.PaymentMethod = m.Title
			}
			d.PaymentMethodHint = ""
		}
		return c.next(d, profile), nil

	case models.AwaitingPaymentMethod:
		methods := profile.MethodsForAccount(st.Draft.AccountID)
		i := pick(methodOptions(methods), reply.ReplyID, reply.Text)
		if i < 0 {
			return c.miss(userID, st.Attempts, ErrSelection, func(n int) models.State {
				return models.AwaitingPaymentMethod{Draft: st.Draft, Attempts: n}
			}, c.prompt(st.Draft, profile))
		}
		d := st.Draft.Clone()
		d.PaymentMethod = methods[i].Title
		return c.next(d, profile), nil

	case models.AwaitingDetails:
		d, err := applyDetails(st.Draft, reply.Text)
		if err != nil {
			return c.miss(userID, st.Attempts, err, func(n int) models.State {
				return models.AwaitingDetails{Draft: st.Draft, Attempts: n}
			}, models.Text(msgDetailsInvalid))
		}
		return c.next(d, profile), nil

	case models.ReadyToCommit:
		if isRetryKeyword(reply.Text) {
			return Step{State: st, Commit: true}, nil
		}
		return Step{State: st}.say(models.Text(msgAwaitRetry)), ErrSelection

	default:
		return Step{State: models.Idle{}}, fmt.Errorf("no pending draft in state %s", state.Name())
	}
}

func (c *DisambiguationController) miss(userID string, attempts int, cause error, stay func(int) models.State, reprompt models.OutgoingMessage) (Step, error) {
	attempts++
	if attempts >= c.maxAttempts {
		c.logger.Info("Selection attempts exhausted", logger.User(userID), zap.Int("attempts", attempts))
		return Step{State: models.Idle{}}.say(models.Text(msgTooManyAttempts), mainMenu()), cause
	}
	step := Step{State: stay(attempts)}
	if errors.Is(cause, ErrSelection) {
		step = step.say(models.Text(fmt.Sprintf("❌ No encontré esa opción (intento %d de %d).", attempts, c.maxAttempts)))
	}
	return step.say(reprompt), cause
}

// next derives the state for d and asks for the first missing field.
func (c *DisambiguationController) next(d *models.Draft, profile *models.UserProfile) Step {
	state := stateForDraft(d)
	switch state.(type) {
	case models.ReadyToCommit:
		return Step{State: state, Commit: true}
	case models.AwaitingPaymentMethod:
		if len(profile.MethodsForAccount(d.AccountID)) == 0 {
			return Step{State: models.Idle{}}.say(models.Text(msgNoMethods), mainMenu())
		}
	case models.AwaitingAccount:
		if len(profile.Accounts) == 0 {
			return Step{State: models.Idle{}}.say(models.Text(msgNoAccounts), mainMenu())
		}
	}
	return Step{State: state}.say(c.prompt(d, profile))
}

func (c *DisambiguationController) prompt(d *models.Draft, profile *models.UserProfile) models.OutgoingMessage {
	switch stateForDraft(d).(type) {
	case models.AwaitingCategory:
		return optionsPrompt("Categoría", fmt.Sprintf("📂 *Selecciona una categoría* para tu %s:", strings.ToLower(d.Type.Label())), "Categorías", categoryOptions(profile))
	case models.AwaitingAccount:
		return optionsPrompt("Cuenta", summaryFor(d)+"🏦 *Selecciona una cuenta* (responde con el número o nombre):", "Cuentas", accountOptions(profile))
	case models.AwaitingPaymentMethod:
		return optionsPrompt("Método de pago", summaryFor(d)+"💳 *Selecciona un método de pago* (responde con el número o nombre):", "Métodos", methodOptions(profile.MethodsForAccount(d.AccountID)))
	default:
		return models.Text(msgDetailsPrompt)
	}
}

func summaryFor(d *models.Draft) string {
	if d.Origin != models.OriginAI {
		return ""
	}
	return draftSummary(d) + "\n"
}

// applyDetails parses "Descripción, Monto, Moneda". The currency is optional
// and the amount may itself use a decimal comma.
func applyDetails(d *models.Draft, text string) (*models.Draft, error) {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: expected description and amount", ErrValidation)
	}

	description := parts[0]
	rest := parts[1:]
	currency := ""
	if len(rest) > 1 {
		if code := NormalizeCurrency(rest[len(rest)-1], ""); code != "" {
			currency = code
			rest = rest[:len(rest)-1]
		}
	}

	amount, err := ParseAmount(strings.Join(rest, ","))
	if err != nil {
		return nil, err
	}

	out := d.Clone()
	out.Description = description
	out.Amount = amount
	if currency != "" {
		out.Currency = currency
	}
	return out, nil
}
