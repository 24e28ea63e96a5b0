package service

import (
	"fmt"
	"strings"

	"pagado/internal/models"
)

const (
	MenuAddExpense  = "menu_gasto_agregar"
	MenuLastExpense = "menu_gasto_ultimo"
	MenuAddIncome   = "menu_ingreso_agregar"
	MenuLastIncome  = "menu_ingreso_ultimo"

	categoryRowPrefix = "cat_"
	accountRowPrefix  = "acc_"
	methodRowPrefix   = "met_"

	maxListRows     = 10
	maxRowTitleLen  = 24
	maxListBodySize = 1024
)

const (
	msgCancelled        = "🔙 Operación cancelada. Volviendo al menú principal..."
	msgInactivity       = "⏰ Sesión finalizada por inactividad. Escribe cualquier cosa para volver a empezar."
	msgProcessing       = "🤔 Déjame procesar tu mensaje..."
	msgExtractionFailed = "⚠️ No pude entender tu mensaje.\n\nIntenta de nuevo, por ejemplo:\n• \"Gasté 5000 en comida\"\n• \"Me pagaron 200000 de sueldo\""
	msgPendingDraft     = "⚠️ Primero debes completar la transacción anterior. Responde a la pregunta pendiente o escribe *cancelar*."
	msgUnauthorized     = "⚠️ Tu número no tiene acceso a las funcionalidades de IA en este momento. Puedes registrar tu transacción manualmente usando el menú."
	msgPremium          = "⭐ Las funciones de IA (texto libre, fotos, audios y PDF) son parte del plan *Premium*. Mientras tanto puedes registrar tus movimientos desde el menú."
	msgNoMethods        = "⚠️ No tienes métodos de pago configurados para esta cuenta. Agrega uno desde la app y vuelve a intentarlo."
	msgNoAccounts       = "⚠️ No tienes cuentas configuradas. Agrega una desde la app y vuelve a intentarlo."
	msgTooManyAttempts  = "❌ Demasiados intentos sin una opción válida. Operación cancelada."
	msgCommitFailed     = "🚫 No pude registrar la transacción.\n\nResponde *reintentar* para volver a intentarlo o *cancelar* para descartarla."
	msgAwaitRetry       = "⏳ Tu transacción está lista pero aún no se registró. Responde *reintentar* o *cancelar*."
	msgProfileFailed    = "🚫 No pudimos cargar tus datos en este momento. Intenta de nuevo en unos minutos."
	msgBusy             = "⏳ Todavía estoy procesando tu mensaje anterior. Dame unos segundos y vuelve a intentarlo."
	msgMediaFailed      = "🚫 No pude descargar el archivo que enviaste. ¿Puedes intentarlo de nuevo?"
	msgDetailsPrompt    = "📝 Escribe *Descripción, Monto, Moneda*\n\nEjemplo: Almuerzo, 5000, ARS"
	msgDetailsInvalid   = "⚠️ Formato inválido. Escribe *Descripción, Monto, Moneda*, por ejemplo: Almuerzo, 5000, ARS"
	msgGreetingHint     = "👋 ¡Hola de nuevo! Cuéntame qué movimiento quieres registrar o envíame una foto del ticket."
	msgUnknownIntent    = "🤷‍♂️ No estoy seguro de qué quieres hacer. Puedes:\n\n• Registrar un gasto: \"Gasté 5000 en almuerzo\"\n• Registrar un ingreso: \"Me pagaron 200000\"\n• Consultar: \"¿Cuál fue mi último gasto?\"\n• Enviar una foto de un ticket\n• Enviar un audio con la transacción\n\n_¿En qué puedo ayudarte?_"
)

func welcomeText(name string) string {
	if name != "" {
		name = " " + name
	}
	return fmt.Sprintf("👋%s ¡Bienvenido a *Pagado*!", name)
}

func aiWelcomeText(name string) string {
	return welcomeText(name) + "\n\n🤖 Puedes registrar tus gastos e ingresos escribiéndome, enviando una foto del ticket, un audio o un PDF.\n\n" +
		"Ejemplos:\n• \"Gasté 5000 en comida\"\n• \"Me pagaron 200000 de sueldo\"\n• \"¿Cuál fue mi último gasto?\"\n\n" +
		"_Escribe *cancelar* en cualquier momento para volver al menú._"
}

func mainMenu() models.OutgoingMessage {
	return models.OutgoingMessage{List: &models.ListMessage{
		Header: "Menú principal",
		Body:   "¿Qué quieres hacer?",
		Button: "Ver opciones",
		Sections: []models.ListSection{
			{Title: "Gastos", Rows: []models.ListRow{
				{ID: MenuAddExpense, Title: "Agregar un gasto"},
				{ID: MenuLastExpense, Title: "Consultar último gasto"},
			}},
			{Title: "Ingresos", Rows: []models.ListRow{
				{ID: MenuAddIncome, Title: "Agregar un ingreso"},
				{ID: MenuLastIncome, Title: "Consultar último ingreso"},
			}},
		},
	}}
}

func missingFieldsText(t models.TransactionType) string {
	noun := strings.ToLower(t.Label())
	return fmt.Sprintf("⚠️ No pude extraer el monto y/o categoría de tu %s.\n\nPor favor intenta de nuevo, por ejemplo:\n• \"Gasté 5000 en comida\"\n• \"Me pagaron 200000 de sueldo\"", noun)
}

func committedText(tx *models.CommittedTransaction) string {
	return fmt.Sprintf("✅ *%s registrado exitosamente*\n\n💰 *Monto:* %s\n📂 *Categoría:* %s\n🏦 *Cuenta:* %s\n💳 *Método:* %s\n📝 *Descripción:* %s\n\n_¿Necesitas algo más?_",
		tx.Type.Label(), FormatAmount(tx.Amount, tx.Currency), tx.Category, tx.Account, tx.Method, tx.Description)
}

func lastTransactionText(t models.TransactionType, e *models.LedgerEntry) string {
	noun := strings.ToLower(t.Label())
	if e == nil {
		return fmt.Sprintf("🚫 No hay %ss registrados este mes.\n\n_¿Quieres registrar uno?_", noun)
	}
	return fmt.Sprintf("🧾 *Último %s registrado*:\n📝 *Descripción:* %s\n📂 *Categoría:* %s\n💸 *Monto:* %s\n🏦 *Cuenta:* %s\n💳 *Método de pago:* %s\n\n_¿Necesitas algo más?_",
		noun, e.Description, e.Category, FormatAmount(e.Amount, e.Currency), e.Account, e.Method)
}

func lastTransactionFailedText(t models.TransactionType) string {
	return fmt.Sprintf("🚫 Hubo un error al consultar tu último %s.\n\n_¿Quieres intentar de nuevo?_", strings.ToLower(t.Label()))
}

// draftSummary echoes what is already known about a draft above a prompt.
func draftSummary(d *models.Draft) string {
	var b strings.Builder
	b.WriteString("📝 Entendido!\n")
	if d.HasAmount() {
		fmt.Fprintf(&b, "💰 Monto: %s\n", FormatAmount(d.Amount, d.Currency))
	}
	if d.Category != "" {
		fmt.Fprintf(&b, "📂 Categoría: %s\n", d.Category)
	}
	if d.Account != "" {
		fmt.Fprintf(&b, "🏦 Cuenta: %s\n", d.Account)
	}
	return b.String()
}

type option struct {
	id     string
	title  string
	labels []string
}

// optionsPrompt renders a numbered list as an interactive list when it fits,
// and as plain text otherwise. The numbered text is always included so that
// typed replies by index work on every client.
func optionsPrompt(header, intro, button string, opts []option) models.OutgoingMessage {
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	for i, o := range opts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o.title)
	}
	b.WriteString("\n_Escribe el número o el nombre, o *cancelar* para salir._")
	body := b.String()

	if len(opts) > maxListRows || len(body) > maxListBodySize {
		return models.Text(body)
	}

	rows := make([]models.ListRow, 0, len(opts))
	for _, o := range opts {
		rows = append(rows, models.ListRow{ID: o.id, Title: truncate(o.title, maxRowTitleLen)})
	}
	return models.OutgoingMessage{List: &models.ListMessage{
		Header:   header,
		Body:     body,
		Button:   button,
		Sections: []models.ListSection{{Rows: rows}},
	}}
}

func categoryOptions(p *models.UserProfile) []option {
	opts := make([]option, 0, len(p.Categories))
	for _, c := range p.Categories {
		opts = append(opts, option{id: categoryRowPrefix + c.ID, title: c.Name, labels: []string{c.Name}})
	}
	return opts
}

func accountOptions(p *models.UserProfile) []option {
	opts := make([]option, 0, len(p.Accounts))
	for _, a := range p.Accounts {
		opts = append(opts, option{id: accountRowPrefix + a.ID, title: a.Title, labels: []string{a.Title}})
	}
	return opts
}

func methodOptions(methods []models.PaymentMethod) []option {
	opts := make([]option, 0, len(methods))
	for _, m := range methods {
		opts = append(opts, option{id: methodRowPrefix + m.ID, title: m.DisplayTitle(), labels: []string{m.Title, m.DisplayTitle()}})
	}
	return opts
}

// pick resolves a reply against opts, preferring an exact list-row id.
func pick(opts []option, replyID, text string) int {
	if replyID != "" {
		for i, o := range opts {
			if o.id == replyID {
				return i
			}
		}
	}
	labels := make([][]string, len(opts))
	for i, o := range opts {
		labels[i] = o.labels
	}
	return selectOption(labels, text)
}
