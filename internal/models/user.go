package models

import (
	"strings"
	"time"
)

type Category struct {
	ID         string
	Name       string
	Color      string
	Percentage float64
	Icon       string
}

type Account struct {
	ID    string
	Title string
}

type PaymentMethod struct {
	ID        string
	Title     string
	CardType  string
	AccountID string
}

// DisplayTitle renders "title (cardType)" when the card type is known.
func (m PaymentMethod) DisplayTitle() string {
	if m.CardType == "" {
		return m.Title
	}
	return m.Title + " (" + m.CardType + ")"
}

// UserProfile is the cached catalog snapshot for one user. Instances are
// replaced wholesale on refresh and must not be mutated after publication.
type UserProfile struct {
	UserID         string
	Name           string
	Email          string
	Subscription   bool
	Categories     []Category
	Accounts       []Account
	PaymentMethods []PaymentMethod
	FetchedAt      time.Time
}

func (p *UserProfile) AccountByID(id string) (Account, bool) {
	for _, a := range p.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// MethodsForAccount returns the payment methods owned by accountID in catalog order.
func (p *UserProfile) MethodsForAccount(accountID string) []PaymentMethod {
	var out []PaymentMethod
	for _, m := range p.PaymentMethods {
		if m.AccountID == accountID {
			out = append(out, m)
		}
	}
	return out
}

func (p *UserProfile) CategoryNames() []string {
	names := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		names = append(names, c.Name)
	}
	return names
}

func (p *UserProfile) AccountTitles() []string {
	titles := make([]string, 0, len(p.Accounts))
	for _, a := range p.Accounts {
		titles = append(titles, a.Title)
	}
	return titles
}

func (p *UserProfile) MethodTitles() []string {
	titles := make([]string, 0, len(p.PaymentMethods))
	for _, m := range p.PaymentMethods {
		titles = append(titles, m.Title)
	}
	return titles
}

// FirstName is used for greetings.
func (p *UserProfile) FirstName() string {
	if fields := strings.Fields(p.Name); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
