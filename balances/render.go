package balances

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/lipgloss"
)

const defaultCurrency = "GBP"

func title(kind Kind) string {
	if kind == "" {
		kind = Other
	}
	return strings.ToUpper(string(kind[:1])) + string(kind[1:]) + " account"
}

func currencyOf(account *Account, fallback string) string {
	switch {
	case fallback != "":
		return fallback
	case account.Currency != "":
		return account.Currency
	}
	return defaultCurrency
}

// format renders minor units, e.g. 100 GBP as £1.00.
func format(amount int64, currency string) string {
	return money.New(amount, currency).Display()
}

// Render prints every account with its balances and pots, followed by the
// total per currency. Styling is dropped when w is not a terminal.
func Render(w io.Writer, accounts []*Account) error {
	r := lipgloss.NewRenderer(w)
	heading := r.NewStyle().Bold(true)
	muted := r.NewStyle().Faint(true)

	totals := map[string]int64{}
	var b strings.Builder
	for _, account := range accounts {
		name := title(account.Kind)
		if account.Kind == Other && account.Type != "" {
			name += " (" + account.Type + ")"
		}
		fmt.Fprintf(&b, "%s %s\n", heading.Render(name), muted.Render(account.ID))
		if account.Description != "" {
			fmt.Fprintf(&b, "  %-15s %s\n", "Description:", account.Description)
		}

		if account.Balance == nil {
			fmt.Fprintf(&b, "  %-15s %s\n", "Balance:", "unavailable")
		} else {
			cur := currencyOf(account, account.Balance.Currency)
			fmt.Fprintf(&b, "  %-15s %s\n", "Balance:", format(account.Balance.Balance, cur))
			fmt.Fprintf(&b, "  %-15s %s\n", "Total balance:", format(account.Balance.TotalBalance, cur))
			totals[cur] += account.Balance.TotalBalance
		}

		if len(account.Pots) == 0 {
			fmt.Fprintf(&b, "  %-15s %s\n", "Pots:", "no pots")
		} else {
			fmt.Fprintf(&b, "  %s\n", "Pots:")
			for _, pot := range account.Pots {
				fmt.Fprintf(&b, "    %-24s %s\n", pot.Name, format(pot.Balance, currencyOf(account, pot.Currency)))
			}
		}
		b.WriteString("\n")
	}

	currencies := make([]string, 0, len(totals))
	for cur := range totals {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)
	for _, cur := range currencies {
		fmt.Fprintf(&b, "%s %s\n", heading.Render("Total across accounts:"), format(totals[cur], cur))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
