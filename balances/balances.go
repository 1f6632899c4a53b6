// Package balances collects the user's accounts with their balances and
// pots, and prints them.
package balances

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/petermakeswebsites/monzo-balances/monzo"
)

// Kind groups Monzo account types.
type Kind string

const (
	// Personal is a sole current account; the tool requires one.
	Personal Kind = "personal"
	// Joint is a shared current account.
	Joint Kind = "joint"
	// Other covers prepaid, flex and any type not recognised.
	Other Kind = "other"
)

// KindOf maps a Monzo account type such as "uk_retail" or
// "uk_retail_joint" onto a Kind.
func KindOf(accountType string) Kind {
	switch {
	case strings.Contains(accountType, "joint"):
		return Joint
	case accountType == "uk_retail", strings.Contains(accountType, "personal"):
		return Personal
	}
	return Other
}

// Account is an account enriched with its balance and pots.
type Account struct {
	ID          string
	Description string
	Type        string
	Kind        Kind
	Currency    string
	// Balance and Pots are nil until AppendBalances ran.
	Balance *monzo.Balance
	Pots    []monzo.Pot
}

func newAccount(a monzo.Account) *Account {
	return &Account{
		ID:          a.ID,
		Description: a.Description,
		Type:        a.Type,
		Kind:        KindOf(a.Type),
		Currency:    a.Currency,
	}
}

// String names the account by kind and ID.
func (a *Account) String() string {
	return fmt.Sprintf("%s account %s", a.Kind, a.ID)
}

// ValidationError means the API answered but the accounts are not what the
// tool needs.
type ValidationError struct {
	Reason string
}

// Error returns the reason.
func (e *ValidationError) Error() string { return e.Reason }

// API is the part of *monzo.Client the service uses.
type API interface {
	ListAccounts(ctx context.Context, accountType string) ([]monzo.Account, error)
	GetBalance(ctx context.Context, accountID string) (*monzo.Balance, error)
	ListPots(ctx context.Context, accountID string) ([]monzo.Pot, error)
}

// Service fetches accounts, balances and pots through an authorized API.
type Service struct {
	api    API
	logger *slog.Logger
}

// NewService wraps api; a nil logger means slog.Default().
func NewService(api API, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, logger: logger}
}

// ListAccounts returns the user's open accounts. It fails when there are
// none or when none of them is a personal account; a missing joint account
// is only logged.
func (s *Service) ListAccounts(ctx context.Context) ([]*Account, error) {
	s.logger.Info("retrieving account information")
	accounts, err := s.api.ListAccounts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("could not retrieve accounts information: %w", err)
	}

	var ret []*Account
	for _, a := range accounts {
		if a.Closed {
			s.logger.Debug("skipping closed account", "account_id", a.ID)
			continue
		}
		ret = append(ret, newAccount(a))
	}
	if len(ret) == 0 {
		return nil, &ValidationError{Reason: "no accounts found"}
	}

	var personal, joint bool
	for _, a := range ret {
		switch a.Kind {
		case Personal:
			personal = true
		case Joint:
			joint = true
		}
	}
	if !personal {
		return nil, &ValidationError{Reason: "could not find a personal account"}
	}
	if !joint {
		s.logger.Warn("could not find a joint account")
	}
	return ret, nil
}

// GetBalance fetches the balance of account.
func (s *Service) GetBalance(ctx context.Context, account *Account) (*monzo.Balance, error) {
	balance, err := s.api.GetBalance(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get balance for %s: %w", account, err)
	}
	s.logger.Info("balance received", "account", account.String())
	return balance, nil
}

// GetPots fetches the pots of account, deleted ones included.
func (s *Service) GetPots(ctx context.Context, account *Account) ([]monzo.Pot, error) {
	pots, err := s.api.ListPots(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get pots for %s: %w", account, err)
	}
	s.logger.Info("pots received", "account", account.String(), "count", len(pots))
	return pots, nil
}

// AppendBalances sets the balance and the live pots on every account.
func (s *Service) AppendBalances(ctx context.Context, accounts []*Account) error {
	for _, account := range accounts {
		balance, err := s.GetBalance(ctx, account)
		if err != nil {
			return err
		}
		pots, err := s.GetPots(ctx, account)
		if err != nil {
			return err
		}
		account.Balance = balance
		account.Pots = make([]monzo.Pot, 0, len(pots))
		for _, pot := range pots {
			if !pot.Deleted {
				account.Pots = append(account.Pots, pot)
			}
		}
	}
	return nil
}
