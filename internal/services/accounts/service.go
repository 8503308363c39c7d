package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ejkkan/voddly-sub005/internal/events"
	"github.com/ejkkan/voddly-sub005/internal/models"
	"github.com/ejkkan/voddly-sub005/internal/transport"
)

// Service manages account and source lookups.
type Service struct {
	transport transport.Transport
	logger    *events.Logger

	// Cache
	mu       sync.Mutex
	accounts map[string]*models.Account
	bundles  map[string]*models.KeyBundle
}

// NewService creates an accounts service.
func NewService(transport transport.Transport, logger *events.Logger) *Service {
	return &Service{
		transport: transport,
		logger:    logger.WithField("service", "accounts"),
		accounts:  make(map[string]*models.Account),
		bundles:   make(map[string]*models.KeyBundle),
	}
}

// List fetches the caller's accessible accounts.
func (s *Service) List(ctx context.Context) ([]*models.Account, error) {
	s.logger.Debug("Fetching account list")

	resp, err := s.transport.PostJSON(ctx, "/accounts/list", map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var parsed struct {
		Accounts []models.Account `json:"accounts"`
	}
	if err := decode(resp, &parsed); err != nil {
		return nil, fmt.Errorf("parse account list: %w", err)
	}

	accounts := make([]*models.Account, 0, len(parsed.Accounts))
	s.mu.Lock()
	for i := range parsed.Accounts {
		account := &parsed.Accounts[i]
		accounts = append(accounts, account)
		s.accounts[account.ID] = account
	}
	s.mu.Unlock()

	s.logger.WithField("count", len(accounts)).Info("Fetched accounts")
	return accounts, nil
}

// GetSources fetches an account's sources along with its account-level
// key bundle.
func (s *Service) GetSources(ctx context.Context, accountID string) ([]models.Source, *models.KeyBundle, error) {
	s.logger.WithField("account_id", accountID).Debug("Fetching sources")

	resp, err := s.transport.PostJSON(ctx, "/sources/list", map[string]interface{}{
		"account_id": accountID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list sources: %w", err)
	}

	var parsed struct {
		Sources []models.Source  `json:"sources"`
		KeyData models.KeyBundle `json:"keyData"`
	}
	if err := decode(resp, &parsed); err != nil {
		return nil, nil, fmt.Errorf("parse source list: %w", err)
	}

	for i := range parsed.Sources {
		if parsed.Sources[i].AccountID == "" {
			parsed.Sources[i].AccountID = accountID
		}
	}

	s.mu.Lock()
	s.bundles[accountID] = &parsed.KeyData
	if account, ok := s.accounts[accountID]; ok {
		account.Sources = parsed.Sources
	}
	s.mu.Unlock()

	return parsed.Sources, &parsed.KeyData, nil
}

// ResolveSource locates the account, source, and account-level key bundle
// for a source id. When the id matches nothing but the caller has exactly
// one source in total, that source is assumed; single-tenant setups rely
// on this, so the fallback is taken loudly rather than silently.
func (s *Service) ResolveSource(ctx context.Context, sourceID string) (*models.Account, *models.Source, *models.KeyBundle, error) {
	accounts, err := s.List(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	if len(accounts) == 0 {
		return nil, nil, nil, models.ErrAccountNotFound
	}

	type candidate struct {
		account *models.Account
		source  models.Source
		bundle  *models.KeyBundle
	}

	var only *candidate
	total := 0

	for _, account := range accounts {
		sources, bundle, err := s.GetSources(ctx, account.ID)
		if err != nil {
			return nil, nil, nil, err
		}

		for i := range sources {
			if sources[i].ID == sourceID {
				return account, &sources[i], bundle, nil
			}
		}

		total += len(sources)
		if len(sources) > 0 && only == nil {
			only = &candidate{account: account, source: sources[0], bundle: bundle}
		}
	}

	if total == 1 && only != nil {
		s.logger.WithFields(map[string]interface{}{
			"requested_source_id": sourceID,
			"assumed_source_id":   only.source.ID,
			"account_id":          only.account.ID,
		}).Warn("Source id not found; assuming the only configured source")
		return only.account, &only.source, only.bundle, nil
	}

	return nil, nil, nil, fmt.Errorf("%w: %s", models.ErrSourceNotFound, sourceID)
}

// ClearCache drops cached accounts and bundles.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*models.Account)
	s.bundles = make(map[string]*models.KeyBundle)
}

// decode round-trips a generic JSON response into a typed struct so
// base64 byte fields land in []byte.
func decode(resp map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
