package devicekeys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ejkkan/voddly-sub005/internal/events"
	"github.com/ejkkan/voddly-sub005/internal/models"
	"github.com/ejkkan/voddly-sub005/internal/transport"
)

// Status tracks device registration discovery per account.
type Status int

const (
	StatusUnknown Status = iota
	StatusChecking
	StatusRegistered
	StatusNotRegistered
	StatusLimitExceeded
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusChecking:
		return "checking"
	case StatusRegistered:
		return "registered"
	case StatusNotRegistered:
		return "not_registered"
	case StatusLimitExceeded:
		return "limit_exceeded"
	default:
		return "unknown"
	}
}

// Registry resolves which key bundle a device should derive with. A
// device-scoped bundle is preferred (its iteration count is tuned to the
// device); when none exists and none can be issued, the account-level
// bundle is used and the caller never notices the difference.
type Registry struct {
	transport    transport.Transport
	logger       *events.Logger
	deviceID     string
	deviceName   string
	autoRegister bool

	mu      sync.Mutex
	status  map[string]Status
	records map[string]*models.DeviceKeyRecord
}

// NewRegistry creates a device key registry.
func NewRegistry(transport transport.Transport, deviceID, deviceName string, autoRegister bool, logger *events.Logger) *Registry {
	return &Registry{
		transport:    transport,
		logger:       logger.WithField("service", "devicekeys"),
		deviceID:     deviceID,
		deviceName:   deviceName,
		autoRegister: autoRegister,
		status:       make(map[string]Status),
		records:      make(map[string]*models.DeviceKeyRecord),
	}
}

// DeviceID returns this installation's device identifier.
func (r *Registry) DeviceID() string {
	return r.deviceID
}

// Status returns the last known registration status for an account.
func (r *Registry) Status(accountID string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[accountID]
}

// ResolveKeyBundle returns the salt/iv/iterations/wrapped-key triple to
// derive with. The passphrase has already been obtained by the caller; it
// is only forwarded to authorize issuing a new device key, never used to
// re-prompt. Backend failures degrade to the account-level bundle.
func (r *Registry) ResolveKeyBundle(ctx context.Context, accountID string, accountBundle *models.KeyBundle, passphrase string) (*models.KeyBundle, error) {
	log := r.logger.WithField("account_id", accountID)

	r.mu.Lock()
	record := r.records[accountID]
	r.mu.Unlock()

	if record != nil {
		if record.Iterations > 0 {
			return &record.KeyBundle, nil
		}

		// A record without an iteration count is a legacy/partial cache;
		// deriving with an undefined count would produce garbage. Clear
		// and re-run discovery.
		log.Warn("Cached device key record missing iterations; re-running device discovery")
		r.mu.Lock()
		delete(r.records, accountID)
		r.status[accountID] = StatusUnknown
		r.mu.Unlock()
	}

	r.setStatus(accountID, StatusChecking)

	status, err := r.checkDevice(ctx, accountID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warn("Device check failed; using account-level key")
		r.setStatus(accountID, StatusUnknown)
		return accountBundle, nil
	}

	if status.IsRegistered {
		record, err := r.fetchDeviceKey(ctx, accountID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Warn("Device key fetch failed; using account-level key")
			r.setStatus(accountID, StatusUnknown)
			return accountBundle, nil
		}

		r.storeRecord(accountID, record, StatusRegistered)
		log.WithField("iterations", record.Iterations).Debug("Using device-scoped key")
		return &record.KeyBundle, nil
	}

	if !status.CanAutoRegister {
		if status.MaxDevices > 0 && status.DeviceCount >= status.MaxDevices {
			log.WithFields(map[string]interface{}{
				"device_count": status.DeviceCount,
				"max_devices":  status.MaxDevices,
			}).Info("Device limit reached; using account-level key")
			r.setStatus(accountID, StatusLimitExceeded)
		} else {
			log.Debug("Auto-registration disallowed; using account-level key")
			r.setStatus(accountID, StatusNotRegistered)
		}
		return accountBundle, nil
	}

	if !r.autoRegister {
		log.Debug("Auto-registration disabled by config; using account-level key")
		r.setStatus(accountID, StatusNotRegistered)
		return accountBundle, nil
	}

	record, err = r.registerDevice(ctx, accountID, passphrase)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, models.ErrDeviceLimitExceeded) {
			log.Info("Device limit exceeded during registration; using account-level key")
			r.setStatus(accountID, StatusLimitExceeded)
		} else {
			log.WithError(err).Warn("Device registration failed; using account-level key")
			r.setStatus(accountID, StatusNotRegistered)
		}
		return accountBundle, nil
	}

	r.storeRecord(accountID, record, StatusRegistered)
	log.WithField("iterations", record.Iterations).Info("Registered device key")
	return &record.KeyBundle, nil
}

// ClearAccount drops cached registration state for one account.
func (r *Registry) ClearAccount(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, accountID)
	delete(r.status, accountID)
}

func (r *Registry) setStatus(accountID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[accountID] = status
}

func (r *Registry) storeRecord(accountID string, record *models.DeviceKeyRecord, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[accountID] = record
	r.status[accountID] = status
}

// CheckDevice queries the backend for this device's registration state.
func (r *Registry) checkDevice(ctx context.Context, accountID string) (*models.DeviceStatus, error) {
	resp, err := r.transport.PostJSON(ctx, "/device/check", map[string]interface{}{
		"account_id": accountID,
		"device_id":  r.deviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("check device: %w", err)
	}

	var status models.DeviceStatus
	if err := decode(resp, &status); err != nil {
		return nil, fmt.Errorf("parse device status: %w", err)
	}

	return &status, nil
}

// fetchDeviceKey retrieves a previously issued device key record.
func (r *Registry) fetchDeviceKey(ctx context.Context, accountID string) (*models.DeviceKeyRecord, error) {
	resp, err := r.transport.PostJSON(ctx, "/device/key", map[string]interface{}{
		"account_id": accountID,
		"device_id":  r.deviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("get device key: %w", err)
	}

	var parsed struct {
		KeyData models.DeviceKeyRecord `json:"keyData"`
	}
	if err := decode(resp, &parsed); err != nil {
		return nil, fmt.Errorf("parse device key: %w", err)
	}

	if err := parsed.KeyData.Validate(); err != nil {
		return nil, err
	}

	return &parsed.KeyData, nil
}

// registerDevice asks the backend to issue a device-scoped wrapped key.
// The passphrase authorizes issuance server-side; it travels only over
// the transport-encrypted channel and is never logged.
func (r *Registry) registerDevice(ctx context.Context, accountID, passphrase string) (*models.DeviceKeyRecord, error) {
	resp, err := r.transport.PostJSON(ctx, "/device/register", map[string]interface{}{
		"account_id": accountID,
		"device_id":  r.deviceID,
		"device_meta": map[string]interface{}{
			"name": r.deviceName,
		},
		"passphrase": passphrase,
	})
	if err != nil {
		var apiErr *models.APIError
		if errors.As(err, &apiErr) && apiErr.Code == models.ErrCodeDeviceLimit {
			return nil, fmt.Errorf("register device: %w", models.ErrDeviceLimitExceeded)
		}
		return nil, fmt.Errorf("register device: %w", err)
	}

	var parsed struct {
		Success bool                   `json:"success"`
		KeyData models.DeviceKeyRecord `json:"keyData"`
	}
	if err := decode(resp, &parsed); err != nil {
		return nil, fmt.Errorf("parse registration response: %w", err)
	}

	if !parsed.Success {
		return nil, errors.New("registration rejected by backend")
	}

	if err := parsed.KeyData.Validate(); err != nil {
		return nil, err
	}

	return &parsed.KeyData, nil
}

func decode(resp map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
