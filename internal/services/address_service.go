package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/feiraviva/api/internal/domain"
	"github.com/feiraviva/api/internal/repositories"
)

var (
	// ErrAddressInvalidInput indicates the caller supplied invalid address fields.
	ErrAddressInvalidInput = errors.New("address service: invalid input")
	// ErrAddressUnavailable indicates the address backend is unavailable.
	ErrAddressUnavailable = errors.New("address service: unavailable")
	// ErrAddressNotFound indicates the requested address does not exist for the caller.
	ErrAddressNotFound = errors.New("address service: not found")
)

// SaveAddressCommand creates or updates a delivery address for the owner.
type SaveAddressCommand struct {
	Owner      OwnerKey
	AddressID  string
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// AddressService manages the caller's delivery address book.
type AddressService interface {
	ListAddresses(ctx context.Context, owner OwnerKey) ([]Address, error)
	GetAddress(ctx context.Context, owner OwnerKey, addressID string) (Address, error)
	SaveAddress(ctx context.Context, cmd SaveAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, owner OwnerKey, addressID string) error
}

// AddressServiceDeps wires the dependencies required by the address service.
type AddressServiceDeps struct {
	Addresses repositories.AddressRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type addressService struct {
	addresses repositories.AddressRepository
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewAddressService constructs an AddressService validating required dependencies.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &addressService{
		addresses: deps.Addresses,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *addressService) ListAddresses(ctx context.Context, owner OwnerKey) ([]Address, error) {
	if s == nil || s.addresses == nil {
		return nil, ErrAddressUnavailable
	}
	if !owner.Valid() {
		return nil, ErrAddressInvalidInput
	}
	addresses, err := s.addresses.List(ctx, owner)
	if err != nil {
		return nil, ErrAddressUnavailable
	}
	return addresses, nil
}

func (s *addressService) GetAddress(ctx context.Context, owner OwnerKey, addressID string) (Address, error) {
	if s == nil || s.addresses == nil {
		return Address{}, ErrAddressUnavailable
	}
	if !owner.Valid() || strings.TrimSpace(addressID) == "" {
		return Address{}, ErrAddressInvalidInput
	}
	address, err := s.addresses.Get(ctx, owner, strings.TrimSpace(addressID))
	if err != nil {
		if isRepoNotFound(err) {
			return Address{}, ErrAddressNotFound
		}
		return Address{}, ErrAddressUnavailable
	}
	return address, nil
}

func (s *addressService) SaveAddress(ctx context.Context, cmd SaveAddressCommand) (Address, error) {
	if s == nil || s.addresses == nil {
		return Address{}, ErrAddressUnavailable
	}
	if !cmd.Owner.Valid() {
		return Address{}, ErrAddressInvalidInput
	}

	address := domain.Address{
		ID:         strings.TrimSpace(cmd.AddressID),
		Owner:      cmd.Owner,
		Recipient:  strings.TrimSpace(cmd.Recipient),
		Line1:      strings.TrimSpace(cmd.Line1),
		Line2:      strings.TrimSpace(cmd.Line2),
		City:       strings.TrimSpace(cmd.City),
		State:      strings.TrimSpace(cmd.State),
		PostalCode: strings.TrimSpace(cmd.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(cmd.Country)),
		CreatedAt:  s.now(),
	}
	if address.Recipient == "" || address.Line1 == "" || address.City == "" || address.PostalCode == "" || address.Country == "" {
		return Address{}, ErrAddressInvalidInput
	}

	saved, err := s.addresses.Upsert(ctx, address)
	if err != nil {
		if isRepoNotFound(err) {
			return Address{}, ErrAddressNotFound
		}
		return Address{}, ErrAddressUnavailable
	}

	s.logger(ctx, "address.saved", map[string]any{
		"addressId": saved.ID,
		"owner":     saved.Owner.String(),
	})
	return saved, nil
}

func (s *addressService) DeleteAddress(ctx context.Context, owner OwnerKey, addressID string) error {
	if s == nil || s.addresses == nil {
		return ErrAddressUnavailable
	}
	if !owner.Valid() || strings.TrimSpace(addressID) == "" {
		return ErrAddressInvalidInput
	}
	if err := s.addresses.Delete(ctx, owner, strings.TrimSpace(addressID)); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return ErrAddressUnavailable
	}
	return nil
}
