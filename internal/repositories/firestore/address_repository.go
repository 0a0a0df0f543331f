package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/feiraviva/api/internal/domain"
	pfirestore "github.com/feiraviva/api/internal/platform/firestore"
	"github.com/feiraviva/api/internal/repositories"
)

const addressCollection = "addresses"

type addressDocument struct {
	OwnerKey   string    `firestore:"ownerKey"`
	Recipient  string    `firestore:"recipient"`
	Line1      string    `firestore:"line1"`
	Line2      string    `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state,omitempty"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	Hash       string    `firestore:"hash"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// AddressRepository persists delivery addresses in Firestore.
type AddressRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns the owner's addresses, newest first.
func (r *AddressRepository) List(ctx context.Context, owner domain.OwnerKey) ([]domain.Address, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	if !owner.Valid() {
		return nil, errors.New("address repository: owner key is required")
	}

	iter := coll.Where("ownerKey", "==", owner.String()).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap)
		if err != nil {
			return nil, err
		}
		results = append(results, addr)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// Get fetches one address and enforces owner isolation.
func (r *AddressRepository) Get(ctx context.Context, owner domain.OwnerKey, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	if !owner.Valid() {
		return domain.Address{}, errors.New("address repository: owner key is required")
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	addr, err := decodeAddressDocument(snap)
	if err != nil {
		return domain.Address{}, err
	}
	if addr.Owner != owner {
		// Another owner's document reads as absent.
		return domain.Address{}, pfirestore.WrapError("addresses.get", status.Error(codes.NotFound, "address not found"))
	}
	return addr, nil
}

// Upsert creates or updates an address, deduplicating identical addresses by
// their normalized hash.
func (r *AddressRepository) Upsert(ctx context.Context, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	if !addr.Owner.Valid() {
		return domain.Address{}, errors.New("address repository: owner key is required")
	}

	hash := computeAddressHash(addr)

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var docRef *firestore.DocumentRef
		var existing *addressDocument

		if id := strings.TrimSpace(addr.ID); id != "" {
			docRef = coll.Doc(id)
		}

		if docRef == nil {
			query := coll.Where("ownerKey", "==", addr.Owner.String()).Where("hash", "==", hash).Limit(1)
			snaps, err := tx.Documents(query).GetAll()
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if len(snaps) > 0 {
				docRef = snaps[0].Ref
				var doc addressDocument
				if err := snaps[0].DataTo(&doc); err != nil {
					return fmt.Errorf("decode address %s: %w", snaps[0].Ref.ID, err)
				}
				existing = &doc
			}
		} else {
			snap, err := tx.Get(docRef)
			switch status.Code(err) {
			case codes.NotFound:
			case codes.OK:
				var doc addressDocument
				if err := snap.DataTo(&doc); err != nil {
					return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
				}
				if doc.OwnerKey != addr.Owner.String() {
					return status.Error(codes.NotFound, "address not found")
				}
				existing = &doc
			default:
				return err
			}
		}

		if docRef == nil {
			docRef = coll.NewDoc()
		}

		doc := addressDocument{
			OwnerKey:   addr.Owner.String(),
			Recipient:  strings.TrimSpace(addr.Recipient),
			Line1:      strings.TrimSpace(addr.Line1),
			Line2:      strings.TrimSpace(addr.Line2),
			City:       strings.TrimSpace(addr.City),
			State:      strings.TrimSpace(addr.State),
			PostalCode: strings.TrimSpace(addr.PostalCode),
			Country:    strings.TrimSpace(addr.Country),
			Hash:       hash,
			CreatedAt:  time.Now().UTC(),
		}
		if existing != nil && !existing.CreatedAt.IsZero() {
			doc.CreatedAt = existing.CreatedAt
		} else if !addr.CreatedAt.IsZero() {
			doc.CreatedAt = addr.CreatedAt.UTC()
		}

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}

		saved = doc.toDomain(docRef.ID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return saved, nil
}

// Delete removes the specified address if it belongs to the owner.
func (r *AddressRepository) Delete(ctx context.Context, owner domain.OwnerKey, addressID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	if !owner.Valid() {
		return errors.New("address repository: owner key is required")
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(id)
		snap, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}
		if doc.OwnerKey != owner.String() {
			return status.Error(codes.NotFound, "address not found")
		}
		return tx.Delete(docRef)
	})
	if err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

func (r *AddressRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(addressCollection), nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID), nil
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:         id,
		Owner:      domain.ParseOwnerKey(d.OwnerKey),
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		CreatedAt:  d.CreatedAt,
	}
}

func computeAddressHash(addr domain.Address) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(addr.Recipient)),
		strings.ToLower(strings.TrimSpace(addr.Line1)),
		strings.ToLower(strings.TrimSpace(addr.Line2)),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToLower(strings.TrimSpace(addr.State)),
		strings.ToLower(strings.TrimSpace(addr.PostalCode)),
		strings.ToLower(strings.TrimSpace(addr.Country)),
	}
	input := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
