package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/feiraviva/api/internal/domain"
	pfirestore "github.com/feiraviva/api/internal/platform/firestore"
	"github.com/feiraviva/api/internal/repositories"
)

const (
	cartLineCollection = "cartLines"
)

type cartLineDocument struct {
	OwnerKey      string    `firestore:"ownerKey"`
	ProductID     string    `firestore:"productId"`
	Quantity      int       `firestore:"quantity"`
	PriceSnapshot int64     `firestore:"priceSnapshot"`
	ExpiresAt     time.Time `firestore:"expiresAt"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// CartRepository persists per-owner cart lines within Firestore.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartLineDocument]
	provider *pfirestore.Provider
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartLineDocument](provider, cartLineCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// cartLineDocID derives the document identifier. One document per owner and
// product keeps duplicate lines impossible by construction.
func cartLineDocID(owner domain.OwnerKey, productID string) string {
	return owner.String() + "__" + strings.TrimSpace(productID)
}

// Upsert writes the cart line, replacing any previous line for the same product.
func (r *CartRepository) Upsert(ctx context.Context, line domain.CartLine) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	if !line.Owner.Valid() {
		return errors.New("cart repository: owner key is required")
	}
	productID := strings.TrimSpace(line.ProductID)
	if productID == "" {
		return errors.New("cart repository: product id is required")
	}

	now := time.Now().UTC()
	createdAt := line.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := line.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}

	doc := cartLineDocument{
		OwnerKey:      line.Owner.String(),
		ProductID:     productID,
		Quantity:      line.Quantity,
		PriceSnapshot: line.PriceSnapshot,
		ExpiresAt:     line.ExpiresAt.UTC(),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}

	if _, err := r.base.Set(ctx, cartLineDocID(line.Owner, productID), doc); err != nil {
		return err
	}
	return nil
}

// Get fetches a single cart line for the owner and product.
func (r *CartRepository) Get(ctx context.Context, owner domain.OwnerKey, productID string) (domain.CartLine, error) {
	if r == nil || r.base == nil {
		return domain.CartLine{}, errors.New("cart repository not initialised")
	}
	doc, err := r.base.Get(ctx, cartLineDocID(owner, productID))
	if err != nil {
		return domain.CartLine{}, err
	}
	return cartLineFromDocument(doc.Data)
}

// ListByOwner returns every cart line for the owner ordered by creation time.
func (r *CartRepository) ListByOwner(ctx context.Context, owner domain.OwnerKey) ([]domain.CartLine, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("cart repository not initialised")
	}
	if !owner.Valid() {
		return nil, errors.New("cart repository: owner key is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerKey", "==", owner.String())
	})
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(docs))
	for _, doc := range docs {
		line, err := cartLineFromDocument(doc.Data)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].CreatedAt.Before(lines[j].CreatedAt)
	})
	return lines, nil
}

// Remove deletes the cart line for the owner and product. Removing an absent
// line is not an error.
func (r *CartRepository) Remove(ctx context.Context, owner domain.OwnerKey, productID string) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, cartLineDocID(owner, productID))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("firestore: delete cartLines", err)
	}
	return nil
}

// Clear removes every cart line belonging to the owner.
func (r *CartRepository) Clear(ctx context.Context, owner domain.OwnerKey) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	if !owner.Valid() {
		return errors.New("cart repository: owner key is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	query := client.Collection(cartLineCollection).Where("ownerKey", "==", owner.String())
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return pfirestore.WrapError("firestore: clear cartLines", err)
	}
	if len(docs) == 0 {
		return nil
	}

	batch := client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return pfirestore.WrapError("firestore: clear cartLines", err)
	}
	return nil
}

// SweepExpired deletes cart lines whose expiry lies before the cutoff, at most
// batchSize per call, and reports the number removed.
func (r *CartRepository) SweepExpired(ctx context.Context, before time.Time, batchSize int) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("cart repository not initialised")
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	query := client.Collection(cartLineCollection).
		Where("expiresAt", "<=", before.UTC()).
		Limit(batchSize)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("firestore: sweep cartLines", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, pfirestore.WrapError("firestore: sweep cartLines", err)
	}
	return len(docs), nil
}

func cartLineFromDocument(doc cartLineDocument) (domain.CartLine, error) {
	owner := domain.ParseOwnerKey(doc.OwnerKey)
	if !owner.Valid() {
		return domain.CartLine{}, fmt.Errorf("cart repository: malformed owner key %q", doc.OwnerKey)
	}
	return domain.CartLine{
		Owner:         owner,
		ProductID:     doc.ProductID,
		Quantity:      doc.Quantity,
		PriceSnapshot: doc.PriceSnapshot,
		ExpiresAt:     doc.ExpiresAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}
