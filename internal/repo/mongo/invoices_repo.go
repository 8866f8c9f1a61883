package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/invoicehub/internal/db"
	"github.com/geocoder89/invoicehub/internal/domain/invoice"
	"github.com/geocoder89/invoicehub/internal/observability"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type invoiceDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	InvoiceID string        `bson:"invoice_id"`
	Amount    float64       `bson:"amount"`
	DueDate   time.Time     `bson:"due_date"`
	Recipient string        `bson:"recipient"`
	Status    string        `bson:"status"`
	UserID    bson.ObjectID `bson:"user_id"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

func (d invoiceDoc) toDomain() invoice.Invoice {
	return invoice.Invoice{
		ID:        d.ID.Hex(),
		InvoiceID: d.InvoiceID,
		Amount:    d.Amount,
		DueDate:   d.DueDate.UTC(),
		Recipient: d.Recipient,
		Status:    invoice.Status(d.Status),
		UserID:    d.UserID.Hex(),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type InvoicesRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewInvoicesRepo(database *mongo.Database, prom *observability.Prom) *InvoicesRepo {
	return &InvoicesRepo{
		coll: database.Collection(db.InvoicesCollection),
		prom: prom,
	}
}

func (r *InvoicesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *InvoicesRepo) Create(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	owner, err := bson.ObjectIDFromHex(inv.UserID)
	if err != nil {
		return invoice.Invoice{}, err
	}

	doc := invoiceDoc{
		ID:        bson.NewObjectID(),
		InvoiceID: inv.InvoiceID,
		Amount:    inv.Amount,
		DueDate:   inv.DueDate,
		Recipient: inv.Recipient,
		Status:    string(inv.Status),
		UserID:    owner,
		CreatedAt: inv.CreatedAt,
		UpdatedAt: inv.UpdatedAt,
	}

	err = r.observe("invoices.create", func() error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return invoice.Invoice{}, invoice.ErrDuplicateInvoiceID
		}
		return invoice.Invoice{}, err
	}

	return doc.toDomain(), nil
}

func (r *InvoicesRepo) ListByUser(ctx context.Context, userID string) ([]invoice.Invoice, error) {
	owner, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return []invoice.Invoice{}, nil
	}

	return r.find(ctx, "invoices.list_by_user",
		bson.M{"user_id": owner},
		bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	)
}

func (r *InvoicesRepo) ListOverdueCandidates(ctx context.Context, userID string, now time.Time) ([]invoice.Invoice, error) {
	owner, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return []invoice.Invoice{}, nil
	}

	return r.find(ctx, "invoices.list_overdue_candidates",
		bson.M{
			"user_id":  owner,
			"status":   string(invoice.StatusDue),
			"due_date": bson.M{"$lte": now},
		},
		bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}},
	)
}

func (r *InvoicesRepo) Get(ctx context.Context, userID string, key invoice.Lookup) (invoice.Invoice, error) {
	filter, ok := ownedFilter(userID, key)
	if !ok {
		return invoice.Invoice{}, invoice.ErrNotFound
	}

	var doc invoiceDoc
	err := r.observe("invoices.get", func() error {
		return r.coll.FindOne(ctx, filter).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return invoice.Invoice{}, invoice.ErrNotFound
		}
		return invoice.Invoice{}, err
	}

	return doc.toDomain(), nil
}

func (r *InvoicesRepo) Update(ctx context.Context, userID string, key invoice.Lookup, patch invoice.Patch) (invoice.Invoice, error) {
	filter, ok := ownedFilter(userID, key)
	if !ok {
		return invoice.Invoice{}, invoice.ErrNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Amount != nil {
		set["amount"] = *patch.Amount
	}
	if patch.DueDate != nil {
		set["due_date"] = *patch.DueDate
	}
	if patch.Recipient != nil {
		set["recipient"] = *patch.Recipient
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc invoiceDoc
	err := r.observe("invoices.update", func() error {
		return r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return invoice.Invoice{}, invoice.ErrNotFound
		}
		return invoice.Invoice{}, err
	}

	return doc.toDomain(), nil
}

func (r *InvoicesRepo) SetStatus(ctx context.Context, userID, id string, status invoice.Status) error {
	filter, ok := ownedFilter(userID, invoice.LookupID(id))
	if !ok {
		return invoice.ErrNotFound
	}

	var matched int64
	err := r.observe("invoices.set_status", func() error {
		res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}})
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return err
	}

	if matched == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

func (r *InvoicesRepo) Delete(ctx context.Context, userID, id string) error {
	filter, ok := ownedFilter(userID, invoice.LookupID(id))
	if !ok {
		return invoice.ErrNotFound
	}

	var deleted int64
	err := r.observe("invoices.delete", func() error {
		res, err := r.coll.DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return err
	}

	if deleted == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

func (r *InvoicesRepo) find(ctx context.Context, op string, filter bson.M, sort bson.D) ([]invoice.Invoice, error) {
	var docs []invoiceDoc

	err := r.observe(op, func() error {
		cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(sort))
		if err != nil {
			return err
		}
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	out := make([]invoice.Invoice, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// ownedFilter scopes a lookup to its owner. Ids that are not valid ObjectIDs
// can never match and report ok=false.
func ownedFilter(userID string, key invoice.Lookup) (bson.M, bool) {
	owner, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, false
	}

	if key.Kind == invoice.ByInvoiceID {
		return bson.M{"user_id": owner, "invoice_id": key.Value}, true
	}

	oid, err := bson.ObjectIDFromHex(key.Value)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "user_id": owner}, true
}
