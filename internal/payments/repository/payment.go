package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	pmterrors "clinicbook/internal/payments/errors"
	"clinicbook/pkg/config"
	"clinicbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Payments"
)

type PaymentRepository interface {
	EnsureIndexes(ctx context.Context) error
	Create(ctx context.Context, payment *model.Payment) error
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	FindByAppointmentID(ctx context.Context, appointmentID string) (*model.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error)
	UpdateFields(ctx context.Context, id string, set bson.M) error
	MarkPaid(ctx context.Context, id, transactionID string, paidAt time.Time) error
	MarkRefunded(ctx context.Context, id, refundID string, status model.PaymentStatus, refundedAt time.Time) error
}

type mongoPaymentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoPaymentRepository(cfg *config.Config) PaymentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoPaymentRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics.
func (r *mongoPaymentRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoPaymentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "appointment_id", Value: 1}},
			Options: options.Index().SetName("payment_by_appointment"),
		},
		{
			Keys: bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().
				SetName("payment_by_transaction").
				SetSparse(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}

func (r *mongoPaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = model.PaymentPending
	}

	doc, err := toPaymentDoc(payment)
	if err != nil {
		return err
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		payment.ID = oid.Hex()
	}
	return nil
}

func (r *mongoPaymentRepository) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, pmterrors.ErrInvalidID
	}

	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *mongoPaymentRepository) FindByAppointmentID(ctx context.Context, appointmentID string) (*model.Payment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"appointment_id": appointmentID})
}

func (r *mongoPaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"transaction_id": transactionID})
}

func (r *mongoPaymentRepository) findOne(ctx context.Context, filter bson.M) (*model.Payment, error) {
	var doc paymentDoc
	err := r.collection.FindOne(ctx, filter, options.FindOne().SetSort(bson.M{"created_at": -1})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, pmterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return doc.toModel(), nil
}

func (r *mongoPaymentRepository) UpdateFields(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return pmterrors.ErrInvalidID
	}

	set["updated_at"] = time.Now()
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if result.MatchedCount == 0 {
		return pmterrors.ErrNotFound
	}
	return nil
}

func (r *mongoPaymentRepository) MarkPaid(ctx context.Context, id, transactionID string, paidAt time.Time) error {
	set := bson.M{
		"status":       model.PaymentPaid,
		"payment_date": paidAt,
	}
	if transactionID != "" {
		set["transaction_id"] = transactionID
	}
	return r.UpdateFields(ctx, id, set)
}

func (r *mongoPaymentRepository) MarkRefunded(ctx context.Context, id, refundID string, status model.PaymentStatus, refundedAt time.Time) error {
	set := bson.M{
		"status":      status,
		"refund_date": refundedAt,
	}
	if refundID != "" {
		set["refund_id"] = refundID
	}
	return r.UpdateFields(ctx, id, set)
}

// paymentDoc mirrors model.Payment with an ObjectID primary key.
type paymentDoc struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty"`
	PatientID     string              `bson:"patient_id"`
	ServiceID     string              `bson:"service_id"`
	AppointmentID string              `bson:"appointment_id"`
	Amount        float64             `bson:"amount"`
	Method        model.PaymentMethod `bson:"method"`
	Gateway       model.Gateway       `bson:"gateway,omitempty"`
	Status        model.PaymentStatus `bson:"status"`
	TransactionID string              `bson:"transaction_id,omitempty"`
	RefundID      string              `bson:"refund_id,omitempty"`
	PaymentDate   time.Time           `bson:"payment_date,omitempty"`
	RefundDate    *time.Time          `bson:"refund_date,omitempty"`
	CreatedAt     time.Time           `bson:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at"`
}

func toPaymentDoc(p *model.Payment) (*paymentDoc, error) {
	doc := &paymentDoc{
		PatientID:     p.PatientID,
		ServiceID:     p.ServiceID,
		AppointmentID: p.AppointmentID,
		Amount:        p.Amount,
		Method:        p.Method,
		Gateway:       p.Gateway,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		RefundID:      p.RefundID,
		PaymentDate:   p.PaymentDate,
		RefundDate:    p.RefundDate,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.ID != "" {
		oid, err := primitive.ObjectIDFromHex(p.ID)
		if err != nil {
			return nil, pmterrors.ErrInvalidID
		}
		doc.ID = oid
	}
	return doc, nil
}

func (d *paymentDoc) toModel() *model.Payment {
	return &model.Payment{
		ID:            d.ID.Hex(),
		PatientID:     d.PatientID,
		ServiceID:     d.ServiceID,
		AppointmentID: d.AppointmentID,
		Amount:        d.Amount,
		Method:        d.Method,
		Gateway:       d.Gateway,
		Status:        d.Status,
		TransactionID: d.TransactionID,
		RefundID:      d.RefundID,
		PaymentDate:   d.PaymentDate,
		RefundDate:    d.RefundDate,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
