// Package service holds workflows that span several repositories. The
// BookingCoordinator runs every booking write as one transaction, retried
// on lock-wait timeouts according to a retry.Policy.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/config"
	"github.com/sidasi/sidasi-backend/internal/database"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/queue"
	"github.com/sidasi/sidasi-backend/internal/repository"
	"github.com/sidasi/sidasi-backend/internal/retry"
	"github.com/sidasi/sidasi-backend/internal/validate"
)

// TxBeginner hands out transactions on pooled connections. *sqlx.DB
// satisfies it.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// HistoryStore appends and reads booking history. *repository.HistoryRepo
// satisfies it.
type HistoryStore interface {
	RecordTx(ctx context.Context, tx *sqlx.Tx, bookingID, userID uint64) (uint64, error)
	ListByBooking(ctx context.Context, bookingID uint64) ([]model.HistoryView, error)
}

// LineItem is one requested (product, quantity) pair.
type LineItem struct {
	ProductID uint64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateBookingInput carries a new booking. PaymentProof is a reference
// already returned by the upload store.
type CreateBookingInput struct {
	UserID        uint64     `json:"user_id" validate:"required,gt=0"`
	BookingDate   string     `json:"booking_date" validate:"required"`
	PaymentStatus string     `json:"payment_status" validate:"max=64"`
	PaymentProof  *string    `json:"payment_proof"`
	Items         []LineItem `json:"products" validate:"required,min=1,dive"`
}

// UpdateBookingInput is a partial update. Nil fields are left untouched;
// a non-nil Items replaces every line item of the booking.
type UpdateBookingInput struct {
	UserID           *uint64    `json:"user_id"`
	BookingDate      *string    `json:"booking_date"`
	PaymentStatus    *string    `json:"payment_status" validate:"omitempty,max=64"`
	PaymentProof     *string    `json:"payment_proof"`
	ValidationStatus *string    `json:"validation_status" validate:"omitempty,oneof=Pending Done"`
	Items            []LineItem `json:"products" validate:"dive"`
}

// UpdateResult reports what an update changed.
type UpdateResult struct {
	AffectedRows    int64 `json:"affected_rows"`
	ItemsReplaced   int   `json:"items_replaced"`
	HistoryRecorded bool  `json:"history_recorded"`
}

// DeleteResult reports what a delete removed. Deleted is 0 when the
// booking did not exist.
type DeleteResult struct {
	Deleted      int64 `json:"deleted"`
	ItemsRemoved int64 `json:"items_removed"`
}

// BookingCoordinator orchestrates the multi-table booking writes.
type BookingCoordinator struct {
	pool     TxBeginner
	bookings *repository.BookingRepo
	history  HistoryStore
	policy   retry.Policy
	events   EventPublisher
	log      *slog.Logger
}

// LockWaitPolicy retries only lock-wait timeouts, with a fixed delay.
func LockWaitPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       retry.Fixed(cfg.Delay),
		Retryable:   database.IsLockWaitTimeout,
	}
}

// NewBookingCoordinator wires the coordinator. A nil events publisher
// disables events; a nil logger uses slog.Default.
func NewBookingCoordinator(pool TxBeginner, bookings *repository.BookingRepo, history HistoryStore,
	policy retry.Policy, events EventPublisher, logger *slog.Logger) *BookingCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopPublisher{}
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("booking transaction hit lock wait timeout; retrying",
				"attempt", attempt, "delay", delay.String(), "err", err)
		}
	}
	return &BookingCoordinator{
		pool:     pool,
		bookings: bookings,
		history:  history,
		policy:   policy,
		events:   events,
		log:      logger,
	}
}

// Create inserts the booking, its line items and the creation history row
// atomically and returns the new booking id.
func (s *BookingCoordinator) Create(ctx context.Context, in CreateBookingInput) (uint64, error) {
	const op = "booking.create"
	if err := validate.Struct(op, in); err != nil {
		return 0, err
	}
	date, ok := validate.Date(in.BookingDate)
	if !ok {
		return 0, apperror.Validation(op, badDate)
	}

	b := model.Booking{
		UserID:        in.UserID,
		BookingDate:   date,
		PaymentStatus: in.PaymentStatus,
		PaymentProof:  in.PaymentProof,
	}
	items := toItems(in.Items)

	err := s.inTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		b.ID = 0
		if err := s.bookings.CreateTx(ctx, tx, &b); err != nil {
			return err
		}
		if err := s.bookings.CreateItemsBulkTx(ctx, tx, b.ID, items); err != nil {
			return err
		}
		_, err := s.history.RecordTx(ctx, tx, b.ID, b.UserID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, queue.BookingEvent{
		Type:             queue.EventBookingCreated,
		BookingID:        b.ID,
		UserID:           b.UserID,
		BookingDate:      date.Format("2006-01-02"),
		PaymentStatus:    b.PaymentStatus,
		ValidationStatus: b.ValidationStatus,
		ItemCount:        len(items),
	})
	return b.ID, nil
}

// Update applies a partial update. Moving the booking to Done records one
// history row for the booking's owner; supplying items replaces all of
// them. An input with nothing to change succeeds without touching the
// database.
func (s *BookingCoordinator) Update(ctx context.Context, id uint64, in UpdateBookingInput) (UpdateResult, error) {
	const op = "booking.update"
	fields, err := s.updateFields(op, id, in)
	if err != nil {
		return UpdateResult{}, err
	}
	if fields.Empty() && in.Items == nil {
		return UpdateResult{}, nil
	}
	items := toItems(in.Items)

	var (
		res   UpdateResult
		owner uint64
	)
	err = s.inTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		res = UpdateResult{}
		prev, err := s.bookings.StateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		rest, toDone := fields, fields.ValidationStatus != nil && *fields.ValidationStatus == model.ValidationDone
		if toDone {
			rest.ValidationStatus = nil
		}
		if res.AffectedRows, err = s.bookings.UpdateFieldsTx(ctx, tx, id, rest); err != nil {
			return err
		}
		owner = prev.UserID
		if fields.UserID != nil {
			owner = *fields.UserID
		}
		if toDone {
			// The conditional UPDATE takes the row lock, so the snapshot in
			// prev cannot decide whether this call completes the booking.
			completed, err := s.bookings.CompleteTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if completed {
				res.AffectedRows = 1
				if _, err := s.history.RecordTx(ctx, tx, id, owner); err != nil {
					return err
				}
				res.HistoryRecorded = true
			}
		}
		if in.Items != nil {
			if _, err := s.bookings.DeleteItemsTx(ctx, tx, id); err != nil {
				return err
			}
			if err := s.bookings.CreateItemsBulkTx(ctx, tx, id, items); err != nil {
				return err
			}
			res.ItemsReplaced = len(items)
		}
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}

	if res.HistoryRecorded {
		s.publish(ctx, queue.BookingEvent{
			Type:             queue.EventBookingCompleted,
			BookingID:        id,
			UserID:           owner,
			ValidationStatus: model.ValidationDone,
			ItemCount:        res.ItemsReplaced,
		})
	}
	return res, nil
}

// Delete removes the line items and then the booking; its history goes
// with it. Deleting a booking that does not exist succeeds with
// Deleted == 0.
func (s *BookingCoordinator) Delete(ctx context.Context, id uint64) (DeleteResult, error) {
	const op = "booking.delete"
	if id == 0 {
		return DeleteResult{}, apperror.Validation(op, badID)
	}
	var res DeleteResult
	err := s.inTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		if res.ItemsRemoved, err = s.bookings.DeleteItemsTx(ctx, tx, id); err != nil {
			return err
		}
		res.Deleted, err = s.bookings.DeleteTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return res, nil
}

// Get returns a booking with its line items.
func (s *BookingCoordinator) Get(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, classify("booking.get", err)
	}
	return b, nil
}

// List returns bookings, restricted to userID when it is non-zero.
func (s *BookingCoordinator) List(ctx context.Context, userID uint64) ([]model.Booking, error) {
	out, err := s.bookings.List(ctx, userID)
	if err != nil {
		return nil, classify("booking.list", err)
	}
	return out, nil
}

// History returns the history rows of an existing booking.
func (s *BookingCoordinator) History(ctx context.Context, id uint64) ([]model.HistoryView, error) {
	const op = "booking.history"
	if _, err := s.bookings.GetByID(ctx, id); err != nil {
		return nil, classify(op, err)
	}
	out, err := s.history.ListByBooking(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// inTx runs fn in a fresh transaction per attempt. Every failed attempt is
// rolled back before the policy decides whether to try again.
func (s *BookingCoordinator) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		tx, err := s.pool.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		return nil
	})
	return classify(op, err)
}

// publish sends ev with a bounded timeout that outlives request
// cancellation. Failures are logged only.
func (s *BookingCoordinator) publish(ctx context.Context, ev queue.BookingEvent) {
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		s.log.Warn("booking event not published", "type", ev.Type, "booking_id", ev.BookingID, "err", err)
	}
}

func (s *BookingCoordinator) updateFields(op string, id uint64, in UpdateBookingInput) (repository.BookingFields, error) {
	var problems []apperror.FieldError
	if id == 0 {
		problems = append(problems, badID)
	}
	if err := validate.Struct(op, in); err != nil {
		if !apperror.Is(err, apperror.KindValidation) {
			return repository.BookingFields{}, err
		}
		problems = append(problems, apperror.FieldsOf(err)...)
	}
	if in.UserID != nil && *in.UserID == 0 {
		problems = append(problems, apperror.FieldError{Field: "user_id", Problem: "must be greater than 0"})
	}
	if in.Items != nil && len(in.Items) == 0 {
		problems = append(problems, apperror.FieldError{Field: "products", Problem: "must contain at least 1 item(s)"})
	}
	f := repository.BookingFields{
		UserID:           in.UserID,
		PaymentStatus:    in.PaymentStatus,
		PaymentProof:     in.PaymentProof,
		ValidationStatus: in.ValidationStatus,
	}
	if in.BookingDate != nil {
		d, ok := validate.Date(*in.BookingDate)
		if !ok {
			problems = append(problems, badDate)
		}
		f.BookingDate = &d
	}
	if len(problems) > 0 {
		return repository.BookingFields{}, apperror.Validation(op, problems...)
	}
	return f, nil
}

var (
	badID   = apperror.FieldError{Field: "id", Problem: "must be a positive integer"}
	badDate = apperror.FieldError{Field: "booking_date", Problem: "must be a date in 2006-01-02 format"}
)

// classify maps driver and repository errors to apperror kinds. Errors
// that already carry a kind pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperror.Error
	switch {
	case errors.As(err, &ae):
		return err
	case database.IsLockWaitTimeout(err):
		return apperror.Contention(op, err)
	case errors.Is(err, repository.ErrBookingNotFound):
		return apperror.NotFound(op, "booking")
	}
	return apperror.Internal(op, err)
}

func toItems(in []LineItem) []model.BookingItem {
	out := make([]model.BookingItem, 0, len(in))
	for _, it := range in {
		out = append(out, model.BookingItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
