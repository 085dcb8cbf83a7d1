package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tumaini/tikiti/internal/domain"
)

const paymentColumns = `
	id, booking_id, phone, amount, merchant_request_id, checkout_request_id,
	status, receipt, result_code, result_desc, initiated_at, completed_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.Phone, &p.Amount, &p.MerchantRequestID,
		&p.CheckoutRequestID, &p.Status, &p.Receipt, &p.ResultCode, &p.ResultDesc,
		&p.InitiatedAt, &p.CompletedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan payment")
	}
	return &p, nil
}

func (r *Repository) CreatePayment(ctx context.Context, p domain.Payment) error {
	_, err := r.querier(ctx).Exec(ctx, `
		INSERT INTO payments (id, booking_id, phone, amount, merchant_request_id, checkout_request_id,
		                      status, receipt, result_code, result_desc, initiated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.BookingID, p.Phone, p.Amount, p.MerchantRequestID, p.CheckoutRequestID,
		p.Status, p.Receipt, p.ResultCode, p.ResultDesc, p.InitiatedAt)
	return errors.Wrap(err, "create payment")
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return scanPayment(r.querier(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetPaymentByCheckoutID matches an inbound callback to the attempt that
// requested it.
func (r *Repository) GetPaymentByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	return scanPayment(r.querier(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE checkout_request_id = $1`, checkoutRequestID))
}

// GetLatestPayment returns the most recent attempt for a booking; the resend
// cool-down is judged against its initiated_at.
func (r *Repository) GetLatestPayment(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, error) {
	return scanPayment(r.querier(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY initiated_at DESC LIMIT 1`, bookingID))
}

// ResolvePayment is the single pending->terminal choke point. The WHERE
// status='pending' clause serializes the callback, admin and sweeper paths;
// a zero-row update means the payment was already resolved and the caller
// must treat the attempt as already processed.
func (r *Repository) ResolvePayment(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, outcome domain.PaymentOutcome, at time.Time) (bool, error) {
	result, err := r.querier(ctx).Exec(ctx, `
		UPDATE payments
		SET status = $2, receipt = $3, result_code = $4, result_desc = $5, completed_at = $6
		WHERE id = $1 AND status = 'pending'
	`, id, status, outcome.Receipt, outcome.ResultCode, outcome.ResultDesc, at)
	if err != nil {
		return false, errors.Wrap(err, "resolve payment")
	}
	return result.RowsAffected() > 0, nil
}

// SetPaymentRequestIDs records the gateway correlation ids in the short
// follow-up transaction after the push request went out. Only a still-pending
// attempt may be stamped.
func (r *Repository) SetPaymentRequestIDs(ctx context.Context, id uuid.UUID, merchantRequestID, checkoutRequestID string) (bool, error) {
	result, err := r.querier(ctx).Exec(ctx, `
		UPDATE payments SET merchant_request_id = $2, checkout_request_id = $3
		WHERE id = $1 AND status = 'pending'
	`, id, merchantRequestID, checkoutRequestID)
	if err != nil {
		return false, errors.Wrap(err, "set payment request ids")
	}
	return result.RowsAffected() > 0, nil
}

// CancelBookingPayments closes out any non-terminal attempts for a booking
// during cancellation; successful payments move to cancelled for bookkeeping
// only, no money movement.
func (r *Repository) CancelBookingPayments(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	_, err := r.querier(ctx).Exec(ctx, `
		UPDATE payments SET status = 'cancelled', completed_at = $2
		WHERE booking_id = $1 AND status IN ('pending', 'successful')
	`, bookingID, at)
	return errors.Wrap(err, "cancel booking payments")
}

// ListStalePendingPayments feeds the expiry sweeper: the booking's most
// recent attempt, stuck pending past the cutoff. Superseded attempts are
// excluded so a booking with a live resend attempt never gets cancelled
// underneath it.
func (r *Repository) ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	rows, err := r.querier(ctx).Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = 'pending' AND initiated_at <= $1
		  AND NOT EXISTS (
		    SELECT 1 FROM payments newer
		    WHERE newer.booking_id = payments.booking_id
		      AND newer.initiated_at > payments.initiated_at
		  )
		ORDER BY initiated_at ASC LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list stale pending payments")
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Phone, &p.Amount, &p.MerchantRequestID,
			&p.CheckoutRequestID, &p.Status, &p.Receipt, &p.ResultCode, &p.ResultDesc,
			&p.InitiatedAt, &p.CompletedAt); err != nil {
			return nil, errors.Wrap(err, "scan stale payment")
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ExpireSupersededPayments fails pending attempts past the cutoff that a
// newer attempt has replaced. The booking is left alone; its fate rides on
// the newest attempt only.
func (r *Repository) ExpireSupersededPayments(ctx context.Context, cutoff, at time.Time) (int, error) {
	result, err := r.querier(ctx).Exec(ctx, `
		UPDATE payments
		SET status = 'failed', result_code = 1,
		    result_desc = 'superseded by a newer attempt', completed_at = $2
		WHERE status = 'pending' AND initiated_at <= $1
		  AND EXISTS (
		    SELECT 1 FROM payments newer
		    WHERE newer.booking_id = payments.booking_id
		      AND newer.initiated_at > payments.initiated_at
		  )
	`, cutoff, at)
	if err != nil {
		return 0, errors.Wrap(err, "expire superseded payments")
	}
	return int(result.RowsAffected()), nil
}
