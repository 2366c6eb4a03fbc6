package paymentsrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"makao/internal/infra/dbx"
)

type LogsRepository struct{ q dbx.Querier }

func NewLogsRepository(q dbx.Querier) *LogsRepository {
	return &LogsRepository{q: q}
}

// InsertPaymentLog stores payload as jsonb. A payload that cannot be
// marshalled is stored as NULL rather than failing the caller.
func (r *LogsRepository) InsertPaymentLog(ctx context.Context, paymentID int64, logType string, payload any) error {
	var jb []byte
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			jb = b
		}
	}

	if _, err := r.q.Exec(ctx, `
		INSERT INTO payment_logs (payment_id, log_type, payload)
		VALUES ($1, $2, $3)
	`, paymentID, logType, jb); err != nil {
		return fmt.Errorf("insert payment_log: %w", err)
	}
	return nil
}

func (r *LogsRepository) ListByPayment(ctx context.Context, paymentID int64) ([]PaymentLog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, payment_id, log_type, payload, created_at
		FROM payment_logs WHERE payment_id = $1 ORDER BY id
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list payment logs: %w", err)
	}
	defer rows.Close()

	out := []PaymentLog{}
	for rows.Next() {
		var l PaymentLog
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.LogType, &l.Payload, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
