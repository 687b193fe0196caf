package phoneauth

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/phoneauth/internal/store"
)

// ScheduleDeletion deactivates the caller's account and ends every session.
// The account is deleted after Account.DeletionGracePeriod unless the owner
// signs in again before then, which reactivates it.
func (e *Engine) ScheduleDeletion(ctx context.Context, p Principal) (time.Time, error) {
	if err := e.ready(); err != nil {
		return time.Time{}, err
	}

	var (
		deadline time.Time
		revoked  int
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.loadActiveUser(ctx, tx, p)
		if err != nil {
			return err
		}
		now := e.now()
		deadline = now.Add(e.config.Account.DeletionGracePeriod)
		u.DeletionScheduledFor = &deadline
		u.IsActive = false
		u.UpdatedAt = now
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		revoked, err = e.sessions.RevokeAllForUser(ctx, tx, u.ID)
		return err
	})
	if err != nil {
		return time.Time{}, e.fail(ctx, "schedule_deletion", err, "user_id", p.UserID)
	}

	e.metricInc(MetricAccountDeletionScheduled)
	e.emitAudit(ctx, auditEventAccountDeletionScheduled, true, principalSubject(p), nil, func() map[string]string {
		return map[string]string{
			"deletion_at":      deadline.UTC().Format(time.RFC3339),
			"revoked_sessions": strconv.Itoa(revoked),
		}
	})
	return deadline, nil
}
