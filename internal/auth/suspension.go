package auth

import (
	"context"
	"time"

	"github.com/anonymousobject/shuushuu-api-sub001/pkg/utilities"
)

const defaultSuspendedMessage = "User account is suspended"

// evaluateSuspension decides whether the account may authenticate, from the
// append-only suspension ledger. The ledger wins over the cached active flag.
// An elapsed suspension is cleared here: active is set back to true and a
// system reactivated record is appended, riding the caller's transaction via
// st. Runs on every login and every refresh.
func evaluateSuspension(ctx context.Context, st Store, a *Account, now time.Time) error {
	recs, err := st.RecentSuspensions(ctx, a.ID, 2)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		if !a.Active {
			// never-suspended inactive account (e.g. unverified signup);
			// terminal, not cleared by waiting
			return ErrAccountInactive
		}
		return nil
	}
	if recs[0].Action == ActionReactivated {
		return nil
	}

	var susp *SuspensionRecord
	for i := range recs {
		if recs[i].Action == ActionSuspended {
			susp = &recs[i]
			break
		}
	}
	if susp == nil {
		// warning-only ledger; defer to the cached flag
		if !a.Active {
			return ErrAccountInactive
		}
		return nil
	}

	if susp.SuspendedUntil == nil || susp.SuspendedUntil.After(now) {
		reason := defaultSuspendedMessage
		if susp.Reason != nil && *susp.Reason != "" {
			reason = *susp.Reason
		}
		return &SuspendedError{Reason: reason, Until: susp.SuspendedUntil}
	}

	// suspension elapsed: reactivate
	if err := st.SetAccountActive(ctx, a.ID, true); err != nil {
		return err
	}
	rec := &SuspensionRecord{
		ID:         utilities.NewRowID(),
		AccountID:  a.ID,
		Action:     ActionReactivated,
		ActionedBy: nil, // system action
		ActionedAt: now,
	}
	if err := st.AppendSuspension(ctx, rec); err != nil {
		return err
	}
	a.Active = true
	return nil
}
