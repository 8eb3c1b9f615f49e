package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEvaluateSuspension(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	reason := "ban evasion"

	cases := []struct {
		name    string
		active  bool
		records []SuspensionRecord
		wantErr error
		// post-state checks
		wantReactivated bool
	}{
		{
			name:   "no records, active",
			active: true,
		},
		{
			name:    "no records, inactive",
			active:  false,
			wantErr: ErrAccountInactive,
		},
		{
			name:   "latest reactivated wins over stale flag",
			active: false,
			records: []SuspensionRecord{
				{ID: 1, AccountID: 1, Action: ActionSuspended, ActionedAt: past.Add(-time.Hour)},
				{ID: 2, AccountID: 1, Action: ActionReactivated, ActionedAt: past},
			},
		},
		{
			name:   "permanent suspension",
			active: false,
			records: []SuspensionRecord{
				{ID: 1, AccountID: 1, Action: ActionSuspended, ActionedAt: past, Reason: &reason},
			},
			wantErr: ErrAccountSuspended,
		},
		{
			name:   "timed suspension still live",
			active: false,
			records: []SuspensionRecord{
				{ID: 1, AccountID: 1, Action: ActionSuspended, ActionedAt: past, SuspendedUntil: &future},
			},
			wantErr: ErrAccountSuspended,
		},
		{
			name:   "elapsed suspension auto-clears",
			active: false,
			records: []SuspensionRecord{
				{ID: 1, AccountID: 1, Action: ActionSuspended, ActionedAt: past.Add(-time.Hour), SuspendedUntil: &past},
			},
			wantReactivated: true,
		},
		{
			name:   "warning then live suspension still blocks",
			active: false,
			records: []SuspensionRecord{
				{ID: 1, AccountID: 1, Action: ActionSuspended, ActionedAt: past, SuspendedUntil: &future},
				{ID: 2, AccountID: 1, Action: ActionWarning, ActionedAt: past.Add(time.Hour)},
			},
			wantErr: ErrAccountSuspended,
		},
		{
			name:   "warning only, active",
			active: true,
			records: []SuspensionRecord{
				{ID: 1, AccountID: 1, Action: ActionWarning, ActionedAt: past},
			},
		},
		{
			name:   "warning only, inactive",
			active: false,
			records: []SuspensionRecord{
				{ID: 1, AccountID: 1, Action: ActionWarning, ActionedAt: past},
			},
			wantErr: ErrAccountInactive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newMemStore()
			st.addAccount(Account{ID: 1, Username: "alice", Active: tc.active})
			st.suspensions = append(st.suspensions, tc.records...)
			a, _ := st.GetAccountByID(context.Background(), 1)

			err := evaluateSuspension(context.Background(), st, a, now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantReactivated {
				if !a.Active {
					t.Fatal("account copy should be marked active")
				}
				if got := st.account(1); !got.Active {
					t.Fatal("stored account should be active")
				}
				recs, _ := st.RecentSuspensions(context.Background(), 1, 1)
				if len(recs) != 1 || recs[0].Action != ActionReactivated || recs[0].ActionedBy != nil {
					t.Fatalf("expected system reactivated record, got %+v", recs)
				}
			}
		})
	}
}

func TestEvaluateSuspensionReadsOnlyRecent(t *testing.T) {
	// an ancient suspension buried under two newer records must not block
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	st := newMemStore()
	st.addAccount(Account{ID: 1, Username: "alice", Active: true})
	st.suspensions = append(st.suspensions,
		SuspensionRecord{ID: 1, AccountID: 1, Action: ActionSuspended, ActionedAt: now.Add(-72 * time.Hour)},
		SuspensionRecord{ID: 2, AccountID: 1, Action: ActionReactivated, ActionedAt: now.Add(-48 * time.Hour)},
		SuspensionRecord{ID: 3, AccountID: 1, Action: ActionWarning, ActionedAt: now.Add(-time.Hour)},
	)
	a, _ := st.GetAccountByID(context.Background(), 1)
	if err := evaluateSuspension(context.Background(), st, a, now); err != nil {
		t.Fatalf("unexpected block: %v", err)
	}
}
