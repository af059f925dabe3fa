package relay

import (
	"testing"
	"time"
)

func TestRequestStatusIsTerminal(t *testing.T) {
	cases := []struct {
		status   RequestStatus
		terminal bool
	}{
		{RequestStatusOpen, false},
		{RequestStatusClaimed, false},
		{RequestStatusCompletedSuccess, true},
		{RequestStatusCompletedFailure, true},
		{RequestStatusCancelled, true},
		{RequestStatusExpired, true},
	}
	for _, tc := range cases {
		if got := tc.status.IsTerminal(); got != tc.terminal {
			t.Errorf("%s: IsTerminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestTerminalOutcome(t *testing.T) {
	if TerminalOutcome(FulfillmentStatusActive) {
		t.Error("active must not be a close outcome")
	}
	for _, outcome := range []FulfillmentStatus{
		FulfillmentStatusCompletedSuccess,
		FulfillmentStatusCompletedFailure,
		FulfillmentStatusCancelled,
	} {
		if !TerminalOutcome(outcome) {
			t.Errorf("%s should be a close outcome", outcome)
		}
	}
	if TerminalOutcome(FulfillmentStatus("bogus")) {
		t.Error("unknown status must not be a close outcome")
	}
}

func TestRequestStatusFor(t *testing.T) {
	cases := map[FulfillmentStatus]RequestStatus{
		FulfillmentStatusCompletedSuccess: RequestStatusCompletedSuccess,
		FulfillmentStatusCompletedFailure: RequestStatusCompletedFailure,
		FulfillmentStatusCancelled:        RequestStatusCancelled,
	}
	for outcome, want := range cases {
		if got := RequestStatusFor(outcome); got != want {
			t.Errorf("RequestStatusFor(%s) = %s, want %s", outcome, got, want)
		}
	}
}

func TestEffectiveStatusAndCanClaim(t *testing.T) {
	now := time.Now().UTC()

	open := Request{Status: RequestStatusOpen, ExpiresAt: now.Add(time.Hour)}
	if open.EffectiveStatus(now) != RequestStatusOpen {
		t.Error("unexpired open request should read as open")
	}
	if !open.CanClaim(now) {
		t.Error("unexpired open request should be claimable")
	}

	pastDeadline := Request{Status: RequestStatusOpen, ExpiresAt: now.Add(-time.Minute)}
	if pastDeadline.EffectiveStatus(now) != RequestStatusExpired {
		t.Error("open request past deadline should read as expired")
	}
	if pastDeadline.CanClaim(now) {
		t.Error("expired request must not be claimable")
	}

	// Deadline exactly now counts as expired.
	atDeadline := Request{Status: RequestStatusOpen, ExpiresAt: now}
	if atDeadline.EffectiveStatus(now) != RequestStatusExpired {
		t.Error("request at its deadline should read as expired")
	}

	// Terminal statuses never flip to expired at read time.
	done := Request{Status: RequestStatusCompletedSuccess, ExpiresAt: now.Add(-time.Hour)}
	if done.EffectiveStatus(now) != RequestStatusCompletedSuccess {
		t.Error("terminal status must keep its value past the deadline")
	}

	claimed := Request{Status: RequestStatusClaimed, ExpiresAt: now.Add(-time.Hour)}
	if claimed.EffectiveStatus(now) != RequestStatusClaimed {
		t.Error("claimed request must not expire")
	}
	if claimed.CanClaim(now) {
		t.Error("claimed request must not be claimable")
	}
}
