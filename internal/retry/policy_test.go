package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/photosmith/photosmith/internal/common"
)

func TestDecide_PermanentFailsImmediately(t *testing.T) {
	p := DefaultPolicy()
	kinds := []common.ErrorKind{
		common.KindPermanent,
		common.KindImageDecode,
		common.KindImageTooLarge,
		common.KindSchemaValidation,
	}
	for _, kind := range kinds {
		err := common.NewProcessingError(kind, "boom", nil)
		if got := p.Decide(err, 1, 0); got != OutcomeFail {
			t.Errorf("kind %s after 1 attempt: expected fail, got %v", kind, got)
		}
	}
}

func TestDecide_UnclassifiedFails(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Decide(errors.New("mystery"), 1, 0); got != OutcomeFail {
		t.Errorf("unclassified error must not retry, got %v", got)
	}
}

func TestDecide_TransientRetriesExactlyMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, StorageMaxAttempts: 5, BackoffBase: time.Second, BackoffMax: time.Minute}
	err := common.Transientf(nil, "rate limited")

	// Attempts is the count already spent, failed attempt included.
	for attempts := 1; attempts < 3; attempts++ {
		if got := p.Decide(err, attempts, 0); got != OutcomeRetry {
			t.Errorf("attempt %d of 3: expected retry, got %v", attempts, got)
		}
	}
	if got := p.Decide(err, 3, 0); got != OutcomeFail {
		t.Errorf("attempt 3 of 3: expected fail, got %v", got)
	}
}

func TestDecide_PerItemBudgetOverridesPolicy(t *testing.T) {
	p := Policy{MaxAttempts: 3, StorageMaxAttempts: 5, BackoffBase: time.Second, BackoffMax: time.Minute}
	err := common.Transientf(nil, "provider 503")

	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		want        Outcome
	}{
		{"raised budget keeps retrying past policy default", 5, 10, OutcomeRetry},
		{"raised budget still exhausts", 10, 10, OutcomeFail},
		{"lowered budget fails early", 2, 2, OutcomeFail},
		{"lowered budget retries within bound", 1, 2, OutcomeRetry},
		{"zero falls back to policy default", 3, 0, OutcomeFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Decide(err, tt.attempts, tt.maxAttempts); got != tt.want {
				t.Errorf("Decide(attempts=%d, max=%d) = %v, want %v", tt.attempts, tt.maxAttempts, got, tt.want)
			}
		})
	}
}

func TestDecide_StorageHasOwnBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, StorageMaxAttempts: 5, BackoffBase: time.Second, BackoffMax: time.Minute}
	err := common.NewProcessingError(common.KindStorage, "db hiccup", nil)

	if got := p.Decide(err, 4, 0); got != OutcomeRetry {
		t.Errorf("storage attempt 4 of 5: expected retry, got %v", got)
	}
	if got := p.Decide(err, 5, 0); got != OutcomeFail {
		t.Errorf("storage attempt 5 of 5: expected fail, got %v", got)
	}
	// A small per-item budget does not shrink the storage floor.
	if got := p.Decide(err, 4, 2); got != OutcomeRetry {
		t.Errorf("storage keeps its floor under a small item budget, got %v", got)
	}
	// A larger per-item budget extends it.
	if got := p.Decide(err, 7, 8); got != OutcomeRetry {
		t.Errorf("storage honors a raised item budget, got %v", got)
	}
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 10, StorageMaxAttempts: 10, BackoffBase: 30 * time.Second, BackoffMax: 15 * time.Minute}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 15 * time.Minute},
		{20, 15 * time.Minute},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
