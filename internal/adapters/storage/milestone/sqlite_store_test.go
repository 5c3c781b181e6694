package milestone

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wikimasters/internal/adapters/storage"
	domain "wikimasters/internal/domain/milestone"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("init db: %v", err)
	}
	return db
}

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// TestSQLiteStore_Claim_OnlyOnce tests that a second claim for the same pair is rejected.
func TestSQLiteStore_Claim_OnlyOnce(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	ctx := context.Background()

	first, err := store.Claim(ctx, domain.Claim{ID: "c-1", ArticleID: 7, Threshold: 10, ClaimedAt: fixedNow})
	if err != nil || !first {
		t.Fatalf("first claim: claimed=%v err=%v", first, err)
	}
	second, err := store.Claim(ctx, domain.Claim{ID: "c-2", ArticleID: 7, Threshold: 10, ClaimedAt: fixedNow})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second {
		t.Error("expected second claim to be rejected")
	}

	other, err := store.Claim(ctx, domain.Claim{ID: "c-3", ArticleID: 7, Threshold: 100, ClaimedAt: fixedNow})
	if err != nil || !other {
		t.Errorf("different threshold should be claimable: claimed=%v err=%v", other, err)
	}
}

// TestSQLiteStore_Claim_Concurrent tests that exactly one of many racing callers wins.
func TestSQLiteStore_Claim_Concurrent(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(ctx, domain.Claim{ID: fmt.Sprintf("c-%d", i), ArticleID: 1, Threshold: 5, ClaimedAt: fixedNow})
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}

// TestSQLiteStore_MarkNotifiedAndFailed tests the delivery status transitions.
func TestSQLiteStore_MarkNotifiedAndFailed(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	ctx := context.Background()

	store.Claim(ctx, domain.Claim{ID: "c-5", ArticleID: 3, Threshold: 5, ClaimedAt: fixedNow})
	store.Claim(ctx, domain.Claim{ID: "c-10", ArticleID: 3, Threshold: 10, ClaimedAt: fixedNow})

	if err := store.MarkNotified(ctx, "c-5"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := store.MarkFailed(ctx, "c-10", "provider down", fixedNow.Add(time.Minute)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	claims, err := store.ListByArticleID(ctx, 3)
	if err != nil {
		t.Fatalf("ListByArticleID: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("len = %d, want 2", len(claims))
	}
	if claims[0].Threshold != 5 || !claims[0].Notified || claims[0].ErrorMessage != "" {
		t.Errorf("unexpected first claim: %+v", claims[0])
	}
	if claims[1].Threshold != 10 || claims[1].Notified || claims[1].ErrorMessage != "provider down" {
		t.Errorf("unexpected second claim: %+v", claims[1])
	}
	if claims[1].Attempts != 1 || !claims[1].LastAttemptedAt.Equal(fixedNow.Add(time.Minute)) {
		t.Errorf("attempts = %d at %v, want 1 at %v", claims[1].Attempts, claims[1].LastAttemptedAt, fixedNow.Add(time.Minute))
	}
	if !claims[0].ClaimedAt.Equal(fixedNow) {
		t.Errorf("ClaimedAt = %v, want %v", claims[0].ClaimedAt, fixedNow)
	}
}

// TestSQLiteStore_ListFailed tests that only undelivered claims under the attempt limit are returned.
func TestSQLiteStore_ListFailed(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	ctx := context.Background()

	store.Claim(ctx, domain.Claim{ID: "ok", ArticleID: 1, Threshold: 5, ClaimedAt: fixedNow})
	store.Claim(ctx, domain.Claim{ID: "pending", ArticleID: 1, Threshold: 10, ClaimedAt: fixedNow})
	store.Claim(ctx, domain.Claim{ID: "late", ArticleID: 2, Threshold: 5, ClaimedAt: fixedNow.Add(time.Second)})
	store.Claim(ctx, domain.Claim{ID: "early", ArticleID: 3, Threshold: 5, ClaimedAt: fixedNow.Add(-time.Second)})
	store.Claim(ctx, domain.Claim{ID: "spent", ArticleID: 4, Threshold: 5, ClaimedAt: fixedNow})

	store.MarkNotified(ctx, "ok")
	store.MarkFailed(ctx, "late", "timeout", fixedNow)
	store.MarkFailed(ctx, "early", "timeout", fixedNow)
	for range 3 {
		store.MarkFailed(ctx, "spent", "bounced", fixedNow)
	}

	claims, err := store.ListFailed(ctx, 3, fixedNow.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(claims), claims)
	}
	if claims[0].ID != "early" || claims[1].ID != "late" {
		t.Errorf("order = [%s %s], want [early late]", claims[0].ID, claims[1].ID)
	}

	limited, err := store.ListFailed(ctx, 3, fixedNow.Add(-time.Hour), 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("limit 1: len=%d err=%v", len(limited), err)
	}
}

// TestSQLiteStore_ListFailed_Stalled tests that claims never settled by their sender are picked up once stale.
func TestSQLiteStore_ListFailed_Stalled(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	ctx := context.Background()

	store.Claim(ctx, domain.Claim{ID: "abandoned", ArticleID: 1, Threshold: 5, ClaimedAt: fixedNow.Add(-time.Hour)})
	store.Claim(ctx, domain.Claim{ID: "in-flight", ArticleID: 1, Threshold: 10, ClaimedAt: fixedNow.Add(-500 * time.Millisecond)})
	store.Claim(ctx, domain.Claim{ID: "delivered", ArticleID: 2, Threshold: 5, ClaimedAt: fixedNow.Add(-time.Hour)})
	store.MarkNotified(ctx, "delivered")

	claims, err := store.ListFailed(ctx, 3, fixedNow.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(claims) != 1 || claims[0].ID != "abandoned" {
		t.Fatalf("claims = %+v, want only the abandoned claim", claims)
	}
	if claims[0].ErrorMessage != "" || claims[0].Attempts != 0 {
		t.Errorf("abandoned claim = %+v, want no recorded attempt", claims[0])
	}
}
