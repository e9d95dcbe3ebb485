package expiry

import (
	"context"
	"testing"
	"time"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/database"
	"deposit-reconciler-go/internal/events"
	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupMonitor(t *testing.T) (*Monitor, *database.Service, <-chan events.Event) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	planCatalog, err := catalog.NewPlanCatalog([]models.PlanDefinition{
		{
			Id:    "starter",
			Order: 1,
			Amounts: map[string]decimal.Decimal{
				"USDT": decimal.NewFromInt(25),
			},
			DurationDays:     30,
			PayoutPercentage: decimal.NewFromInt(210),
		},
	})
	if err != nil {
		t.Fatalf("NewPlanCatalog failed: %v", err)
	}

	bus := events.NewBus()
	completed := bus.Subscribe(models.TopicDepositCompleted, 4)
	return NewMonitor(db, planCatalog, bus), db, completed
}

func activatedDeposit(t *testing.T, db *database.Service, txHash string) *models.DepositRecord {
	t.Helper()
	ctx := context.Background()
	record, err := db.Create(ctx, store.CreateDepositParams{
		UserAddress: "0xPayer1",
		PlanId:      "starter",
		Currency:    "USDT",
		Amount:      decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := db.Activate(ctx, record.Id, txHash); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	loaded, err := db.Find(ctx, record.Id)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	return loaded
}

func TestSweep_CompletesExpiredDeposits(t *testing.T) {
	monitor, db, completed := setupMonitor(t)
	ctx := context.Background()
	record := activatedDeposit(t, db, "0xtx1")

	// One day past the 30-day duration.
	now := record.ActivatedAt.AddDate(0, 0, 31)
	n, err := monitor.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 completion, got %d", n)
	}

	loaded, err := db.Find(ctx, record.Id)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if loaded.Status != models.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", loaded.Status)
	}

	select {
	case ev := <-completed:
		payload := ev.Payload.(models.DepositCompleted)
		if payload.Id != record.Id {
			t.Errorf("unexpected completion id %s", payload.Id)
		}
		// 25 at 210% payout: 52.5 returned, 27.5 profit.
		if !payload.Profit.Equal(decimal.RequireFromString("27.5")) {
			t.Errorf("expected profit 27.5, got %s", payload.Profit)
		}
	default:
		t.Fatal("expected a deposit:completed event")
	}
}

func TestSweep_LeavesUnexpiredAlone(t *testing.T) {
	monitor, db, completed := setupMonitor(t)
	ctx := context.Background()
	record := activatedDeposit(t, db, "0xtx1")

	n, err := monitor.Sweep(ctx, record.ActivatedAt.AddDate(0, 0, 29))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no completions before expiry, got %d", n)
	}

	loaded, _ := db.Find(ctx, record.Id)
	if loaded.Status != models.StatusActive {
		t.Errorf("expected ACTIVE, got %s", loaded.Status)
	}
	select {
	case ev := <-completed:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestSweep_Idempotent(t *testing.T) {
	monitor, db, completed := setupMonitor(t)
	ctx := context.Background()
	record := activatedDeposit(t, db, "0xtx1")
	now := record.ActivatedAt.AddDate(0, 0, 31)

	if _, err := monitor.Sweep(ctx, now); err != nil {
		t.Fatalf("first Sweep failed: %v", err)
	}
	n, err := monitor.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected repeat sweep to settle nothing, got %d", n)
	}

	<-completed
	select {
	case ev := <-completed:
		t.Errorf("repeat sweep published a second event: %+v", ev)
	default:
	}
}

func TestSweep_IgnoresPendingRecords(t *testing.T) {
	monitor, db, _ := setupMonitor(t)
	ctx := context.Background()

	pending, err := db.Create(ctx, store.CreateDepositParams{
		UserAddress: "0xPayer2",
		PlanId:      "starter",
		Currency:    "USDT",
		Amount:      decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	n, err := monitor.Sweep(ctx, time.Now().UTC().AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no completions, got %d", n)
	}
	loaded, _ := db.Find(ctx, pending.Id)
	if loaded.Status != models.StatusPending {
		t.Errorf("pending record was touched: %s", loaded.Status)
	}
}
