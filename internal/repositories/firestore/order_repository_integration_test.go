//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/shopnatural/core/internal/domain"
	pfirestore "github.com/shopnatural/core/internal/platform/firestore"
	"github.com/shopnatural/core/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestOrderRepositoryReservationLifecycleIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pfirestore.Config{
		ProjectID:    "orders-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close() })

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if _, err := client.Collection(promotionCodesCollection).Doc("prm-1").Set(ctx, promotionCodeDocument{
		Code:       "SUMMER12",
		Type:       "percent",
		Value:      "12",
		UsageLimit: 10,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed promotion code: %v", err)
	}

	codeTimesUsed := func(t *testing.T) int64 {
		t.Helper()
		snap, err := client.Collection(promotionCodesCollection).Doc("prm-1").Get(ctx)
		if err != nil {
			t.Fatalf("read promotion code: %v", err)
		}
		var doc promotionCodeDocument
		if err := snap.DataTo(&doc); err != nil {
			t.Fatalf("decode promotion code: %v", err)
		}
		return doc.TimesUsed
	}
	usageStatus := func(t *testing.T, usageID string) (string, bool) {
		t.Helper()
		snap, err := client.Collection(promotionUsageCollection).Doc(usageID).Get(ctx)
		if err != nil {
			return "", false
		}
		var doc promotionUsageDocument
		if err := snap.DataTo(&doc); err != nil {
			t.Fatalf("decode usage: %v", err)
		}
		return doc.Status, true
	}

	newOrder := func(id, usageID string) domain.Order {
		return domain.Order{
			ID:            id,
			Status:        domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusPending,
			Currency:      "EUR",
			Email:         "ona@example.com",
			Promotion: &domain.AppliedPromotion{
				CodeID:   "prm-1",
				Code:     "SUMMER12",
				UsageID:  usageID,
				Discount: 240,
			},
		}
	}

	// Reservation lands atomically with the order.
	if _, err := repo.Create(ctx, newOrder("o-1", "use-1"), &repositories.PromotionReservation{
		UsageID:    "use-1",
		CodeID:     "prm-1",
		CustomerID: "cust-1",
		Discount:   240,
		UsageLimit: 10,
	}); err != nil {
		t.Fatalf("create order with reservation: %v", err)
	}
	if got := codeTimesUsed(t); got != 1 {
		t.Fatalf("timesUsed after reservation = %d, want 1", got)
	}
	if status, ok := usageStatus(t, "use-1"); !ok || status != string(domain.UsageStatusPending) {
		t.Fatalf("usage use-1 = %q present=%v, want pending", status, ok)
	}

	// A failed payment returns the redemption to the pool.
	res, err := repo.ApplyPaymentOutcome(ctx, repositories.PaymentOutcomeRequest{
		OrderID:       "o-1",
		Outcome:       domain.PaymentOutcomeFailed,
		PaymentStatus: domain.PaymentStatusFailed,
		Payment:       domain.PaymentRecord{Gateway: "stripe", FailureReason: "card_declined"},
	})
	if err != nil {
		t.Fatalf("apply failed outcome: %v", err)
	}
	if !res.Applied {
		t.Fatal("first failed outcome should apply")
	}
	if got := codeTimesUsed(t); got != 0 {
		t.Fatalf("timesUsed after release = %d, want 0", got)
	}
	if _, ok := usageStatus(t, "use-1"); ok {
		t.Fatal("usage use-1 should be deleted after release")
	}

	// Replaying the same failure is a no-op.
	res, err = repo.ApplyPaymentOutcome(ctx, repositories.PaymentOutcomeRequest{
		OrderID:       "o-1",
		Outcome:       domain.PaymentOutcomeFailed,
		PaymentStatus: domain.PaymentStatusFailed,
	})
	if err != nil {
		t.Fatalf("replay failed outcome: %v", err)
	}
	if res.Applied {
		t.Fatal("replayed failure must not apply")
	}
	if got := codeTimesUsed(t); got != 0 {
		t.Fatalf("timesUsed after replay = %d, want 0", got)
	}

	// Cancelling through Mutate releases a still-pending reservation.
	if _, err := repo.Create(ctx, newOrder("o-2", "use-2"), &repositories.PromotionReservation{
		UsageID:    "use-2",
		CodeID:     "prm-1",
		CustomerID: "cust-2",
		Discount:   240,
		UsageLimit: 10,
	}); err != nil {
		t.Fatalf("create second order: %v", err)
	}
	if got := codeTimesUsed(t); got != 1 {
		t.Fatalf("timesUsed after second reservation = %d, want 1", got)
	}

	cancelled, err := repo.Mutate(ctx, "o-2", func(order domain.Order) (repositories.OrderMutation, error) {
		order.Status = domain.OrderStatusCancelled
		order.CancelReason = "operator cleanup"
		return repositories.OrderMutation{Order: order, ReleaseUsage: true}, nil
	})
	if err != nil {
		t.Fatalf("mutate cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("status after mutate = %s", cancelled.Status)
	}
	if got := codeTimesUsed(t); got != 0 {
		t.Fatalf("timesUsed after cancel = %d, want 0", got)
	}
	if _, ok := usageStatus(t, "use-2"); ok {
		t.Fatal("usage use-2 should be deleted after cancel")
	}

	// A confirmed usage survives a release request.
	if _, err := repo.Create(ctx, newOrder("o-3", "use-3"), &repositories.PromotionReservation{
		UsageID:    "use-3",
		CodeID:     "prm-1",
		CustomerID: "cust-3",
		Discount:   240,
		UsageLimit: 10,
	}); err != nil {
		t.Fatalf("create third order: %v", err)
	}
	paidAt := now.Add(time.Minute)
	if _, err := repo.ApplyPaymentOutcome(ctx, repositories.PaymentOutcomeRequest{
		OrderID:       "o-3",
		Outcome:       domain.PaymentOutcomeSucceeded,
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusPaid,
		OrderNumber:   "SN-0001",
		PaidAt:        &paidAt,
	}); err != nil {
		t.Fatalf("apply success: %v", err)
	}
	if status, ok := usageStatus(t, "use-3"); !ok || status != string(domain.UsageStatusConfirmed) {
		t.Fatalf("usage use-3 = %q present=%v, want confirmed", status, ok)
	}

	if _, err := repo.Mutate(ctx, "o-3", func(order domain.Order) (repositories.OrderMutation, error) {
		order.Status = domain.OrderStatusCancelled
		order.PaymentStatus = domain.PaymentStatusRefunded
		return repositories.OrderMutation{Order: order, ReleaseUsage: true}, nil
	}); err != nil {
		t.Fatalf("mutate cancel paid order: %v", err)
	}
	if status, ok := usageStatus(t, "use-3"); !ok || status != string(domain.UsageStatusConfirmed) {
		t.Fatalf("usage use-3 after cancel = %q present=%v, want confirmed kept", status, ok)
	}
	if got := codeTimesUsed(t); got != 1 {
		t.Fatalf("timesUsed after paid cancel = %d, want 1", got)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
