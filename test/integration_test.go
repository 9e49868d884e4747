//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/dkoval/storefront/internal/catalog"
	"github.com/dkoval/storefront/internal/domain"
	"github.com/dkoval/storefront/internal/messaging"
	"github.com/dkoval/storefront/internal/notify"
	"github.com/dkoval/storefront/internal/orders"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db          *sql.DB
	catalogRepo *catalog.Repository
	store       *orders.SQLStore
	service     *orders.Service
	rootCat     string
}

func newFixture(t *testing.T, connStr string, producer orders.Publisher) *fixture {
	t.Helper()

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	catalogRepo := catalog.NewRepository(db)
	store := orders.NewSQLStore(db, catalogRepo)
	service, err := orders.NewService(store, producer, discardLogger())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	f := &fixture{db: db, catalogRepo: catalogRepo, store: store, service: service}
	f.rootCat = f.insertCategory(t, "root", nil, true)
	return f
}

func (f *fixture) insertCategory(t *testing.T, slug string, parentID *string, active bool) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.Exec(`
		INSERT INTO categories (id, slug, name, parent_id, is_active)
		VALUES ($1, $2, $2, $3, $4)
	`, id, slug, parentID, active)
	if err != nil {
		t.Fatalf("failed to insert category %s: %v", slug, err)
	}
	return id
}

func (f *fixture) insertProduct(t *testing.T, sku string, price int64, stock int, categoryID string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.db.Exec(`
		INSERT INTO products (id, sku, slug, name, price, stock, is_active, is_in_stock, stock_status, category_id)
		VALUES ($1, $2, $2, $2, $3, $4, TRUE, TRUE, $5, $6)
	`, id, sku, price, stock, domain.DeriveStockStatus(stock, true), categoryID)
	if err != nil {
		t.Fatalf("failed to insert product %s: %v", sku, err)
	}
	return id
}

func (f *fixture) productStock(t *testing.T, id string) (int, domain.StockStatus) {
	t.Helper()
	var stock int
	var status domain.StockStatus
	if err := f.db.QueryRow(`SELECT stock, stock_status FROM products WHERE id = $1`, id).Scan(&stock, &status); err != nil {
		t.Fatalf("failed to read stock: %v", err)
	}
	return stock, status
}

func (f *fixture) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func cartInput(lines ...orders.CartLine) orders.PlaceOrderInput {
	return orders.PlaceOrderInput{
		UserID:       "user-1",
		Lines:        lines,
		FirstName:    "Ana",
		LastName:     "Petrova",
		Phone:        "+35599100200",
		Email:        "ana@example.com",
		DeliveryType: domain.DeliveryPickup,
	}
}

func TestOrderPlacementFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)
	p1 := f.insertProduct(t, "SKU-1", 1250, 12, f.rootCat)
	p2 := f.insertProduct(t, "SKU-2", 300, 4, f.rootCat)

	handler := orders.NewHandler(f.service, f.store, discardLogger())

	reqBody := fmt.Sprintf(`{
		"items": [
			{"product_id": %q, "quantity": 2},
			{"product_id": %q, "quantity": 3}
		],
		"first_name": "Ana", "last_name": "Petrova",
		"phone": "+35599100200", "email": "ana@example.com",
		"delivery_type": "courier"
	}`, p1, p2)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()

	handler.HandlePlace(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var order domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !strings.HasPrefix(order.OrderNumber, "SO-") {
		t.Errorf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusNew {
		t.Errorf("expected status new, got %s", order.Status)
	}
	wantSubtotal := int64(2*1250 + 3*300)
	if order.Subtotal != wantSubtotal {
		t.Errorf("subtotal = %d, want %d", order.Subtotal, wantSubtotal)
	}
	if order.Total != order.Subtotal+order.Delivery-order.Discount {
		t.Errorf("total %d violates subtotal %d + delivery %d - discount %d",
			order.Total, order.Subtotal, order.Delivery, order.Discount)
	}

	if stock, status := f.productStock(t, p1); stock != 10 || status != domain.StockStatusEnough {
		t.Errorf("product 1 stock = %d (%s), want 10 (enough)", stock, status)
	}
	if stock, status := f.productStock(t, p2); stock != 1 || status != domain.StockStatusFew {
		t.Errorf("product 2 stock = %d (%s), want 1 (few)", stock, status)
	}

	fetched, err := f.store.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if fetched == nil {
		t.Fatal("order not found in database")
	}
	if len(fetched.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(fetched.Items))
	}
	if len(fetched.Logs) != 1 || fetched.Logs[0].Status != domain.OrderStatusNew {
		t.Fatalf("expected one initial log row with status new, got %+v", fetched.Logs)
	}
}

func TestInsufficientStockLeavesStateUntouched(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)
	p1 := f.insertProduct(t, "SKU-1", 1000, 5, f.rootCat)

	_, err := f.service.PlaceOrder(ctx, cartInput(orders.CartLine{ProductID: p1, Quantity: 6}))
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}

	if stock, _ := f.productStock(t, p1); stock != 5 {
		t.Errorf("stock = %d, want 5", stock)
	}
	if n := f.countRows(t, "orders"); n != 0 {
		t.Errorf("expected 0 orders, got %d", n)
	}
}

func TestPlacementRollsBackAllLines(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)
	p1 := f.insertProduct(t, "SKU-1", 1000, 10, f.rootCat)
	p2 := f.insertProduct(t, "SKU-2", 2000, 1, f.rootCat)

	// Second line over-asks; nothing from the first line may stick.
	_, err := f.service.PlaceOrder(ctx, cartInput(
		orders.CartLine{ProductID: p1, Quantity: 2},
		orders.CartLine{ProductID: p2, Quantity: 5},
	))
	if err == nil {
		t.Fatal("expected placement to fail")
	}

	if stock, _ := f.productStock(t, p1); stock != 10 {
		t.Errorf("product 1 stock = %d, want 10", stock)
	}
	if stock, _ := f.productStock(t, p2); stock != 1 {
		t.Errorf("product 2 stock = %d, want 1", stock)
	}
	for _, table := range []string{"orders", "order_items", "order_logs"} {
		if n := f.countRows(t, table); n != 0 {
			t.Errorf("expected 0 rows in %s, got %d", table, n)
		}
	}
}

func TestConcurrentOrdersLastUnit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)
	p1 := f.insertProduct(t, "SKU-1", 1000, 1, f.rootCat)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.PlaceOrder(ctx, cartInput(orders.CartLine{ProductID: p1, Quantity: 1}))
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d (errors: %v)", successes, errs)
	}

	if stock, status := f.productStock(t, p1); stock != 0 || status != domain.StockStatusNone {
		t.Errorf("stock = %d (%s), want 0 (none)", stock, status)
	}
	if n := f.countRows(t, "orders"); n != 1 {
		t.Errorf("expected 1 order, got %d", n)
	}
}

func TestCouponDiscountApplied(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)
	p1 := f.insertProduct(t, "SKU-1", 1000, 10, f.rootCat)

	if _, err := f.db.Exec(`INSERT INTO coupons (code, percent_off) VALUES ('TEN', 10)`); err != nil {
		t.Fatalf("failed to insert coupon: %v", err)
	}

	input := cartInput(orders.CartLine{ProductID: p1, Quantity: 2})
	input.PromoCode = "TEN"

	order, err := f.service.PlaceOrder(ctx, input)
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}
	if order.Discount != 200 {
		t.Errorf("discount = %d, want 200", order.Discount)
	}
	if order.Total != 1800 {
		t.Errorf("total = %d, want 1800", order.Total)
	}
}

func TestCategorySubtreeResolution(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)

	a := f.insertCategory(t, "a", nil, true)
	b := f.insertCategory(t, "b", &a, true)
	c := f.insertCategory(t, "c", &a, true)
	d := f.insertCategory(t, "d", &b, true)
	hidden := f.insertCategory(t, "hidden", &c, false)

	ids, err := f.catalogRepo.SubtreeIDs(ctx, a)
	if err != nil {
		t.Fatalf("subtree resolution failed: %v", err)
	}

	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	for _, want := range []string{a, b, c, d} {
		if !got[want] {
			t.Errorf("subtree of a is missing %s", want)
		}
	}
	if got[hidden] {
		t.Error("inactive category leaked into subtree")
	}
	if len(ids) != 4 {
		t.Errorf("expected 4 ids, got %d", len(ids))
	}

	leaf, err := f.catalogRepo.SubtreeIDs(ctx, c)
	if err != nil {
		t.Fatalf("leaf resolution failed: %v", err)
	}
	if len(leaf) != 1 || leaf[0] != c {
		t.Errorf("leaf subtree = %v, want [%s]", leaf, c)
	}

	// Products attached anywhere in the subtree surface on the root listing.
	f.insertProduct(t, "SKU-A", 100, 5, a)
	f.insertProduct(t, "SKU-D", 100, 5, d)
	products, err := f.catalogRepo.ListProductsByCategory(ctx, a)
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("expected 2 products in subtree, got %d", len(products))
	}
}

func TestCategoryReparentCycleRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)

	a := f.insertCategory(t, "a", nil, true)
	b := f.insertCategory(t, "b", &a, true)
	c := f.insertCategory(t, "c", &b, true)

	if err := f.catalogRepo.UpdateCategoryParent(ctx, a, &c); err == nil {
		t.Fatal("expected cycle to be rejected")
	}
	if err := f.catalogRepo.UpdateCategoryParent(ctx, c, &a); err != nil {
		t.Fatalf("legal reparent failed: %v", err)
	}
}

func TestOrderStatusLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	f := newFixture(t, pg.ConnStr, nil)
	p1 := f.insertProduct(t, "SKU-1", 1000, 5, f.rootCat)

	order, err := f.service.PlaceOrder(ctx, cartInput(orders.CartLine{ProductID: p1, Quantity: 1}))
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	if _, err := f.store.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped, "", "", "admin"); err == nil {
		t.Fatal("expected new -> shipped to be rejected")
	}

	updated, err := f.store.UpdateStatus(ctx, order.ID, domain.OrderStatusProcessing, "picking", "", "admin")
	if err != nil {
		t.Fatalf("new -> processing failed: %v", err)
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Errorf("status = %s, want processing", updated.Status)
	}

	updated, err = f.store.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped, "", "TRK-42", "admin")
	if err != nil {
		t.Fatalf("processing -> shipped failed: %v", err)
	}
	if updated.TrackNumber != "TRK-42" {
		t.Errorf("track number = %q, want TRK-42", updated.TrackNumber)
	}
	if len(updated.Logs) != 3 {
		t.Fatalf("expected 3 log rows, got %d", len(updated.Logs))
	}
	wantHistory := []domain.OrderStatus{domain.OrderStatusNew, domain.OrderStatusProcessing, domain.OrderStatusShipped}
	for i, status := range wantHistory {
		if updated.Logs[i].Status != status {
			t.Errorf("log %d status = %s, want %s", i, updated.Logs[i].Status, status)
		}
	}
}

type emailCapture struct {
	mu     sync.Mutex
	emails []map[string]string
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.emails = append(e.emails, req)
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"sent"}`)
}

func (e *emailCapture) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.emails)
}

func TestOrderPlacedNotificationFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderPlaced)
	defer func() { _ = producer.Close() }()

	f := newFixture(t, pg.ConnStr, producer)
	p1 := f.insertProduct(t, "SKU-1", 1000, 5, f.rootCat)

	capture := &emailCapture{}
	emailServer := httptest.NewServer(http.HandlerFunc(capture.handler))
	defer emailServer.Close()

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderPlaced, "notification-worker", discardLogger(),
		messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	notifyHandler := notify.NewHandler(emailServer.URL, "ops@example.com", emailServer.Client(), discardLogger())

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() { _ = consumer.Consume(consumeCtx, notifyHandler.Handle) }()

	if _, err := f.service.PlaceOrder(ctx, cartInput(orders.CartLine{ProductID: p1, Quantity: 1})); err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	deadline := time.After(60 * time.Second)
	for capture.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for notifications, got %d", capture.count())
		case <-time.After(250 * time.Millisecond):
		}
	}
}
