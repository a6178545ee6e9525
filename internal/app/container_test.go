package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/app"
	bookingHttp "github.com/Malathy2002/hall-booking-website/internal/booking/http"
	"github.com/Malathy2002/hall-booking-website/internal/db"
	"github.com/Malathy2002/hall-booking-website/internal/notify"
	"github.com/Malathy2002/hall-booking-website/internal/payment"
	paymentHttp "github.com/Malathy2002/hall-booking-website/internal/payment/http"
)

const (
	testKeySecret = "key_secret"
	ownerID       = int64(100)
	customerID    = int64(200)
)

var (
	testPool      *pgxpool.Pool
	testContainer *app.Container
)

type uuidGateway struct{}

func (uuidGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.GatewayOrder, error) {
	return &payment.GatewayOrder{
		ID:       "order_" + uuid.NewString(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (uuidGateway) KeyID() string { return "rzp_test_key" }

// TestMain wires the container against a real Postgres when TEST_DB_DSN is
// set. Without it every test in this package is skipped.
func TestMain(m *testing.M) {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("No .env file found or failed to load: %v", err)
	}

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	testPool, err = db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	if err := db.Migrate(ctx, testPool); err != nil {
		log.Fatalf("Unable to migrate database: %v\n", err)
	}

	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	testContainer = app.NewContainer(app.Config{
		DBPool:           testPool,
		Logger:           logger,
		JWTSecret:        "test-secret",
		Gateway:          uuidGateway{},
		GatewayKeySecret: testKeySecret,
		GatewayTimeout:   time.Second,
		Currency:         "INR",
		Publisher:        notify.NewLogPublisher(logger),
		NotifyTimeout:    time.Second,
	})

	exitCode := m.Run()

	testContainer.Dispatcher.Wait()
	testPool.Close()
	os.Exit(exitCode)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("TEST_DB_DSN is not set")
	}
}

// createHall inserts a fresh hall so each test owns its dates.
func createHall(t *testing.T) int64 {
	t.Helper()
	var id int64
	err := testPool.QueryRow(context.Background(),
		`INSERT INTO public.halls (owner_id, name, base_price, capacity) VALUES ($1, $2, $3, $4) RETURNING id`,
		ownerID, "Test Hall "+uuid.NewString()[:8], 20000, 500,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func eventDate() string {
	return time.Now().AddDate(0, 2, 0).Format("2006-01-02")
}

func executeRequest(method, path string, body any, userID int64) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req, _ := http.NewRequest(method, path, bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, _ := testContainer.JWTManager.GenerateAccessToken(userID, fmt.Sprintf("user%d@example.com", userID))
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	testContainer.Router.ServeHTTP(w, req)
	return w
}

func TestPostgres_OnlineBookingIsPaidAtomically(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	hallID := createHall(t)

	w := executeRequest("POST", "/v1/bookings", bookingHttp.CreateBookingBody{
		HallID:        hallID,
		EventDate:     eventDate(),
		EventType:     "wedding",
		GuestsCount:   150,
		PaymentMethod: "online",
	}, customerID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created bookingHttp.CreateBookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.PaymentOrder)

	orderID := created.PaymentOrder.GatewayOrderID
	signer := payment.NewSigner(testKeySecret, "")
	w = executeRequest("POST", "/v1/payments/verify", paymentHttp.VerifyBody{
		OrderID:   orderID,
		PaymentID: "pay_1",
		Signature: signer.CallbackSignature(orderID, "pay_1"),
	}, customerID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var bookingStatus, paymentStatus string
	var paid int64
	err := testPool.QueryRow(ctx,
		`SELECT booking_status, payment_status, paid_amount FROM public.bookings WHERE id = $1`,
		created.Booking.ID,
	).Scan(&bookingStatus, &paymentStatus, &paid)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", bookingStatus)
	assert.Equal(t, "paid", paymentStatus)
	assert.Equal(t, int64(20000), paid)

	var orderStatus string
	var paymentID *string
	err = testPool.QueryRow(ctx,
		`SELECT status, gateway_payment_id FROM public.payment_orders WHERE gateway_order_id = $1`,
		orderID,
	).Scan(&orderStatus, &paymentID)
	require.NoError(t, err)
	assert.Equal(t, "completed", orderStatus)
	require.NotNil(t, paymentID)
	assert.Equal(t, "pay_1", *paymentID)
}

func TestPostgres_ConcurrentCreatesHoldOneSlot(t *testing.T) {
	requireDB(t)
	hallID := createHall(t)
	date := eventDate()

	const n = 10
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := executeRequest("POST", "/v1/bookings", bookingHttp.CreateBookingBody{
				HallID:        hallID,
				EventDate:     date,
				EventType:     "conference",
				GuestsCount:   50,
				PaymentMethod: "cash",
			}, customerID+int64(i))
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)

	var active int
	err := testPool.QueryRow(context.Background(),
		`SELECT count(*) FROM public.bookings WHERE hall_id = $1 AND booking_status IN ('pending', 'confirmed')`,
		hallID,
	).Scan(&active)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}
