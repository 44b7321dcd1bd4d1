package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/souqly/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordColumns = []string{"id", "user_id", "resource", "total", "status", "created_at", "updated_at"}

const (
	orderHeader = `SELECT id, user_id, 0, total, status, created_at, updated_at FROM orders WHERE id = \$1`
	rideHeader  = `SELECT id, user_id, rider_id, fare, status, created_at, updated_at FROM rides WHERE id = \$1`
)

func recordRow(id, payerID, resourceID, total int64, status models.Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(recordColumns).AddRow(id, payerID, resourceID, total, string(status), now, now)
}

func TestEscrowHandler_BookRide(t *testing.T) {
	env := newTestEnv(t)

	env.sql.ExpectBegin()
	env.sql.ExpectQuery(`FROM riders r JOIN vendors v ON v.id = r.vendor_id WHERE r.id = \$1 FOR UPDATE OF r`).
		WithArgs(70).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "vendor_id", "status", "is_verified"}).
			AddRow(70, 71, 700, "ACTIVE", true))
	env.sql.ExpectExec(`UPDATE riders SET status = \$1 WHERE id = \$2`).WithArgs("BUSY", 70).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.sql.ExpectQuery("INSERT INTO rides").
		WithArgs(2, 70, "Yaba", "Lekki", 1500, "REQUESTED", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	expectLockAccount(env.sql, 2, 2000)
	expectPost(env.sql, 2, models.DirectionDebit, 1500, 500, "RIDE-3")
	env.sql.ExpectCommit()

	body := `{"riderId":70,"pickupAddress":"Yaba","dropoffAddress":"Lekki","fare":1500}`
	rr := env.do(t, http.MethodPost, "/api/v1/rides", body, signToken(t, 2, ""))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var rec models.EscrowRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, models.VerticalRide, rec.Vertical)
	assert.Equal(t, int64(3), rec.ID)
	assert.Equal(t, int64(2), rec.PayerID)
	assert.Equal(t, int64(70), rec.ResourceID)
	assert.Equal(t, models.StatusRequested, rec.Status)
	assert.NoError(t, env.sql.ExpectationsWereMet())
}

func TestEscrowHandler_BookRide_RiderBusy(t *testing.T) {
	env := newTestEnv(t)

	env.sql.ExpectBegin()
	env.sql.ExpectQuery(`FROM riders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "vendor_id", "status", "is_verified"}).
			AddRow(70, 71, 700, "BUSY", true))
	env.sql.ExpectRollback()

	body := `{"riderId":70,"pickupAddress":"Yaba","dropoffAddress":"Lekki","fare":1500}`
	rr := env.do(t, http.MethodPost, "/api/v1/rides", body, signToken(t, 2, ""))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"RESOURCE_UNAVAILABLE"`)
	assert.NoError(t, env.sql.ExpectationsWereMet())
}

func TestEscrowHandler_UpdateStatus(t *testing.T) {
	t.Run("payer starts the ride", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(rideHeader).WithArgs(3).
			WillReturnRows(recordRow(3, 2, 70, 1500, models.StatusRequested))
		env.sql.ExpectBegin()
		env.sql.ExpectQuery(rideHeader + ` FOR UPDATE`).WithArgs(3).
			WillReturnRows(recordRow(3, 2, 70, 1500, models.StatusRequested))
		env.sql.ExpectExec("INSERT INTO escrow_transitions").
			WithArgs("ride", 3, "REQUESTED", "ONGOING", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.sql.ExpectExec(`UPDATE rides SET status = \$1, updated_at = \$2 WHERE id = \$3`).
			WithArgs("ONGOING", sqlmock.AnyArg(), 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.sql.ExpectCommit()

		rr := env.do(t, http.MethodPut, "/api/v1/escrow/ride/3/status", `{"status":"ONGOING"}`, signToken(t, 2, ""))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Contains(t, rr.Body.String(), `"status":"ONGOING"`)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("skipping ahead is a conflict", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(rideHeader).WithArgs(3).
			WillReturnRows(recordRow(3, 2, 70, 1500, models.StatusCancelled))
		env.sql.ExpectBegin()
		env.sql.ExpectQuery(rideHeader + ` FOR UPDATE`).WithArgs(3).
			WillReturnRows(recordRow(3, 2, 70, 1500, models.StatusCancelled))
		env.sql.ExpectRollback()

		rr := env.do(t, http.MethodPut, "/api/v1/escrow/ride/3/status", `{"status":"ONGOING"}`, signToken(t, 2, ""))
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Contains(t, rr.Body.String(), `"code":"INVALID_STATE"`)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("other users get 404", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(rideHeader).WithArgs(3).
			WillReturnRows(recordRow(3, 2, 70, 1500, models.StatusRequested))

		rr := env.do(t, http.MethodPut, "/api/v1/escrow/ride/3/status", `{"status":"ONGOING"}`, signToken(t, 71, ""))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("status required", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodPut, "/api/v1/escrow/ride/3/status", `{}`, signToken(t, 2, ""))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})
}

func TestEscrowHandler_Cancel(t *testing.T) {
	t.Run("admin cancels and the payer is refunded", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(orderHeader).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusPending))
		env.sql.ExpectBegin()
		env.sql.ExpectQuery(orderHeader + ` FOR UPDATE`).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusPending))
		env.sql.ExpectExec(`UPDATE products p SET stock = p.stock \+ r.quantity`).WithArgs(55).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectLockAccount(env.sql, 2, 0)
		expectPost(env.sql, 2, models.DirectionCredit, 250, 250, "ORD-REFUND-55")
		env.sql.ExpectExec("INSERT INTO escrow_transitions").
			WithArgs("order", 55, "PENDING", "CANCELLED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		env.sql.ExpectExec(`UPDATE orders SET status = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.sql.ExpectCommit()

		rr := env.do(t, http.MethodPost, "/api/v1/escrow/order/55/cancel", "", signToken(t, 9, "admin"))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Contains(t, rr.Body.String(), `"status":"CANCELLED"`)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("other users get 404", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(orderHeader).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusPending))

		rr := env.do(t, http.MethodPost, "/api/v1/escrow/order/55/cancel", "", signToken(t, 5, ""))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})
}

func TestEscrowHandler_Complete_OtherUser(t *testing.T) {
	env := newTestEnv(t)

	env.sql.ExpectQuery(rideHeader).WithArgs(3).
		WillReturnRows(recordRow(3, 2, 70, 1500, models.StatusOngoing))

	rr := env.do(t, http.MethodPost, "/api/v1/escrow/ride/3/complete", "", signToken(t, 71, ""))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NoError(t, env.sql.ExpectationsWereMet())
}

func TestEscrowHandler_MarkItemUnfulfilled(t *testing.T) {
	itemColumns := []string{"id", "order_id", "product_id", "vendor_id", "quantity", "unit_price", "fulfilled"}

	t.Run("payer flags a line", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(orderHeader).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusConfirmed))
		env.sql.ExpectBegin()
		env.sql.ExpectQuery(orderHeader + ` FOR UPDATE`).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusConfirmed))
		env.sql.ExpectQuery(`FROM order_items WHERE id = \$1 AND order_id = \$2 FOR UPDATE`).WithArgs(2, 55).
			WillReturnRows(sqlmock.NewRows(itemColumns).AddRow(2, 55, 2, 200, 1, 50, true))
		env.sql.ExpectExec(`UPDATE order_items SET fulfilled = false`).WithArgs(2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.sql.ExpectExec(`UPDATE products SET stock = stock \+ \$1 WHERE id = \$2`).WithArgs(1, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		env.sql.ExpectCommit()

		rr := env.do(t, http.MethodPost, "/api/v1/orders/55/items/2/unfulfilled", "", signToken(t, 2, ""))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Contains(t, rr.Body.String(), `"fulfilled":false`)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("other users get 404", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(orderHeader).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusConfirmed))

		rr := env.do(t, http.MethodPost, "/api/v1/orders/55/items/2/unfulfilled", "", signToken(t, 200, ""))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})
}

func TestEscrowHandler_GetRecord(t *testing.T) {
	t.Run("payer sees record and history", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(orderHeader).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusDelivered))
		env.sql.ExpectQuery(`FROM escrow_transitions WHERE vertical = \$1 AND record_id = \$2`).
			WithArgs("order", 55).
			WillReturnRows(sqlmock.NewRows([]string{"vertical", "record_id", "from_status", "to_status", "created_at"}).
				AddRow("order", 55, "PENDING", "DELIVERED", time.Now()))

		rr := env.do(t, http.MethodGet, "/api/v1/escrow/order/55", "", signToken(t, 2, ""))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp struct {
			Record      models.EscrowRecord `json:"record"`
			Transitions []models.Transition `json:"transitions"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, int64(250), resp.Record.Total)
		require.Len(t, resp.Transitions, 1)
		assert.Equal(t, models.StatusDelivered, resp.Transitions[0].ToStatus)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("other users get 404", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(orderHeader).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusDelivered))

		rr := env.do(t, http.MethodGet, "/api/v1/escrow/order/55", "", signToken(t, 5, ""))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("admins read any record", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(orderHeader).WithArgs(55).
			WillReturnRows(recordRow(55, 2, 0, 250, models.StatusDelivered))
		env.sql.ExpectQuery(`FROM escrow_transitions`).
			WillReturnRows(sqlmock.NewRows([]string{"vertical", "record_id", "from_status", "to_status", "created_at"}))

		rr := env.do(t, http.MethodGet, "/api/v1/escrow/order/55", "", signToken(t, 5, "admin"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("unknown vertical", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodGet, "/api/v1/escrow/parcel/55", "", signToken(t, 2, ""))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestEscrowHandler_Payout(t *testing.T) {
	env := newTestEnv(t)

	env.sql.ExpectQuery(orderHeader).WithArgs(55).
		WillReturnRows(recordRow(55, 2, 0, 250, models.StatusCompleted))
	env.sql.ExpectQuery(orderHeader).WithArgs(55).
		WillReturnRows(recordRow(55, 2, 0, 250, models.StatusCompleted))
	env.sql.ExpectQuery(`FROM ledger_entries e JOIN accounts a ON a.id = e.account_id WHERE e.reference LIKE \$1`).
		WithArgs("ORD-PAY-55-%").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "reference"}).
			AddRow(10, 200, "ORD-PAY-55-10").
			AddRow(20, 50, "ORD-PAY-55-20"))

	rr := env.do(t, http.MethodGet, "/api/v1/escrow/order/55/payout", "", signToken(t, 2, ""))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/xml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "ORD-PAY-55-10")
	assert.Contains(t, rr.Body.String(), "ORD-PAY-55-20")
	assert.NoError(t, env.sql.ExpectationsWereMet())
}

func TestEscrowHandler_Availability(t *testing.T) {
	t.Run("free range is quoted", func(t *testing.T) {
		env := newTestEnv(t)

		env.sql.ExpectQuery(`SELECT price_per_night FROM apartments WHERE id = \$1`).WithArgs(4).
			WillReturnRows(sqlmock.NewRows([]string{"price_per_night"}).AddRow(1000))
		env.sql.ExpectQuery(`FROM apartment_bookings WHERE apartment_id = \$1`).
			WithArgs(4, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "apartment_id", "user_id", "check_in", "check_out", "nights", "total_price", "status", "created_at"}))

		rr := env.do(t, http.MethodGet, "/api/v1/apartments/4/availability?checkIn=2026-03-01&checkOut=2026-03-04", "", "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var quote models.AvailabilityQuote
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &quote))
		assert.True(t, quote.Available)
		assert.Equal(t, 3, quote.Nights)
		assert.Equal(t, int64(3000), quote.TotalPrice)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})

	t.Run("malformed date", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(t, http.MethodGet, "/api/v1/apartments/4/availability?checkIn=01-03-2026&checkOut=2026-03-04", "", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.NoError(t, env.sql.ExpectationsWereMet())
	})
}
