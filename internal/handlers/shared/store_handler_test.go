package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ridestore/internal/services"
	"ridestore/internal/store"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string            `json:"code"`
		Rule    string            `json:"rule"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta *struct {
		Count int `json:"count"`
	} `json:"meta"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// The sweeper keeps closed transactions answering 410 until they go idle.
	svc := services.NewTransactionService(store.New(store.Options{}), services.TransactionServiceOptions{IdleTTL: time.Minute})
	t.Cleanup(func() { _ = svc.Close() })
	h := NewStoreHandler(svc)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.POST("/transactions", h.BeginTransaction)
	v1.POST("/transactions/:tx_id/commit", h.CommitTransaction)
	v1.POST("/transactions/:tx_id/abort", h.AbortTransaction)
	v1.POST("/transactions/:tx_id/records/:table", h.InsertRecord)
	v1.PATCH("/transactions/:tx_id/records/:table/:key", h.UpdateRecord)
	v1.DELETE("/transactions/:tx_id/records/:table/:key", h.DeleteRecord)
	v1.GET("/tables/:table", h.QueryRecords)
	v1.GET("/tables/:table/:key", h.GetRecord)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func beginTx(t *testing.T, r http.Handler) string {
	t.Helper()
	code, env := do(t, r, http.MethodPost, "/api/v1/transactions", "")
	if code != http.StatusCreated {
		t.Fatalf("begin: expected 201, got %d", code)
	}
	var info struct {
		TxID string `json:"tx_id"`
	}
	if err := json.Unmarshal(env.Data, &info); err != nil || info.TxID == "" {
		t.Fatalf("begin: missing tx_id in %s", env.Data)
	}
	return info.TxID
}

const (
	driverJSON = `{"id":1,"name":"John Doe","phone":"555-1234","rating":4.75}`
	rideJSON   = `{"id":1,"pickup_location":"123 Main St","dropoff_location":"456 Elm St","start_time":"2023-01-01T08:00:00Z","end_time":"2023-01-01T08:30:00Z","status":"Completed","driver_id":1}`
)

func TestStoreHandler_TransactionRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	txID := beginTx(t, r)
	base := "/api/v1/transactions/" + txID

	if code, env := do(t, r, http.MethodPost, base+"/records/drivers", driverJSON); code != http.StatusCreated {
		t.Fatalf("insert driver: expected 201, got %d (%+v)", code, env.Error)
	}
	if code, _ := do(t, r, http.MethodPost, base+"/records/rides", rideJSON); code != http.StatusCreated {
		t.Fatalf("insert ride: expected 201, got %d", code)
	}

	// Not visible before commit.
	if code, _ := do(t, r, http.MethodGet, "/api/v1/tables/drivers/1", ""); code != http.StatusNotFound {
		t.Fatalf("uncommitted read: expected 404, got %d", code)
	}

	code, env := do(t, r, http.MethodPost, base+"/commit", "")
	if code != http.StatusOK {
		t.Fatalf("commit: expected 200, got %d", code)
	}
	var result struct {
		Seq uint64 `json:"seq"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil || result.Seq != 1 {
		t.Fatalf("commit: unexpected result %s", env.Data)
	}

	code, env = do(t, r, http.MethodGet, "/api/v1/tables/drivers/1", "")
	if code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", code)
	}
	var driver struct {
		Name   string  `json:"name"`
		Rating float64 `json:"rating"`
	}
	if err := json.Unmarshal(env.Data, &driver); err != nil || driver.Name != "John Doe" || driver.Rating != 4.75 {
		t.Fatalf("get: unexpected driver %s", env.Data)
	}

	code, env = do(t, r, http.MethodGet, "/api/v1/tables/rides?fk=driver_id&value=1", "")
	if code != http.StatusOK || env.Meta == nil || env.Meta.Count != 1 {
		t.Fatalf("query: expected one ride, got %d %+v", code, env.Meta)
	}

	// The transaction is closed once committed.
	code, env = do(t, r, http.MethodPost, base+"/records/drivers", driverJSON)
	if code != http.StatusGone || env.Error == nil || env.Error.Code != "TxClosed" {
		t.Fatalf("reuse: expected 410 TxClosed, got %d %+v", code, env.Error)
	}
}

func TestStoreHandler_ErrorMapping(t *testing.T) {
	r := newTestRouter(t)

	txID := beginTx(t, r)
	code, env := do(t, r, http.MethodPost, "/api/v1/transactions/"+txID+"/records/drivers", `{"id":1,"name":"Too Good","rating":5.5}`)
	if code != http.StatusUnprocessableEntity || env.Error.Rule != "drivers.rating_range" {
		t.Fatalf("rating: expected 422 drivers.rating_range, got %d %+v", code, env.Error)
	}

	txID = beginTx(t, r)
	code, env = do(t, r, http.MethodPost, "/api/v1/transactions/"+txID+"/records/fares", `{"id":1}`)
	if code != http.StatusNotFound || env.Error.Code != "UnknownTable" {
		t.Fatalf("unknown table: expected 404, got %d %+v", code, env.Error)
	}

	code, _ = do(t, r, http.MethodPost, "/api/v1/transactions/"+txID+"/records/drivers", `{"id":`)
	if code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", code)
	}

	code, env = do(t, r, http.MethodPost, "/api/v1/transactions/"+txID+"/records/rides", rideJSON)
	if code != http.StatusUnprocessableEntity || env.Error.Code != "DanglingReference" || env.Error.Rule != "rides.driver_id_reference" {
		t.Fatalf("dangling: expected 422, got %d %+v", code, env.Error)
	}

	code, _ = do(t, r, http.MethodGet, "/api/v1/tables/drivers/abc", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad key: expected 400, got %d", code)
	}

	code, _ = do(t, r, http.MethodGet, "/api/v1/tables/rides?fk=driver_id&value=x", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad query value: expected 400, got %d", code)
	}

	code, env = do(t, r, http.MethodPost, "/api/v1/transactions/nope/commit", "")
	if code != http.StatusNotFound || env.Error.Code != "NotFound" {
		t.Fatalf("unknown tx: expected 404, got %d %+v", code, env.Error)
	}
}

func TestStoreHandler_UpdateDeleteAndConflicts(t *testing.T) {
	r := newTestRouter(t)

	txID := beginTx(t, r)
	base := "/api/v1/transactions/" + txID
	do(t, r, http.MethodPost, base+"/records/drivers", driverJSON)
	do(t, r, http.MethodPost, base+"/records/rides", rideJSON)
	do(t, r, http.MethodPost, base+"/records/passengers", `{"id":1,"name":"Alice","phone":"555-8765","email":"alice@example.com"}`)
	do(t, r, http.MethodPost, base+"/records/ride_passengers", `{"ride_id":1,"passenger_id":1}`)
	if code, _ := do(t, r, http.MethodPost, base+"/commit", ""); code != http.StatusOK {
		t.Fatalf("seed commit: expected 200, got %d", code)
	}

	txID = beginTx(t, r)
	base = "/api/v1/transactions/" + txID
	code, env := do(t, r, http.MethodPatch, base+"/records/rides/1", `{"status":"Requested"}`)
	if code != http.StatusUnprocessableEntity || env.Error.Rule != "rides.terminal_status" {
		t.Fatalf("terminal: expected 422 rides.terminal_status, got %d %+v", code, env.Error)
	}

	txID = beginTx(t, r)
	base = "/api/v1/transactions/" + txID
	code, env = do(t, r, http.MethodDelete, base+"/records/drivers/1", "")
	if code != http.StatusConflict || env.Error.Code != "ReferentialViolation" {
		t.Fatalf("restrict: expected 409, got %d %+v", code, env.Error)
	}

	txID = beginTx(t, r)
	base = "/api/v1/transactions/" + txID
	code, _ = do(t, r, http.MethodGet, "/api/v1/tables/ride_passengers/1:1", "")
	if code != http.StatusOK {
		t.Fatalf("composite key read: expected 200, got %d", code)
	}
	if code, env = do(t, r, http.MethodDelete, base+"/records/rides/1?cascade=true", ""); code != http.StatusOK {
		t.Fatalf("cascade: expected 200, got %d %+v", code, env.Error)
	}
	if code, _ = do(t, r, http.MethodPost, base+"/commit", ""); code != http.StatusOK {
		t.Fatalf("cascade commit: expected 200, got %d", code)
	}
	if code, _ = do(t, r, http.MethodGet, "/api/v1/tables/ride_passengers/1:1", ""); code != http.StatusNotFound {
		t.Fatalf("expected ride passenger to be cascaded, got %d", code)
	}

	txID = beginTx(t, r)
	code, env = do(t, r, http.MethodPost, "/api/v1/transactions/"+txID+"/records/passengers", `{"id":3,"name":"Copy","phone":"555 8765"}`)
	if code != http.StatusConflict || env.Error.Rule != "passengers.phone_unique" {
		t.Fatalf("unique phone: expected 409, got %d %+v", code, env.Error)
	}

	code, _ = do(t, r, http.MethodPost, "/api/v1/transactions/"+txID+"/abort", "")
	if code != http.StatusOK {
		t.Fatalf("abort: expected 200, got %d", code)
	}
}
