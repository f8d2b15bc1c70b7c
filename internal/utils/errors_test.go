package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestStoreError_IsMatchesKindAndValidationClass(t *testing.T) {
	err := fmt.Errorf("commit: %w", NewStoreError(KindDuplicateKey, "payments", "2", "ride_id already used"))

	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey")
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("duplicate key is a validation failure")
	}
	if errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("duplicate key is not a concurrent modification")
	}
	if KindOf(err) != KindDuplicateKey {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}

	conflict := NewStoreError(KindConcurrentModification, "", "", "retry")
	if errors.Is(conflict, ErrValidationFailed) {
		t.Fatalf("concurrent modification is retryable, not a validation failure")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no kind")
	}
}

func TestNewViolationError_MirrorsFirstViolation(t *testing.T) {
	violations := []Violation{
		{Rule: "incidents.driver_matches_ride", Table: "incidents", Key: "1", Field: "driver_id", Value: "2", Message: "driver did not drive ride 1"},
		{Rule: "incidents.passenger_on_ride", Table: "incidents", Key: "1", Field: "passenger_id", Value: "9", Message: "passenger not on ride 1"},
	}
	err := NewViolationError(KindConsistencyViolation, violations)

	if err.Rule != "incidents.driver_matches_ride" || err.Field != "driver_id" || err.Value != "2" {
		t.Fatalf("unexpected top-level fields: %+v", err)
	}
	if len(err.Violations) != 2 {
		t.Fatalf("expected both violations, got %d", len(err.Violations))
	}
	msg := err.Error()
	for _, want := range []string{"ConsistencyViolation", "(incidents.driver_matches_ride)", `driver_id="2"`, "(+1 more)"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}

	empty := NewViolationError(KindDomainRuleViolation, nil)
	if empty.Message == "" || empty.Rule != "" {
		t.Fatalf("unexpected empty violation error: %+v", empty)
	}
}

func TestStatusForKind(t *testing.T) {
	cases := map[ErrorKind]int{
		KindDuplicateKey:           http.StatusConflict,
		KindConcurrentModification: http.StatusConflict,
		KindReferentialViolation:   http.StatusConflict,
		KindDomainRuleViolation:    http.StatusUnprocessableEntity,
		KindConsistencyViolation:   http.StatusUnprocessableEntity,
		KindDanglingReference:      http.StatusUnprocessableEntity,
		KindNotFound:               http.StatusNotFound,
		KindUnknownTable:           http.StatusNotFound,
		KindTxClosed:               http.StatusGone,
		ErrorKind("Other"):         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := StatusForKind(kind); got != want {
			t.Fatalf("StatusForKind(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestStoreErrorResponse_WritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	StoreErrorResponse(c, &StoreError{
		Kind:    KindDomainRuleViolation,
		Table:   "drivers",
		Key:     "1",
		Field:   "rating",
		Rule:    "drivers.rating_range",
		Value:   "7.00",
		Message: "rating must be between 0 and 5",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != StatusError || body.Error == nil {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if body.Error.Rule != "drivers.rating_range" || body.Error.Details["value"] != "7.00" {
		t.Fatalf("unexpected error payload: %+v", body.Error)
	}

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	StoreErrorResponse(c, errors.New("disk on fire"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unclassified errors, got %d", rec.Code)
	}
}
