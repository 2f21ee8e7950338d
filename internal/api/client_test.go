package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(url string) *Client {
	c := New(url)
	c.RetryWait = time.Millisecond
	return c
}

func TestCheckIdentityRetriesOn503(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"registered":true,"employee":{"id":7,"name":"Alice","device_id":"dev-1","attendanceStatus":"NONE"}}`))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).CheckIdentity(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("CheckIdentity() failed: %v", err)
	}
	if !resp.Registered || resp.Employee == nil || resp.Employee.ID != 7 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestRetryGivesUpAfterFourAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"service unavailable"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CheckIdentity(context.Background(), "dev-1")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if apiErr.Kind != KindServer || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	// 1 initial attempt + 3 retries.
	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Fatalf("attempts = %d, want 4", got)
	}
}

func TestNoRetryOnOtherStatuses(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CheckIdentity(context.Background(), "dev-1")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if apiErr.Kind != KindServer || apiErr.Detail != "boom" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestMalformedErrorBodyCollapsesToParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`<html>nope</html>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CheckIdentity(context.Background(), "dev-1")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if apiErr.Kind != KindParse {
		t.Fatalf("kind = %s, want %s", apiErr.Kind, KindParse)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).CheckIdentity(context.Background(), "dev-1")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if apiErr.Kind != KindNetwork {
		t.Fatalf("kind = %s, want %s", apiErr.Kind, KindNetwork)
	}
}

func TestSubmitClockInMultipart(t *testing.T) {
	photo := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/attendance/submit" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not multipart: %v", err)
		}
		if got := r.FormValue("employeeId"); got != "7" {
			t.Errorf("employeeId = %q, want 7", got)
		}
		if got := r.FormValue("deviceId"); got != "dev-1" {
			t.Errorf("deviceId = %q, want dev-1", got)
		}
		file, header, err := r.FormFile("photo")
		if err != nil {
			t.Fatalf("photo part missing: %v", err)
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("photo content type = %q", ct)
		}
		data, _ := io.ReadAll(file)
		if len(data) != len(photo) {
			t.Errorf("photo bytes = %d, want %d", len(data), len(photo))
		}
		w.Write([]byte(`{"success":true,"attendance":{"id":1,"timestamp":"2026-08-29T09:00:00Z","is_late":false,"photo_path":"p.jpg","clock_out_timestamp":null}}`))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).SubmitClockIn(context.Background(), 7, "dev-1", "selfie.jpg", photo)
	if err != nil {
		t.Fatalf("SubmitClockIn() failed: %v", err)
	}
	if !resp.Success || resp.Attendance == nil || resp.Attendance.ClockOutTimestamp != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitClockInRebuildsBodyOnRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"unavailable"}`))
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("retry body unreadable: %v", err)
		}
		if got := r.FormValue("employeeId"); got != "7" {
			t.Errorf("employeeId after retry = %q", got)
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).SubmitClockIn(context.Background(), 7, "dev-1", "selfie.jpg", []byte{0xff, 0xd8})
	if err != nil {
		t.Fatalf("SubmitClockIn() failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestFetchHistoryDefaultLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/attendance/history/7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "30" {
			t.Errorf("limit = %q, want 30", got)
		}
		w.Write([]byte(`{"history":[{"id":1,"timestamp":"2026-08-28T09:02:00Z","is_late":false,"photo_path":"a.jpg","clock_out_timestamp":"2026-08-28T17:30:00Z"}]}`))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).FetchHistory(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("FetchHistory() failed: %v", err)
	}
	if len(resp.History) != 1 || resp.History[0].ClockOutTimestamp == nil {
		t.Fatalf("unexpected history: %+v", resp.History)
	}
}
