package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meong5670/InfinitarLockin/internal/api"
	"github.com/meong5670/InfinitarLockin/internal/device"
)

type fakeBackend struct {
	verifyResp *api.VerifyResponse
	verifyErr  error
	submitResp *api.SubmitResponse
	submitErr  error

	verifyCalls   int
	clockInCalls  int
	clockOutCalls int
	lastEvidence  api.Evidence
}

func (f *fakeBackend) Verify(ctx context.Context, ev api.Evidence) (*api.VerifyResponse, error) {
	f.verifyCalls++
	f.lastEvidence = ev
	return f.verifyResp, f.verifyErr
}

func (f *fakeBackend) SubmitClockIn(ctx context.Context, employeeID int, deviceID, photoName string, photo []byte) (*api.SubmitResponse, error) {
	f.clockInCalls++
	return f.submitResp, f.submitErr
}

func (f *fakeBackend) SubmitClockOut(ctx context.Context, employeeID int, deviceID string) (*api.SubmitResponse, error) {
	f.clockOutCalls++
	return f.submitResp, f.submitErr
}

var onOffice = device.StaticWifiSource{SSID: "office", BSSID: "aa:bb:cc:dd:ee:ff"}

func TestVerifyWithoutWifiNeverCallsBackend(t *testing.T) {
	backend := &fakeBackend{verifyResp: &api.VerifyResponse{Verified: true}}
	o := NewOrchestrator(backend, device.StaticWifiSource{SSID: "office"})

	state, err := o.Verify(context.Background(), 1.0, 2.0)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if state.Phase != VerifyError || state.Message != "WiFi not connected." {
		t.Fatalf("state = %+v", state)
	}
	if backend.verifyCalls != 0 {
		t.Fatalf("backend called %d times, want 0", backend.verifyCalls)
	}
}

func TestVerifyRejectedByBackend(t *testing.T) {
	backend := &fakeBackend{verifyResp: &api.VerifyResponse{Verified: false, Error: "too far from office"}}
	o := NewOrchestrator(backend, onOffice)

	state, _ := o.Verify(context.Background(), 1.0, 2.0)
	if state.Phase != VerifyError || state.Message != "too far from office" {
		t.Fatalf("state = %+v", state)
	}
	if o.Submission().Phase != SubmitIdle {
		t.Fatal("submission machine moved without a submit call")
	}
	// Error is retryable without a reset.
	backend.verifyResp = &api.VerifyResponse{Verified: true}
	state, err := o.Verify(context.Background(), 1.0, 2.0)
	if err != nil || state.Phase != VerifySuccess {
		t.Fatalf("retry state = %+v, err = %v", state, err)
	}
}

func TestVerifySendsLiveEvidence(t *testing.T) {
	backend := &fakeBackend{verifyResp: &api.VerifyResponse{Verified: true}}
	o := NewOrchestrator(backend, onOffice)

	if _, err := o.Verify(context.Background(), -6.2, 106.8); err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	ev := backend.lastEvidence
	if ev.WifiSSID != "office" || ev.WifiBSSID != "aa:bb:cc:dd:ee:ff" || ev.Latitude != -6.2 || ev.Longitude != 106.8 {
		t.Fatalf("evidence = %+v", ev)
	}
}

func TestVerifySuccessRequiresResetBeforeReuse(t *testing.T) {
	backend := &fakeBackend{verifyResp: &api.VerifyResponse{Verified: true}}
	o := NewOrchestrator(backend, onOffice)

	o.Verify(context.Background(), 1.0, 2.0)
	if _, err := o.Verify(context.Background(), 1.0, 2.0); !errors.Is(err, ErrNotReset) {
		t.Fatalf("err = %v, want ErrNotReset", err)
	}
	o.ResetVerification()
	if state, err := o.Verify(context.Background(), 1.0, 2.0); err != nil || state.Phase != VerifySuccess {
		t.Fatalf("after reset: state = %+v, err = %v", state, err)
	}
}

func TestClockInRequiresVerification(t *testing.T) {
	backend := &fakeBackend{submitResp: &api.SubmitResponse{Success: true}}
	o := NewOrchestrator(backend, onOffice)

	state, err := o.SubmitClockIn(context.Background(), 7, "dev-1", Photo{Name: "p.jpg", CapturedAt: time.Now()})
	if err != nil {
		t.Fatalf("SubmitClockIn() failed: %v", err)
	}
	if state.Phase != SubmitError || backend.clockInCalls != 0 {
		t.Fatalf("state = %+v, calls = %d", state, backend.clockInCalls)
	}
}

func TestClockInRejectsPhotoFromBeforeVerification(t *testing.T) {
	backend := &fakeBackend{
		verifyResp: &api.VerifyResponse{Verified: true},
		submitResp: &api.SubmitResponse{Success: true},
	}
	o := NewOrchestrator(backend, onOffice)

	stale := Photo{Name: "old.jpg", CapturedAt: time.Now().Add(-time.Hour)}
	o.Verify(context.Background(), 1.0, 2.0)

	state, err := o.SubmitClockIn(context.Background(), 7, "dev-1", stale)
	if err != nil {
		t.Fatalf("SubmitClockIn() failed: %v", err)
	}
	if state.Phase != SubmitError || backend.clockInCalls != 0 {
		t.Fatalf("stale photo accepted: state = %+v, calls = %d", state, backend.clockInCalls)
	}

	fresh := Photo{Name: "new.jpg", CapturedAt: time.Now().Add(time.Second)}
	state, err = o.SubmitClockIn(context.Background(), 7, "dev-1", fresh)
	if err != nil || state.Phase != SubmitSuccess {
		t.Fatalf("fresh photo rejected: state = %+v, err = %v", state, err)
	}
	if backend.clockInCalls != 1 {
		t.Fatalf("clock-in calls = %d, want 1", backend.clockInCalls)
	}
}

func TestClockInBackendFailure(t *testing.T) {
	backend := &fakeBackend{
		verifyResp: &api.VerifyResponse{Verified: true},
		submitResp: &api.SubmitResponse{Success: false, Error: "already clocked in"},
	}
	o := NewOrchestrator(backend, onOffice)
	o.Verify(context.Background(), 1.0, 2.0)

	state, _ := o.SubmitClockIn(context.Background(), 7, "dev-1", Photo{CapturedAt: time.Now().Add(time.Second)})
	if state.Phase != SubmitError || state.Message != "already clocked in" {
		t.Fatalf("state = %+v", state)
	}
}

func TestClockOutReverificationFailureBlocksCall(t *testing.T) {
	backend := &fakeBackend{
		verifyResp: &api.VerifyResponse{Verified: false, Error: "wrong network"},
		submitResp: &api.SubmitResponse{Success: true},
	}
	o := NewOrchestrator(backend, onOffice)

	state, err := o.SubmitClockOut(context.Background(), 7, "dev-1", 1.0, 2.0)
	if err != nil {
		t.Fatalf("SubmitClockOut() failed: %v", err)
	}
	if state.Phase != SubmitError || state.Message != "wrong network" {
		t.Fatalf("state = %+v", state)
	}
	if backend.clockOutCalls != 0 {
		t.Fatalf("clock-out calls = %d, want 0", backend.clockOutCalls)
	}
}

func TestClockOutAlwaysReverifies(t *testing.T) {
	backend := &fakeBackend{
		verifyResp: &api.VerifyResponse{Verified: true},
		submitResp: &api.SubmitResponse{Success: true},
	}
	o := NewOrchestrator(backend, onOffice)

	// A verification left over from the morning does not carry into
	// clock-out: the orchestrator demands fresh proof.
	o.Verify(context.Background(), 1.0, 2.0)
	verifiedCalls := backend.verifyCalls

	state, err := o.SubmitClockOut(context.Background(), 7, "dev-1", 1.0, 2.0)
	if err != nil || state.Phase != SubmitSuccess {
		t.Fatalf("state = %+v, err = %v", state, err)
	}
	if backend.verifyCalls != verifiedCalls+1 {
		t.Fatalf("verify calls = %d, want %d", backend.verifyCalls, verifiedCalls+1)
	}
	if backend.clockOutCalls != 1 {
		t.Fatalf("clock-out calls = %d, want 1", backend.clockOutCalls)
	}
}

func TestClockOutWithoutWifiBlocksCall(t *testing.T) {
	backend := &fakeBackend{submitResp: &api.SubmitResponse{Success: true}}
	o := NewOrchestrator(backend, device.StaticWifiSource{})

	state, _ := o.SubmitClockOut(context.Background(), 7, "dev-1", 1.0, 2.0)
	if state.Phase != SubmitError || state.Message != "WiFi not connected." {
		t.Fatalf("state = %+v", state)
	}
	if backend.verifyCalls != 0 || backend.clockOutCalls != 0 {
		t.Fatalf("backend touched: verify=%d clockout=%d", backend.verifyCalls, backend.clockOutCalls)
	}
}

func TestSubmissionSuccessRequiresReset(t *testing.T) {
	backend := &fakeBackend{
		verifyResp: &api.VerifyResponse{Verified: true},
		submitResp: &api.SubmitResponse{Success: true},
	}
	o := NewOrchestrator(backend, onOffice)
	o.Verify(context.Background(), 1.0, 2.0)
	o.SubmitClockIn(context.Background(), 7, "dev-1", Photo{CapturedAt: time.Now().Add(time.Second)})

	if _, err := o.SubmitClockOut(context.Background(), 7, "dev-1", 1.0, 2.0); !errors.Is(err, ErrNotReset) {
		t.Fatalf("err = %v, want ErrNotReset", err)
	}

	o.ResetSubmission()
	o.ResetVerification()
	state, err := o.SubmitClockOut(context.Background(), 7, "dev-1", 1.0, 2.0)
	if err != nil || state.Phase != SubmitSuccess {
		t.Fatalf("after reset: state = %+v, err = %v", state, err)
	}
}
