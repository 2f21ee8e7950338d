package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meong5670/InfinitarLockin/internal/api"
	"github.com/meong5670/InfinitarLockin/internal/device"
)

// ErrBusy is returned when an attempt is started while the previous one on
// the same machine is still in flight. One attempt per machine per instance.
var ErrBusy = errors.New("attempt already in flight")

// ErrNotReset is returned when a new attempt is started from Success. A
// succeeded machine stays terminal until the caller resets it to Idle, so a
// stale Success can never carry over into an unrelated cycle.
var ErrNotReset = errors.New("previous attempt succeeded; reset before starting a new one")

// VerifyPhase is the discriminant of VerificationState.
type VerifyPhase int

const (
	VerifyIdle VerifyPhase = iota
	Verifying
	VerifySuccess
	VerifyError
)

func (p VerifyPhase) String() string {
	switch p {
	case VerifyIdle:
		return "idle"
	case Verifying:
		return "verifying"
	case VerifySuccess:
		return "success"
	default:
		return "error"
	}
}

// VerificationState is the verification machine's tagged union.
type VerificationState struct {
	Phase   VerifyPhase
	Message string
}

// SubmitPhase is the discriminant of SubmissionState.
type SubmitPhase int

const (
	SubmitIdle SubmitPhase = iota
	Submitting
	SubmitSuccess
	SubmitError
)

func (p SubmitPhase) String() string {
	switch p {
	case SubmitIdle:
		return "idle"
	case Submitting:
		return "submitting"
	case SubmitSuccess:
		return "success"
	default:
		return "error"
	}
}

// SubmissionState is the submission machine's tagged union.
type SubmissionState struct {
	Phase   SubmitPhase
	Message string
}

// Photo is captured evidence for a clock-in. CapturedAt gates the
// photo-after-verification rule.
type Photo struct {
	Name       string
	Data       []byte
	CapturedAt time.Time
}

// Backend is the slice of the API client the orchestrator calls.
type Backend interface {
	Verify(ctx context.Context, ev api.Evidence) (*api.VerifyResponse, error)
	SubmitClockIn(ctx context.Context, employeeID int, deviceID, photoName string, photo []byte) (*api.SubmitResponse, error)
	SubmitClockOut(ctx context.Context, employeeID int, deviceID string) (*api.SubmitResponse, error)
}

// Orchestrator owns the verification and submission machines. Both follow the
// same contract: Error is retryable, Success is terminal for the attempt and
// must be reset to Idle by the caller before a fresh cycle — a stale Success
// never authorizes a later, unrelated action.
type Orchestrator struct {
	backend Backend
	wifi    device.WifiSource

	mu           sync.Mutex
	verification VerificationState
	submission   SubmissionState
	verifiedAt   time.Time
	verifyBusy   bool
	submitBusy   bool
}

// NewOrchestrator creates an orchestrator with both machines Idle.
func NewOrchestrator(backend Backend, wifi device.WifiSource) *Orchestrator {
	return &Orchestrator{backend: backend, wifi: wifi}
}

// Verification returns the current verification state.
func (o *Orchestrator) Verification() VerificationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.verification
}

// Submission returns the current submission state.
func (o *Orchestrator) Submission() SubmissionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submission
}

// Verify proves co-presence for the given coordinates. Radio state is read
// fresh on every attempt; with no BSSID the backend is never called.
func (o *Orchestrator) Verify(ctx context.Context, latitude, longitude float64) (VerificationState, error) {
	o.mu.Lock()
	if o.verifyBusy {
		o.mu.Unlock()
		return o.verification, ErrBusy
	}
	if o.verification.Phase == VerifySuccess {
		state := o.verification
		o.mu.Unlock()
		return state, ErrNotReset
	}
	o.verifyBusy = true
	o.verification = VerificationState{Phase: Verifying}
	o.mu.Unlock()

	state := o.runVerify(ctx, latitude, longitude)

	o.mu.Lock()
	o.verification = state
	if state.Phase == VerifySuccess {
		o.verifiedAt = time.Now()
	}
	o.verifyBusy = false
	o.mu.Unlock()
	return state, nil
}

// runVerify builds the evidence and forwards it. Evidence is assembled
// immediately before the call and dropped afterwards, never cached between
// retries.
func (o *Orchestrator) runVerify(ctx context.Context, latitude, longitude float64) VerificationState {
	status, err := o.wifi.Status()
	if err != nil || !status.Associated() {
		return VerificationState{Phase: VerifyError, Message: "WiFi not connected."}
	}

	resp, err := o.backend.Verify(ctx, api.Evidence{
		WifiSSID:  status.SSID,
		WifiBSSID: status.BSSID,
		Latitude:  latitude,
		Longitude: longitude,
	})
	if err != nil {
		return VerificationState{Phase: VerifyError, Message: "Verification failed: " + err.Error()}
	}
	if !resp.Verified {
		msg := resp.Error
		if msg == "" {
			msg = "Unknown verification error."
		}
		return VerificationState{Phase: VerifyError, Message: msg}
	}
	return VerificationState{Phase: VerifySuccess, Message: "Verification successful!"}
}

// SubmitClockIn uploads the clock-in photo. The photo must have been captured
// after the current verification cycle succeeded; an older photo cannot be
// replayed against a fresh verification.
func (o *Orchestrator) SubmitClockIn(ctx context.Context, employeeID int, deviceID string, photo Photo) (SubmissionState, error) {
	o.mu.Lock()
	if o.submitBusy {
		o.mu.Unlock()
		return o.submission, ErrBusy
	}
	if o.submission.Phase == SubmitSuccess {
		state := o.submission
		o.mu.Unlock()
		return state, ErrNotReset
	}
	if o.verification.Phase != VerifySuccess {
		state := SubmissionState{Phase: SubmitError, Message: "Verification required before clock-in."}
		o.submission = state
		o.mu.Unlock()
		return state, nil
	}
	if !photo.CapturedAt.After(o.verifiedAt) {
		state := SubmissionState{Phase: SubmitError, Message: "Photo predates verification. Retake the photo."}
		o.submission = state
		o.mu.Unlock()
		return state, nil
	}
	o.submitBusy = true
	o.submission = SubmissionState{Phase: Submitting}
	o.mu.Unlock()

	state := o.runClockIn(ctx, employeeID, deviceID, photo)

	o.mu.Lock()
	o.submission = state
	o.submitBusy = false
	o.mu.Unlock()
	return state, nil
}

func (o *Orchestrator) runClockIn(ctx context.Context, employeeID int, deviceID string, photo Photo) SubmissionState {
	resp, err := o.backend.SubmitClockIn(ctx, employeeID, deviceID, photo.Name, photo.Data)
	if err != nil {
		return SubmissionState{Phase: SubmitError, Message: "Submission failed: " + err.Error()}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Submission failed. Please try again."
		}
		return SubmissionState{Phase: SubmitError, Message: msg}
	}
	return SubmissionState{Phase: SubmitSuccess, Message: "Attendance submitted successfully!"}
}

// SubmitClockOut re-proves presence and then closes the day. Clock-out always
// demands fresh evidence: a verification from the morning clock-in does not
// carry over. If re-verification fails the clock-out call is never made.
func (o *Orchestrator) SubmitClockOut(ctx context.Context, employeeID int, deviceID string, latitude, longitude float64) (SubmissionState, error) {
	o.mu.Lock()
	if o.submitBusy {
		o.mu.Unlock()
		return o.submission, ErrBusy
	}
	if o.submission.Phase == SubmitSuccess {
		state := o.submission
		o.mu.Unlock()
		return state, ErrNotReset
	}
	o.submitBusy = true
	o.submission = SubmissionState{Phase: Submitting}
	o.mu.Unlock()

	state := o.runClockOut(ctx, employeeID, deviceID, latitude, longitude)

	o.mu.Lock()
	o.submission = state
	o.submitBusy = false
	o.mu.Unlock()
	return state, nil
}

func (o *Orchestrator) runClockOut(ctx context.Context, employeeID int, deviceID string, latitude, longitude float64) SubmissionState {
	verification := o.runVerify(ctx, latitude, longitude)

	o.mu.Lock()
	o.verification = verification
	if verification.Phase == VerifySuccess {
		o.verifiedAt = time.Now()
	}
	o.mu.Unlock()

	if verification.Phase != VerifySuccess {
		return SubmissionState{Phase: SubmitError, Message: verification.Message}
	}

	resp, err := o.backend.SubmitClockOut(ctx, employeeID, deviceID)
	if err != nil {
		return SubmissionState{Phase: SubmitError, Message: "Clock-out failed: " + err.Error()}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Clock-out failed. Please try again."
		}
		return SubmissionState{Phase: SubmitError, Message: msg}
	}
	return SubmissionState{Phase: SubmitSuccess, Message: "Clocked out successfully!"}
}

// ResetVerification returns the verification machine to Idle and invalidates
// the verification timestamp, so the next clock-in needs a full fresh cycle.
func (o *Orchestrator) ResetVerification() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.verifyBusy {
		return
	}
	o.verification = VerificationState{Phase: VerifyIdle}
	o.verifiedAt = time.Time{}
}

// ResetSubmission returns the submission machine to Idle.
func (o *Orchestrator) ResetSubmission() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.submitBusy {
		return
	}
	o.submission = SubmissionState{Phase: SubmitIdle}
}
