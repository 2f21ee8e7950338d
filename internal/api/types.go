package api

// Attendance status values assigned by the backend. The status advances
// NONE -> CLOCKED_IN -> COMPLETED within a day and resets server-side at the
// day boundary; the client never computes it locally.
const (
	StatusNone      = "NONE"
	StatusClockedIn = "CLOCKED_IN"
	StatusCompleted = "COMPLETED"
)

// Employee is the server-owned record for a registered device.
type Employee struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	DeviceID         string `json:"device_id"`
	AttendanceStatus string `json:"attendanceStatus"`
}

// AttendanceRecord is one clock-in row, read-only from the client side.
// ClockOutTimestamp is nil while the day is still open.
type AttendanceRecord struct {
	ID                int     `json:"id"`
	Timestamp         string  `json:"timestamp"`
	IsLate            bool    `json:"is_late"`
	PhotoPath         string  `json:"photo_path"`
	ClockOutTimestamp *string `json:"clock_out_timestamp"`
}

// Evidence is the co-presence proof sent to the verify endpoint. It is built
// immediately before the call and discarded afterwards; radio and location
// state can change between attempts, so it is never reused.
type Evidence struct {
	WifiSSID  string  `json:"wifiSsid"`
	WifiBSSID string  `json:"wifiBssid"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type registerRequest struct {
	Name     string `json:"name"`
	DeviceID string `json:"deviceId"`
}

// RegisterResponse is returned by POST /api/employees/register.
type RegisterResponse struct {
	Success  bool      `json:"success"`
	Employee *Employee `json:"employee"`
	Error    string    `json:"error"`
}

// CheckResponse is returned by GET /api/employees/check/{deviceId}.
type CheckResponse struct {
	Registered bool      `json:"registered"`
	Employee   *Employee `json:"employee"`
	Error      string    `json:"error"`
}

// VerifyResponse is returned by POST /api/attendance/verify.
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error"`
}

type clockOutRequest struct {
	EmployeeID int    `json:"employeeId"`
	DeviceID   string `json:"deviceId"`
}

// SubmitResponse is returned by the clock-in and clock-out endpoints.
type SubmitResponse struct {
	Success    bool              `json:"success"`
	Attendance *AttendanceRecord `json:"attendance"`
	Error      string            `json:"error"`
}

// HistoryResponse is returned by GET /api/attendance/history/{employeeId}.
type HistoryResponse struct {
	History []AttendanceRecord `json:"history"`
}
