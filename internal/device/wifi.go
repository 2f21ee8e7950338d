package device

import (
	"os/exec"
	"strings"
)

// WifiStatus is a snapshot of the current Wi-Fi association. BSSID is empty
// when the radio is not associated with any network.
type WifiStatus struct {
	SSID  string
	BSSID string
}

// Associated reports whether the device is joined to a network. The BSSID is
// the signal that matters: an SSID can linger after disassociation.
func (w WifiStatus) Associated() bool { return w.BSSID != "" }

// WifiSource yields the live radio state. The orchestrator reads it fresh on
// every verification attempt.
type WifiSource interface {
	Status() (WifiStatus, error)
}

// ExecWifiSource shells out to the platform wireless tools. Mobile shells
// replace this with their own source wired through the agent.
type ExecWifiSource struct{}

func (ExecWifiSource) Status() (WifiStatus, error) {
	ssid, err := exec.Command("iwgetid", "-r").Output()
	if err != nil {
		// Not associated or no wireless interface.
		return WifiStatus{}, nil
	}
	bssid, err := exec.Command("iwgetid", "-r", "-a").Output()
	if err != nil {
		return WifiStatus{SSID: strings.TrimSpace(string(ssid))}, nil
	}
	return WifiStatus{
		SSID:  strings.Trim(strings.TrimSpace(string(ssid)), "\""),
		BSSID: strings.TrimSpace(string(bssid)),
	}, nil
}

// StaticWifiSource returns a fixed status; used when the shell injects radio
// state over the loopback surface instead of letting the agent probe.
type StaticWifiSource WifiStatus

func (s StaticWifiSource) Status() (WifiStatus, error) { return WifiStatus(s), nil }
