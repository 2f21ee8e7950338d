package device

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Identity is the stable opaque identifier for this install. It is the sole
// credential the backend knows; the agent never generates or rewrites it.
func Identity(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return fingerprint()
}

// fingerprint reads a platform hardware identifier. On mobile platforms the
// shell injects DEVICE_ID instead, so this path only covers desktop installs.
func fingerprint() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return macUUID()
	case "linux":
		return linuxUUID()
	default:
		return "", errors.New("no device id source on " + runtime.GOOS + "; set DEVICE_ID")
	}
}

func macUUID() (string, error) {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "IOPlatformUUID") {
			parts := strings.Split(line, "\"")
			if len(parts) >= 4 {
				return parts[3], nil
			}
		}
	}
	return "", errors.New("no IOPlatformUUID found")
}

func linuxUUID() (string, error) {
	if raw, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}
	if raw, err := os.ReadFile("/sys/class/dmi/id/product_uuid"); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}
	return "", errors.New("no machine id found")
}
