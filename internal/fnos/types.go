package fnos

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope is the wire frame every fnOS response arrives in.
// Result is "succ" on success; anything else carries an appliance errno.
type envelope struct {
	Result string          `json:"result"`
	Errno  int             `json:"errno"`
	Data   json.RawMessage `json:"data"`
	ReqID  string          `json:"reqid"`
}

// Appliance errnos that mean the session token is no longer accepted.
const (
	errnoSessionExpired = 4010
	errnoBadCredentials = 4011
)

// DiskRecord is one entry from the disk inventory (store/disks).
// Name is the stable device identifier ("sda", "nvme0n1") and the join key
// with DiskTelemetry.
type DiskRecord struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Model    string `json:"model"`
	Serial   string `json:"serialNumber"`
	Type     string `json:"type"`
	Protocol string `json:"protocol"`
}

// DiskTelemetry is one entry from the runtime monitor (resmon/disk).
// Read and Write are cumulative operation counters since appliance boot —
// they are exposed as-is and never assumed to start at zero.
type DiskTelemetry struct {
	Name    string  `json:"name"`
	Temp    float64 `json:"temp"`
	Standby Flag    `json:"standby"`
	Busy    Flag    `json:"busy"`
	Read    float64 `json:"read"`
	Write   float64 `json:"write"`
}

// Flag is a boolean the appliance encodes inconsistently: sometimes JSON
// true/false, sometimes 0/1. Both decode to a plain bool.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("true")):
		*f = true
	case bytes.Equal(b, []byte("false")), bytes.Equal(b, []byte("null")):
		*f = false
	default:
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("flag: cannot decode %q", b)
		}
		*f = n != 0
	}
	return nil
}

// UptimeInfo is the open key→value bag returned by sysinfo/uptime. The field
// set is appliance- and version-dependent, so no schema is assumed beyond
// "JSON object"; values may be nested objects, numbers, strings or booleans.
type UptimeInfo map[string]any

// SmartInfo is the open SMART attribute bag for a single device, as produced
// by smartctl on the appliance. Like UptimeInfo it has no fixed schema.
type SmartInfo map[string]any

// loginData is the payload of a successful login response.
type loginData struct {
	Token  string `json:"token"`
	Expire int64  `json:"expire"`
}

// diskList is the payload shape shared by the inventory and telemetry calls.
type diskList[T any] struct {
	Num  int `json:"num"`
	Disk []T `json:"disk"`
}

// smartData wraps the SMART bag in the telemetry payload.
type smartData struct {
	Smart SmartInfo `json:"smart"`
}
