// Package discovery advertises and finds HCR servers.
//
// A server session is described by a ServiceRecord. Registrars publish the
// record: the Advertiser over DNS-SD (service _hcrp._udp), and on Linux the
// bluez package through the BlueZ profile manager. The Resolver browses
// DNS-SD and turns TXT records back into ServiceRecords.
package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/hcrp/pkg/profile"
)

// DNS-SD names.
const (
	// ServiceHCRP is the DNS-SD service type for HCR servers.
	ServiceHCRP = "_hcrp._udp"

	// DefaultDomain is the DNS-SD browse domain.
	DefaultDomain = "local."

	// MaxTXTValue is the largest value that fits in one TXT string after
	// its key. A TXT string is at most 255 bytes.
	MaxTXTValue = 255 - len("id=")
)

// TXT keys.
const (
	txtServiceType = "st"
	txtDeviceID    = "id"
	txtPSM         = "psm"
)

// ServiceRecord describes an HCR server for discovery.
type ServiceRecord struct {
	// Name is the human-readable instance name.
	Name string

	// ServiceType is Printer or Scanner.
	ServiceType profile.ServiceType

	// DeviceID is the IEEE 1284 device id string.
	DeviceID string

	// ControlPSM, DataPSM and NotificationPSM are the L2CAP PSMs of the
	// three channels on Bluetooth.
	ControlPSM      uint16
	DataPSM         uint16
	NotificationPSM uint16

	// Port is the IP port of the transport listener.
	Port int
}

// Validate checks the fields every registrar needs.
func (r ServiceRecord) Validate() error {
	if !r.ServiceType.IsValid() {
		return ErrInvalidServiceType
	}
	if r.Port < 0 || r.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// WithDefaultPSMs returns the record with zero PSMs replaced by the defaults.
func (r ServiceRecord) WithDefaultPSMs() ServiceRecord {
	if r.ControlPSM == 0 {
		r.ControlPSM = profile.DefaultControlPSM
	}
	if r.DataPSM == 0 {
		r.DataPSM = profile.DefaultDataPSM
	}
	if r.NotificationPSM == 0 {
		r.NotificationPSM = profile.DefaultNotificationPSM
	}
	return r
}

// EncodeTXT returns the TXT strings for the record. A device id longer than
// MaxTXTValue is truncated; clients read the full id with Get1284ID.
func (r ServiceRecord) EncodeTXT() []string {
	txt := []string{txtServiceType + "=" + strings.ToLower(r.ServiceType.String())}

	if r.DeviceID != "" {
		id := r.DeviceID
		if len(id) > MaxTXTValue {
			id = id[:MaxTXTValue]
		}
		txt = append(txt, txtDeviceID+"="+id)
	}

	if r.ControlPSM != 0 || r.DataPSM != 0 || r.NotificationPSM != 0 {
		txt = append(txt, fmt.Sprintf("%s=%04X,%04X,%04X", txtPSM, r.ControlPSM, r.DataPSM, r.NotificationPSM))
	}
	return txt
}

// ParseServiceTXT rebuilds the TXT fields of a record. Unknown keys are
// ignored.
func ParseServiceTXT(records []string) (ServiceRecord, error) {
	var rec ServiceRecord
	txt := ParseTXT(records)

	st, ok := profile.ParseServiceType(txt[txtServiceType])
	if !ok {
		return rec, fmt.Errorf("%w: st=%q", ErrInvalidServiceType, txt[txtServiceType])
	}
	rec.ServiceType = st

	rec.DeviceID = txt[txtDeviceID]

	if v, ok := txt[txtPSM]; ok {
		parts := strings.Split(v, ",")
		if len(parts) != 3 {
			return rec, fmt.Errorf("%w: psm=%q", ErrInvalidTXTRecord, v)
		}
		psms := make([]uint16, 3)
		for i, p := range parts {
			n, err := strconv.ParseUint(p, 16, 16)
			if err != nil {
				return rec, fmt.Errorf("%w: psm=%q", ErrInvalidTXTRecord, v)
			}
			psms[i] = uint16(n)
		}
		rec.ControlPSM, rec.DataPSM, rec.NotificationPSM = psms[0], psms[1], psms[2]
	}
	return rec, nil
}

// ParseTXT splits key=value TXT strings into a map. Keys are lowercased;
// a string without '=' maps to an empty value.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string, len(records))
	for _, record := range records {
		key, value, _ := strings.Cut(record, "=")
		if key == "" {
			continue
		}
		result[strings.ToLower(key)] = value
	}
	return result
}

// Registration is an active advertisement. Close withdraws it.
type Registration interface {
	Close() error
}

// Registrar publishes service records.
type Registrar interface {
	Register(rec ServiceRecord) (Registration, error)
}
