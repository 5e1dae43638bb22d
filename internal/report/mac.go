package report

import (
	"encoding/hex"
	"fmt"
)

// String formats the MAC in canonical lowercase "aa:bb:cc:dd:ee:ff" form.
func (m MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// ParseMAC parses a canonical "aa:bb:cc:dd:ee:ff" string into a MACAddress.
func ParseMAC(s string) (MACAddress, error) {
	var m MACAddress
	if len(s) != 17 {
		return m, fmt.Errorf("report: invalid mac %q: wrong length", s)
	}
	for i := 0; i < 6; i++ {
		b, err := hex.DecodeString(s[i*3 : i*3+2])
		if err != nil {
			return m, fmt.Errorf("report: invalid mac %q: %w", s, err)
		}
		if i < 5 && s[i*3+2] != ':' {
			return m, fmt.Errorf("report: invalid mac %q: missing separator", s)
		}
		m[i] = b[0]
	}
	return m, nil
}
