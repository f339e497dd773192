package probe

import (
	"bufio"
	"os"
	"strings"
)

const procNetARP = "/proc/net/arp"

// lookupNeighborMAC reads the kernel neighbor table for the given IP. Only
// hosts on the local segment have an entry; anything else returns "".
func lookupNeighborMAC(ip string) string {
	f, err := os.Open(procNetARP)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header row

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}

		if fields[0] != ip {
			continue
		}

		mac := strings.ToUpper(fields[3])
		if mac == "00:00:00:00:00:00" {
			return ""
		}

		return mac
	}

	return ""
}
