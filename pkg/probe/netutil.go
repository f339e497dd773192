/*
 * Copyright 2025 SecureNet, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package probe

import (
	"fmt"
	"net"
)

// ExpandCIDR expands a CIDR notation into a slice of IP addresses.
// A bare IP is returned as-is. Skips network and broadcast addresses for
// IPv4 non-/32 networks.
func ExpandCIDR(network string) ([]string, error) {
	if ip := net.ParseIP(network); ip != nil {
		return []string{ip.String()}, nil
	}

	baseIP, ipnet, err := net.ParseCIDR(network)
	if err != nil {
		return nil, fmt.Errorf("invalid network %q: %w", network, err)
	}

	var ips []string

	for current := cloneIP(baseIP.Mask(ipnet.Mask)); ipnet.Contains(current); incIP(current) {
		ones, _ := ipnet.Mask.Size()
		if current.To4() != nil && ones != 32 {
			if current.Equal(ipnet.IP) || isBroadcast(current, ipnet) {
				continue
			}
		}

		ips = append(ips, current.String())
	}

	return ips, nil
}

// HostCount returns the number of probeable hosts a network expands to
// without materializing the expansion. Used for config-time quota checks.
func HostCount(network string) (int, error) {
	if ip := net.ParseIP(network); ip != nil {
		return 1, nil
	}

	_, ipnet, err := net.ParseCIDR(network)
	if err != nil {
		return 0, fmt.Errorf("invalid network %q: %w", network, err)
	}

	ones, bits := ipnet.Mask.Size()
	if bits-ones >= 31 {
		// Larger than a /1 is never a sane scan target; caller rejects it.
		return 1 << 30, nil
	}

	count := 1 << (bits - ones)
	if ipnet.IP.To4() != nil && ones < 31 {
		count -= 2 // network and broadcast addresses
	}

	if count < 1 {
		count = 1
	}

	return count, nil
}

func cloneIP(ip net.IP) net.IP {
	dup := make(net.IP, len(ip))
	copy(dup, ip)

	return dup
}

// incIP increments an IP address in place.
func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}

// isBroadcast checks if an IP is the broadcast address of a network.
func isBroadcast(ip net.IP, ipnet *net.IPNet) bool {
	broadcast := make(net.IP, len(ip))
	for i := range ip {
		broadcast[i] = ipnet.IP[i] | ^ipnet.Mask[i]
	}

	return ip.Equal(broadcast)
}
