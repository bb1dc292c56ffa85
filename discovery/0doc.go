// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery finds neighboring DTN nodes via UDP multicast: each node
// periodically broadcasts an Announcement naming its endpoint and reachable
// CLAs, and folds every Announcement it overhears from others into the
// storage layer's peer set.
package discovery

const (
	// address4 is the default multicast IPv4 address used for discovery.
	address4 = "224.23.23.23"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::23"

	// port is the default multicast UDP port used for discovery.
	port = 35039
)
