package detector

import (
	"fmt"
	"net"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// vrpEntry is a parsed VRP table row.
type vrpEntry struct {
	net    *net.IPNet
	ones   int
	origin models.ASN
}

// StaticRules holds the immutable, process-wide data the detector needs:
// the VRP table (parsed into CIDRs) and the fixed bogon range list. Shared
// read-only across every node's Detector.
type StaticRules struct {
	vrp    []vrpEntry
	bogons []*net.IPNet
}

// reservedRangeCIDRs is the small fixed bogon list spec.md §4.6 calls for:
// RFC 1918, RFC 5737, RFC 6598, plus loopback/link-local/multicast/reserved.
var reservedRangeCIDRs = []string{
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"192.0.2.0/24",   // RFC 5737 (TEST-NET-1)
	"198.51.100.0/24", // RFC 5737 (TEST-NET-2)
	"203.0.113.0/24", // RFC 5737 (TEST-NET-3)
	"100.64.0.0/10",  // RFC 6598 (CGN shared address space)
	"0.0.0.0/8",      // "this" network
	"127.0.0.0/8",    // loopback
	"169.254.0.0/16", // link-local
	"224.0.0.0/4",    // multicast
	"240.0.0.0/4",    // reserved
}

// NewStaticRules parses the VRP table and the fixed bogon list once at
// startup. An unparseable VRP prefix is skipped (dataset ingestion owns
// format validation; this is out of scope per spec.md §1).
func NewStaticRules(vrp models.VRPTable) (*StaticRules, error) {
	rules := &StaticRules{}
	for prefix, origin := range vrp {
		_, ipnet, err := net.ParseCIDR(prefix)
		if err != nil {
			continue
		}
		ones, _ := ipnet.Mask.Size()
		rules.vrp = append(rules.vrp, vrpEntry{net: ipnet, ones: ones, origin: origin})
	}
	for _, cidr := range reservedRangeCIDRs {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("detector: bad built-in bogon range %q: %w", cidr, err)
		}
		rules.bogons = append(rules.bogons, ipnet)
	}
	return rules, nil
}

// coveringEntry returns the most specific VRP entry that covers prefix
// (spec.md §4.6: "exactly, or as a less-specific" — resolved as: the
// longest-matching VRP entry whose mask length is <= the observed
// prefix's). ok is false if no VRP entry covers it.
func (r *StaticRules) coveringEntry(prefix string) (vrpEntry, int, bool) {
	_, obsNet, err := net.ParseCIDR(prefix)
	if err != nil {
		return vrpEntry{}, 0, false
	}
	obsOnes, _ := obsNet.Mask.Size()

	best := vrpEntry{}
	bestOnes := -1
	found := false
	for _, e := range r.vrp {
		if e.ones > obsOnes {
			continue // VRP entry more specific than the announcement: not "covering"
		}
		if !e.net.Contains(obsNet.IP) {
			continue
		}
		if e.ones > bestOnes {
			best = e
			bestOnes = e.ones
			found = true
		}
	}
	return best, obsOnes, found
}

// isBogon reports whether prefix intersects any reserved range.
func (r *StaticRules) isBogon(prefix string) bool {
	_, obsNet, err := net.ParseCIDR(prefix)
	if err != nil {
		return false
	}
	for _, b := range r.bogons {
		if b.Contains(obsNet.IP) || obsNet.Contains(b.IP) {
			return true
		}
	}
	return false
}
