// Package datacenter holds the compiled-in table of Telegram datacenter
// endpoints (spec.md §3 "Datacenter table", component C9). The shape
// mirrors core/pki.MixDescriptor's Addresses map[string][]string: a node
// (here, a DC) reachable over more than one transport/address family,
// keyed by a short transport tag rather than one rigid struct per
// address kind.
package datacenter

import "fmt"

// Transport tags used as keys into Datacenter.Addresses.
const (
	TransportIPv4      = "ipv4"
	TransportIPv6      = "ipv6"
	TransportIPv4Media = "ipv4_media"
	TransportIPv6Media = "ipv6_media"
)

// Datacenter describes one reachable Telegram DC.
type Datacenter struct {
	ID        int32
	Addresses map[string][]string
}

// Table is the full set of known datacenters, keyed by ID, for a given
// environment (production or test).
type Table struct {
	byID map[int32]*Datacenter
}

// Addresses returns the address list for transport on dc, or nil if
// neither exists.
func (t *Table) Addresses(dcID int32, transport string) []string {
	dc, ok := t.byID[dcID]
	if !ok {
		return nil
	}
	return dc.Addresses[transport]
}

// Get returns the Datacenter with the given ID.
func (t *Table) Get(dcID int32) (*Datacenter, bool) {
	dc, ok := t.byID[dcID]
	return dc, ok
}

// IDs returns every known datacenter ID, in ascending order.
func (t *Table) IDs() []int32 {
	ids := make([]int32, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

func newTable(dcs ...*Datacenter) *Table {
	t := &Table{byID: make(map[int32]*Datacenter, len(dcs))}
	for _, dc := range dcs {
		t.byID[dc.ID] = dc
	}
	return t
}

// Production is the compiled-in table of production Telegram DCs. These
// addresses are the long-published, stable entry points; real clients
// still prefer whatever help.getConfig returns once a session is up, and
// fall back to this table only to bootstrap the very first connection.
var Production = newTable(
	&Datacenter{ID: 1, Addresses: map[string][]string{
		TransportIPv4:      {"149.154.175.53:443"},
		TransportIPv6:      {"[2001:b28:f23d:f001::a]:443"},
		TransportIPv4Media: {"149.154.175.51:443"},
	}},
	&Datacenter{ID: 2, Addresses: map[string][]string{
		TransportIPv4:      {"149.154.167.51:443"},
		TransportIPv6:      {"[2001:67c:4e8:f002::a]:443"},
		TransportIPv4Media: {"149.154.167.51:443"},
	}},
	&Datacenter{ID: 3, Addresses: map[string][]string{
		TransportIPv4: {"149.154.175.100:443"},
		TransportIPv6: {"[2001:b28:f23d:f003::a]:443"},
	}},
	&Datacenter{ID: 4, Addresses: map[string][]string{
		TransportIPv4:      {"149.154.167.91:443"},
		TransportIPv6:      {"[2001:67c:4e8:f004::a]:443"},
		TransportIPv4Media: {"149.154.167.91:443"},
	}},
	&Datacenter{ID: 5, Addresses: map[string][]string{
		TransportIPv4: {"91.108.56.130:443"},
		TransportIPv6: {"[2001:b28:f23f:f005::a]:443"},
	}},
)

// Test is the compiled-in table of Telegram's public test DCs.
var Test = newTable(
	&Datacenter{ID: 1, Addresses: map[string][]string{
		TransportIPv4: {"149.154.175.10:443"},
	}},
	&Datacenter{ID: 2, Addresses: map[string][]string{
		TransportIPv4: {"149.154.167.40:443"},
	}},
	&Datacenter{ID: 3, Addresses: map[string][]string{
		TransportIPv4: {"149.154.175.117:443"},
	}},
)

// FromConfig builds a new Table from the DC options of a live
// help.getConfig response (schema.Config), so a client that started from
// the compiled-in table can switch to what the network actually
// advertises. The result holds only the given options; it is not merged
// with any existing Table.
func FromConfig(dcOptions []ConfigDCOption) *Table {
	byID := make(map[int32]*Datacenter)
	for _, o := range dcOptions {
		dc, ok := byID[o.ID]
		if !ok {
			dc = &Datacenter{ID: o.ID, Addresses: make(map[string][]string)}
			byID[o.ID] = dc
		}
		transport := TransportIPv4
		switch {
		case o.IPv6 && o.MediaOnly:
			transport = TransportIPv6Media
		case o.IPv6:
			transport = TransportIPv6
		case o.MediaOnly:
			transport = TransportIPv4Media
		}
		addr := fmt.Sprintf("%s:%d", o.IPAddress, o.Port)
		dc.Addresses[transport] = append(dc.Addresses[transport], addr)
	}
	t := &Table{byID: byID}
	return t
}

// ConfigDCOption is the subset of schema.DCOption this package needs,
// duplicated here rather than imported to keep datacenter free of a
// dependency on the schema package's wire-codec concerns.
type ConfigDCOption struct {
	ID        int32
	IPAddress string
	Port      int32
	IPv6      bool
	MediaOnly bool
}
