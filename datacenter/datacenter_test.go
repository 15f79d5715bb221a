package datacenter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductionTableHasAllFiveDCs(t *testing.T) {
	require.Equal(t, []int32{1, 2, 3, 4, 5}, Production.IDs())
}

func TestAddressesLooksUpByTransport(t *testing.T) {
	addrs := Production.Addresses(2, TransportIPv4)
	require.Equal(t, []string{"149.154.167.51:443"}, addrs)

	require.Nil(t, Production.Addresses(2, "nonexistent-transport"))
	require.Nil(t, Production.Addresses(99, TransportIPv4))
}

func TestFromConfigBuildsTableFromLiveOptions(t *testing.T) {
	opts := []ConfigDCOption{
		{ID: 2, IPAddress: "149.154.167.51", Port: 443},
		{ID: 2, IPAddress: "2001:67c:4e8:f002::a", Port: 443, IPv6: true},
		{ID: 5, IPAddress: "91.108.56.130", Port: 443, MediaOnly: true},
	}

	tbl := FromConfig(opts)

	dc2, ok := tbl.Get(2)
	require.True(t, ok)
	require.Equal(t, []string{"149.154.167.51:443"}, dc2.Addresses[TransportIPv4])
	require.Equal(t, []string{"2001:67c:4e8:f002::a:443"}, dc2.Addresses[TransportIPv6])

	dc5, ok := tbl.Get(5)
	require.True(t, ok)
	require.Equal(t, []string{"91.108.56.130:443"}, dc5.Addresses[TransportIPv4Media])
}
