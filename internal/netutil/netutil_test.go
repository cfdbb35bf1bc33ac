package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLongestPrefixMatch(t *testing.T) {
	candidates := []string{"10.0.0.1", "192.168.1.5", "192.168.1.1"}
	got, ok := LongestPrefixMatch(candidates, "192.168.1.1")
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.1", got)
}

func TestLongestPrefixMatch_TieBreaksEarliest(t *testing.T) {
	candidates := []string{"192.168.1.5", "192.168.1.6"}
	got, ok := LongestPrefixMatch(candidates, "192.168.1.200")
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.5", got)
}

func TestLongestPrefixMatch_NoValidCandidates(t *testing.T) {
	_, ok := LongestPrefixMatch([]string{"not-an-ip"}, "192.168.1.1")
	assert.False(t, ok)
}

func TestFilterRouterCandidates(t *testing.T) {
	candidates := []string{"192.168.1.1", "192.168.0.1", "10.0.0.1"}
	local := []string{"192.168.1.50"}
	got := FilterRouterCandidates(candidates, local)
	assert.Equal(t, []string{"192.168.1.1"}, got)
}

func TestArrUnion_PreservesOrderNoDuplicates(t *testing.T) {
	a := []string{"192.168.1.1", "10.0.0.1"}
	b := []string{"10.0.0.1", "172.16.0.1"}
	assert.Equal(t, []string{"192.168.1.1", "10.0.0.1", "172.16.0.1"}, ArrUnion(a, b))
}

func TestArrDifference(t *testing.T) {
	a := []string{"192.168.1.1", "10.0.0.1", "172.16.0.1"}
	b := []string{"10.0.0.1"}
	assert.Equal(t, []string{"192.168.1.1", "172.16.0.1"}, ArrDifference(a, b))
}
