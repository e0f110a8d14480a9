package netutil

import (
	"net"
	"testing"
)

func TestParseCIDRs(t *testing.T) {
	nets, err := ParseCIDRs([]string{"10.0.0.0/8", " 192.168.1.7 ", "::1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, ip := range []string{"10.1.2.3", "192.168.1.7", "::1"} {
		if !Contains(nets, net.ParseIP(ip)) {
			t.Errorf("%s not allowed", ip)
		}
	}
	if Contains(nets, net.ParseIP("192.168.1.8")) {
		t.Error("single host entry matched a neighbour")
	}
}

func TestParseCIDRsRejectsGarbage(t *testing.T) {
	if _, err := ParseCIDRs([]string{"10.0.0.0/33"}); err == nil {
		t.Fatal("expected error for bad prefix")
	}
	if _, err := ParseCIDRs([]string{"localhost"}); err == nil {
		t.Fatal("expected error for hostname")
	}
	if got := MustParseCIDRs([]string{"nope", "127.0.0.0/8"}); len(got) != 1 {
		t.Fatalf("MustParseCIDRs kept %d nets", len(got))
	}
}
