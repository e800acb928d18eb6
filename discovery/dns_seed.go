package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/miekg/dns"
)

// defaultDNSPort is the port assumed for a bare address record returned by
// a seed that doesn't encode port information (BOLT #10 SRV fallback).
const defaultDNSPort = "9735"

// dnsSeed bootstraps initial peer addresses from a BOLT #10 DNS seed: an SRV
// query for the service name, falling back to the seed domain's own A/AAAA
// records if the server doesn't answer SRV.
type dnsSeed struct {
	client *dns.Client
	server string // resolver to query, host:port
}

// newDNSSeed returns a seed client that queries resolver (e.g.
// "8.8.8.8:53") for bootstrap addresses.
func newDNSSeed(resolver string) *dnsSeed {
	return &dnsSeed{
		client: new(dns.Client),
		server: resolver,
	}
}

// Lookup resolves seedDomain into a list of "host:port" peer addresses,
// preferring the SRV records BOLT #10 seeds publish under
// "_nodes._tcp.<seedDomain>" and falling back to the domain's own address
// records with defaultDNSPort.
func (s *dnsSeed) Lookup(seedDomain string) ([]string, error) {
	srvName := dns.Fqdn("_nodes._tcp." + seedDomain)

	m := new(dns.Msg)
	m.SetQuestion(srvName, dns.TypeSRV)
	resp, _, err := s.client.Exchange(m, s.server)
	if err == nil && resp != nil && resp.Rcode == dns.RcodeSuccess {
		addrs := make([]string, 0, len(resp.Answer))
		for _, rr := range resp.Answer {
			srv, ok := rr.(*dns.SRV)
			if !ok {
				continue
			}
			host := dnsTrimTrailingDot(srv.Target)
			addrs = append(addrs, net.JoinHostPort(host, strconv.Itoa(int(srv.Port))))
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
	}

	return s.lookupAddrRecords(seedDomain)
}

func (s *dnsSeed) lookupAddrRecords(seedDomain string) ([]string, error) {
	fqdn := dns.Fqdn(seedDomain)

	addrs := make([]string, 0, 8)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(fqdn, qtype)
		resp, _, err := s.client.Exchange(m, s.server)
		if err != nil {
			continue
		}
		for _, rr := range resp.Answer {
			var ip net.IP
			switch rec := rr.(type) {
			case *dns.A:
				ip = rec.A
			case *dns.AAAA:
				ip = rec.AAAA
			default:
				continue
			}
			addrs = append(addrs, net.JoinHostPort(ip.String(), defaultDNSPort))
		}
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("discovery: no address records for seed %q", seedDomain)
	}
	return addrs, nil
}

func dnsTrimTrailingDot(s string) string {
	if n := len(s); n > 0 && s[n-1] == '.' {
		return s[:n-1]
	}
	return s
}
