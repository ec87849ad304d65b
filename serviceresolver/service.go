package serviceresolver

import (
	"fmt"

	"github.com/miekg/dns"
)

// DefaultResolver is the local systemd-resolved stub listener, used when no
// resolver address is configured.
const DefaultResolver = "127.0.0.53:53"

// Endpoint is one enclave service candidate discovered via DNS.
type Endpoint struct {
	// Host is the SRV target, with the trailing dot trimmed.
	Host string

	// Port is the SRV port.
	Port uint16

	// Priority and Weight carry the SRV selection hints unchanged; callers
	// that do not care can simply try endpoints in returned order, which is
	// priority-sorted by the DNS server.
	Priority uint16
	Weight   uint16
}

// Addr returns the endpoint in host:port form.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ResolveServiceEndpoints queries resolverAddr for SRV records of domain and
// returns the advertised enclave service endpoints. An empty resolverAddr
// uses DefaultResolver.
func ResolveServiceEndpoints(resolverAddr, domain string) ([]Endpoint, error) {
	if resolverAddr == "" {
		resolverAddr = DefaultResolver
	}

	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = []dns.Question{{
		Name:   dns.Fqdn(domain),
		Qtype:  dns.TypeSRV,
		Qclass: dns.ClassINET,
	}}

	c := new(dns.Client)
	in, _, err := c.Exchange(m, resolverAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving SRV records for %s: %w", domain, err)
	}

	endpoints := make([]Endpoint, 0, len(in.Answer))
	for _, answer := range in.Answer {
		srv, ok := answer.(*dns.SRV)
		if !ok {
			continue
		}
		endpoints = append(endpoints, Endpoint{
			Host:     trimDot(srv.Target),
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", domain)
	}

	return endpoints, nil
}

func trimDot(name string) string {
	if len(name) > 0 && name[len(name)-1] == '.' {
		return name[:len(name)-1]
	}
	return name
}
