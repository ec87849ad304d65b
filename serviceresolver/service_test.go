package serviceresolver

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestDNS(t *testing.T, records map[string][]*dns.SRV) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		for _, q := range r.Question {
			if q.Qtype != dns.TypeSRV {
				continue
			}
			for _, srv := range records[q.Name] {
				m.Answer = append(m.Answer, srv)
			}
		}
		_ = w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go srv.ActivateAndServe()
	t.Cleanup(func() { _ = srv.Shutdown() })

	// give the server a moment to start accepting
	time.Sleep(10 * time.Millisecond)
	return pc.LocalAddr().String()
}

func srvRecord(name, target string, port uint16) *dns.SRV {
	return &dns.SRV{
		Hdr:    dns.RR_Header{Name: name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 60},
		Target: target,
		Port:   port,
	}
}

func TestResolveServiceEndpoints(t *testing.T) {
	addr := startTestDNS(t, map[string][]*dns.SRV{
		"_enclave._tcp.example.com.": {
			srvRecord("_enclave._tcp.example.com.", "enclave-1.example.com.", 8080),
			srvRecord("_enclave._tcp.example.com.", "enclave-2.example.com.", 9090),
		},
	})

	endpoints, err := ResolveServiceEndpoints(addr, "_enclave._tcp.example.com")
	require.NoError(t, err)
	require.Len(t, endpoints, 2)

	assert.Equal(t, "enclave-1.example.com:8080", endpoints[0].Addr())
	assert.Equal(t, "enclave-2.example.com:9090", endpoints[1].Addr())
}

func TestResolveServiceEndpointsNoRecords(t *testing.T) {
	addr := startTestDNS(t, nil)

	_, err := ResolveServiceEndpoints(addr, "missing.example.com")
	assert.ErrorContains(t, err, "no SRV records")
}
