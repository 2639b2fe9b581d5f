package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// DNSConfig configures the DNS probe.
type DNSConfig struct {
	// Nameservers are tried in order; entries without a port use 53.
	Nameservers []string
	Timeout     time.Duration
	// Net is "udp" (default) or "tcp".
	Net string
}

// DNSProbe resolves the common record types for a host and reviews its
// mail authentication setup.
type DNSProbe struct {
	cfg    DNSConfig
	logger *zap.Logger
}

var errNoNameservers = errors.New("no nameservers configured")

// NewDNSProbe builds the probe.
func NewDNSProbe(cfg DNSConfig, logger *zap.Logger) *DNSProbe {
	if cfg.Net == "" {
		cfg.Net = "udp"
	}
	servers := make([]string, 0, len(cfg.Nameservers))
	for _, ns := range cfg.Nameservers {
		ns = strings.TrimSpace(ns)
		if ns == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(ns); err != nil {
			ns = net.JoinHostPort(ns, "53")
		}
		servers = append(servers, ns)
	}
	cfg.Nameservers = servers
	return &DNSProbe{cfg: cfg, logger: orNop(logger).Named(ProbeDNS)}
}

func (d *DNSProbe) Name() string {
	return ProbeDNS
}

// recordQuery is one lookup the probe performs, in report order.
type recordQuery struct {
	key   string
	qtype uint16
}

var recordQueries = []recordQuery{
	{"a_records", dns.TypeA},
	{"aaaa_records", dns.TypeAAAA},
	{"mx_records", dns.TypeMX},
	{"txt_records", dns.TypeTXT},
	{"ns_records", dns.TypeNS},
	{"soa_record", dns.TypeSOA},
}

// Execute queries every record type, then DMARC.
func (d *DNSProbe) Execute(ctx context.Context, target string) probe.Result {
	host := ExtractHost(target)
	if host == "" {
		return probe.Failed(probe.NewError(probe.CategoryNotFound, target, errors.New("no host in target")))
	}
	if len(d.cfg.Nameservers) == 0 {
		return probe.Failed(probe.NewError(probe.CategoryConnection, host, errNoNameservers))
	}

	detail := map[string]any{"host": host}
	queryErrors := map[string]string{}
	var firstErr error
	succeeded := 0

	answers := make(map[uint16][]dns.RR, len(recordQueries))
	for _, q := range recordQueries {
		msg, err := d.exchange(ctx, host, q.qtype)
		if err == nil && msg.Rcode == dns.RcodeNameError && q.qtype == dns.TypeA {
			return probe.Failed(probe.NewError(probe.CategoryNotFound, host,
				fmt.Errorf("domain does not exist (NXDOMAIN)")))
		}
		if err == nil {
			err = rcodeError(msg)
		}
		if err != nil {
			d.logger.Debug("query failed", zap.String("host", host),
				zap.String("type", dns.TypeToString[q.qtype]), zap.Error(err))
			queryErrors[dns.TypeToString[q.qtype]] = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded++
		answers[q.qtype] = msg.Answer
	}

	if succeeded == 0 {
		return probe.Failed(probe.Wrap(host, firstErr))
	}

	for _, q := range recordQueries {
		if rrs, ok := answers[q.qtype]; ok {
			detail[q.key] = recordValues(rrs, q.qtype)
		}
	}

	var findings []probe.Finding
	if rrs, ok := answers[dns.TypeA]; ok {
		if addrs := recordValues(rrs, dns.TypeA).([]string); len(addrs) > 0 {
			findings = append(findings, probe.NewFinding(probe.SeverityInfo,
				fmt.Sprintf("Resolved %d A record(s)", len(addrs)),
				map[string]any{"addresses": addrs}))
		}
	}
	if rrs, ok := answers[dns.TypeMX]; ok && len(filterType(rrs, dns.TypeMX)) == 0 {
		findings = append(findings, probe.NewFinding(probe.SeverityLow,
			"No MX records found", map[string]any{"host": host}))
	}
	if rrs, ok := answers[dns.TypeTXT]; ok && !hasSPF(rrs) {
		findings = append(findings, probe.NewFinding(probe.SeverityMedium,
			"No SPF record found",
			map[string]any{"recommendation": "Publish a v=spf1 TXT record"}))
	}

	dmarc, dmarcErr := d.lookupDMARC(ctx, host)
	switch {
	case dmarcErr != nil:
		queryErrors["DMARC"] = dmarcErr.Error()
	case dmarc == "":
		findings = append(findings, probe.NewFinding(probe.SeverityMedium,
			"No DMARC record found",
			map[string]any{"recommendation": "Publish a v=DMARC1 TXT record at _dmarc." + host}))
	default:
		detail["dmarc_record"] = dmarc
	}

	summary := fmt.Sprintf("%d of %d record types resolved", succeeded, len(recordQueries))
	if len(queryErrors) > 0 {
		detail["errors"] = queryErrors
		if firstErr == nil {
			firstErr = dmarcErr
		}
		return probe.Partial(summary, detail, probe.Wrap(host, firstErr), findings...)
	}
	return probe.Success(summary, detail, findings...)
}

// exchange sends one question, moving to the next nameserver on transport
// errors and retrying over TCP when a UDP answer is truncated.
func (d *DNSProbe) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	client := &dns.Client{Net: d.cfg.Net, Timeout: d.cfg.Timeout}
	var lastErr error
	for _, server := range d.cfg.Nameservers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, _, err := client.ExchangeContext(ctx, m, server)
		if err == nil && r.Truncated && client.Net == "udp" {
			tcp := &dns.Client{Net: "tcp", Timeout: d.cfg.Timeout}
			r, _, err = tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			lastErr = err
			continue
		}
		return r, nil
	}
	return nil, lastErr
}

func (d *DNSProbe) lookupDMARC(ctx context.Context, host string) (string, error) {
	msg, err := d.exchange(ctx, "_dmarc."+host, dns.TypeTXT)
	if err != nil {
		return "", err
	}
	if msg.Rcode == dns.RcodeNameError {
		return "", nil
	}
	if err := rcodeError(msg); err != nil {
		return "", err
	}
	for _, rr := range filterType(msg.Answer, dns.TypeTXT) {
		txt := strings.Join(rr.(*dns.TXT).Txt, "")
		if strings.HasPrefix(strings.ToLower(txt), "v=dmarc1") {
			return txt, nil
		}
	}
	return "", nil
}

// rcodeError turns a non-success response code into a protocol error.
// NXDOMAIN on a secondary record type simply means no records.
func rcodeError(msg *dns.Msg) error {
	switch msg.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
		return nil
	default:
		return probe.NewError(probe.CategoryProtocol, "",
			fmt.Errorf("server returned %s", dns.RcodeToString[msg.Rcode]))
	}
}

func filterType(rrs []dns.RR, qtype uint16) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		if rr.Header().Rrtype == qtype {
			out = append(out, rr)
		}
	}
	return out
}

func hasSPF(rrs []dns.RR) bool {
	for _, rr := range filterType(rrs, dns.TypeTXT) {
		if strings.HasPrefix(strings.ToLower(strings.Join(rr.(*dns.TXT).Txt, "")), "v=spf1") {
			return true
		}
	}
	return false
}

// recordValues renders answers of one type into JSON-friendly values.
func recordValues(rrs []dns.RR, qtype uint16) any {
	rrs = filterType(rrs, qtype)
	switch qtype {
	case dns.TypeMX:
		out := make([]map[string]any, 0, len(rrs))
		for _, rr := range rrs {
			mx := rr.(*dns.MX)
			out = append(out, map[string]any{"host": strings.TrimSuffix(mx.Mx, "."), "priority": mx.Preference})
		}
		return out
	case dns.TypeSOA:
		if len(rrs) == 0 {
			return nil
		}
		soa := rrs[0].(*dns.SOA)
		return map[string]any{
			"primary_ns": strings.TrimSuffix(soa.Ns, "."),
			"mailbox":    strings.TrimSuffix(soa.Mbox, "."),
			"serial":     soa.Serial,
		}
	}

	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		switch v := rr.(type) {
		case *dns.A:
			out = append(out, v.A.String())
		case *dns.AAAA:
			out = append(out, v.AAAA.String())
		case *dns.TXT:
			out = append(out, strings.Join(v.Txt, ""))
		case *dns.NS:
			out = append(out, strings.TrimSuffix(v.Ns, "."))
		}
	}
	return out
}
