// Package delivery sends a resolved notification downstream: an SNMP trap to
// the primary receiver and a JSON metric to the Zabbix trapper.
package delivery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"trapforwarder/internal/config"
	"trapforwarder/internal/types"
)

// AddressResolver returns the IPv4 address of host.
type AddressResolver func(ctx context.Context, host string) (string, error)

// LookupIPv4 resolves host with the system resolver.
func LookupIPv4(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return ip.String(), nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("no IPv4 address for %s", host)
}

// TrapSinkConfig configures a TrapSink.
type TrapSinkConfig struct {
	Target    string
	Port      int
	Community string
	Version   string // "1" or "2c"
	Timeout   time.Duration

	// SourceHost is resolved for the snmpTrapAddress varbind.
	SourceHost string

	// Parameters are the payload fields in wire order.
	Parameters []string
	OIDs       OIDTable
}

// TrapSinkConfigFrom assembles the sink settings from the mapping file and
// process configuration.
func TrapSinkConfigFrom(m *config.Mapping, c config.SNMPConfig) TrapSinkConfig {
	return TrapSinkConfig{
		Target:     m.Zabbix.Host,
		Port:       m.Zabbix.Port,
		Community:  c.Community.Unmask(),
		Version:    c.Version,
		Timeout:    c.Timeout,
		SourceHost: m.Hostname,
		Parameters: m.TrapParameters,
		OIDs:       NewOIDTable(m.OIDs),
	}
}

// TrapSink sends one oraEMNGEvent trap per record.
type TrapSink struct {
	cfg     TrapSinkConfig
	oids    []string
	version gosnmp.SnmpVersion
	resolve AddressResolver
	clock   types.Clock
	logger  types.Logger
}

// TrapSinkOption customizes a TrapSink.
type TrapSinkOption func(*TrapSink)

// WithResolver replaces the DNS lookup of the source host.
func WithResolver(r AddressResolver) TrapSinkOption {
	return func(s *TrapSink) { s.resolve = r }
}

// WithClock replaces the clock used for the uptime varbind.
func WithClock(c types.Clock) TrapSinkOption {
	return func(s *TrapSink) { s.clock = c }
}

// NewTrapSink validates cfg and creates the sink. Every payload field must
// have an OID.
func NewTrapSink(cfg TrapSinkConfig, logger types.Logger, opts ...TrapSinkOption) (*TrapSink, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("trap target is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 162
	}
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.OIDs == nil {
		cfg.OIDs = DefaultOIDs()
	}

	var version gosnmp.SnmpVersion
	switch cfg.Version {
	case "", "1":
		version = gosnmp.Version1
	case "2c":
		version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("unsupported SNMP version %q", cfg.Version)
	}

	oids, err := cfg.OIDs.Resolve(cfg.Parameters)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = types.NopLogger{}
	}
	s := &TrapSink{
		cfg:     cfg,
		oids:    oids,
		version: version,
		resolve: LookupIPv4,
		clock:   types.RealClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send builds and transmits the trap for rec.
func (s *TrapSink) Send(ctx context.Context, rec types.NotificationRecord) error {
	source, err := s.resolve(ctx, s.cfg.SourceHost)
	if err != nil {
		return fmt.Errorf("resolve trap source %s: %w", s.cfg.SourceHost, err)
	}

	vars := BuildVarBinds(rec, s.cfg.Parameters, s.oids, source, s.uptime(), s.version == gosnmp.Version2c)

	g := &gosnmp.GoSNMP{
		Target:    s.cfg.Target,
		Port:      uint16(s.cfg.Port),
		Transport: "udp",
		Community: s.cfg.Community,
		Version:   s.version,
		Timeout:   s.cfg.Timeout,
		Retries:   0,
		Context:   ctx,
	}
	if err := g.Connect(); err != nil {
		return fmt.Errorf("connect %s:%d: %w", s.cfg.Target, s.cfg.Port, err)
	}
	defer g.Conn.Close()

	trap := gosnmp.SnmpTrap{Variables: vars}
	if s.version == gosnmp.Version1 {
		trap.Enterprise = OIDEnterprise
		trap.AgentAddress = source
		trap.GenericTrap = 6
		trap.SpecificTrap = EventSpecificTrap
		trap.Timestamp = uint(s.uptime())
	}

	if _, err := g.SendTrap(trap); err != nil {
		return fmt.Errorf("send trap to %s:%d: %w", s.cfg.Target, s.cfg.Port, err)
	}

	s.logger.Info("trap sent",
		"target", s.cfg.Target,
		"port", s.cfg.Port,
		"varbinds", len(vars),
		"sequence_id", rec.SequenceID(),
	)
	return nil
}

// uptime is epoch seconds truncated to 32 bits, the value gosnmp itself
// fills in when a v2c trap lacks one.
func (s *TrapSink) uptime() uint32 {
	return uint32(s.clock.Now().Unix())
}

// BuildVarBinds returns the trap variables in wire order: sysUpTime,
// snmpTrapOID (v2c only), snmpTrapAddress, then one string per payload field.
// Double quotes in values are replaced by single quotes; an absent field is
// sent as an empty string.
func BuildVarBinds(rec types.NotificationRecord, params, oids []string, source string, uptime uint32, v2c bool) []gosnmp.SnmpPDU {
	vars := make([]gosnmp.SnmpPDU, 0, len(params)+3)
	vars = append(vars, gosnmp.SnmpPDU{Name: OIDSysUpTime, Type: gosnmp.TimeTicks, Value: uptime})
	if v2c {
		vars = append(vars, gosnmp.SnmpPDU{Name: OIDSnmpTrapOID, Type: gosnmp.ObjectIdentifier, Value: OIDEventTrap})
	}
	vars = append(vars, gosnmp.SnmpPDU{Name: OIDSnmpTrapAddress, Type: gosnmp.IPAddress, Value: source})

	for i, name := range params {
		vars = append(vars, gosnmp.SnmpPDU{
			Name:  oids[i],
			Type:  gosnmp.OctetString,
			Value: strings.ReplaceAll(rec.Field(name), `"`, `'`),
		})
	}
	return vars
}
