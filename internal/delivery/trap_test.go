package delivery

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapforwarder/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testParams = []string{
	types.FieldSeverity,
	types.FieldMessage,
	types.FieldSequenceID,
}

func trapRecord() types.NotificationRecord {
	return types.NewNotificationRecord(types.IssueTypeEvent, nil).
		WithField(types.FieldSeverity, "Critical").
		WithField(types.FieldMessage, `disk "u01" is full`).
		WithSequenceID("SEQ1").
		WithField(types.FieldHostName, "db01")
}

func staticResolver(addr string) AddressResolver {
	return func(context.Context, string) (string, error) { return addr, nil }
}

func TestOIDTable(t *testing.T) {
	table := NewOIDTable(map[string]string{
		"oraEMNGEventSeverity": ".1.2.3",
		"customField":          "1.2.4",
	})
	oids, err := table.Resolve([]string{"oraEMNGEventSeverity", "customField", "oraEMNGEventMessage"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.3", "1.2.4", "1.3.6.1.4.1.111.15.3.1.1.3"}, oids)

	_, err = table.Resolve([]string{"nope", "oraEMNGEventName", "alsoNope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope, alsoNope")
}

func TestBuildVarBinds(t *testing.T) {
	oids, err := DefaultOIDs().Resolve(testParams)
	require.NoError(t, err)

	vars := BuildVarBinds(trapRecord(), testParams, oids, "10.0.0.5", 42, false)
	require.Len(t, vars, 5)

	assert.Equal(t, OIDSysUpTime, vars[0].Name)
	assert.Equal(t, uint32(42), vars[0].Value)
	assert.Equal(t, OIDSnmpTrapAddress, vars[1].Name)
	assert.Equal(t, "10.0.0.5", vars[1].Value)
	assert.Equal(t, "Critical", vars[2].Value)
	assert.Equal(t, `disk 'u01' is full`, vars[3].Value)
	assert.Equal(t, "SEQ1", vars[4].Value)
	assert.Equal(t, gosnmp.OctetString, vars[4].Type)

	v2 := BuildVarBinds(trapRecord(), testParams, oids, "10.0.0.5", 42, true)
	require.Len(t, v2, 6)
	assert.Equal(t, OIDSnmpTrapOID, v2[1].Name)
	assert.Equal(t, OIDEventTrap, v2[1].Value)
}

func TestBuildVarBinds_AbsentFieldIsEmpty(t *testing.T) {
	params := []string{types.FieldEventName}
	oids, err := DefaultOIDs().Resolve(params)
	require.NoError(t, err)

	vars := BuildVarBinds(trapRecord(), params, oids, "10.0.0.5", 1, false)
	assert.Equal(t, "", vars[2].Value)
}

func TestNewTrapSink_Validation(t *testing.T) {
	_, err := NewTrapSink(TrapSinkConfig{}, nil)
	assert.Error(t, err)

	_, err = NewTrapSink(TrapSinkConfig{Target: "zbx", Version: "3"}, nil)
	assert.Error(t, err)

	_, err = NewTrapSink(TrapSinkConfig{Target: "zbx", Parameters: []string{"unknownField"}}, nil)
	assert.Error(t, err)

	s, err := NewTrapSink(TrapSinkConfig{Target: "zbx", Parameters: testParams}, nil)
	require.NoError(t, err)
	assert.Equal(t, 162, s.cfg.Port)
	assert.Equal(t, gosnmp.Version1, s.version)
}

func listenUDP(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func receiveTrap(t *testing.T, conn *net.UDPConn) *gosnmp.SnmpPacket {
	t.Helper()
	buf := make([]byte, 8192)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	pkt, err := gosnmp.Default.UnmarshalTrap(buf[:n], false)
	require.NoError(t, err)
	return pkt
}

func TestTrapSink_SendV2c(t *testing.T) {
	conn, port := listenUDP(t)

	sink, err := NewTrapSink(TrapSinkConfig{
		Target:     "127.0.0.1",
		Port:       port,
		Community:  "public",
		Version:    "2c",
		Timeout:    time.Second,
		SourceHost: "oms.example.com",
		Parameters: testParams,
	}, nil, WithResolver(staticResolver("10.1.2.3")), WithClock(fixedClock{time.Unix(1000, 0)}))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), trapRecord()))

	pkt := receiveTrap(t, conn)
	assert.Equal(t, gosnmp.Version2c, pkt.Version)
	require.Len(t, pkt.Variables, 6)
	assert.Equal(t, OIDSysUpTime, strings.TrimPrefix(pkt.Variables[0].Name, "."))
	assert.Equal(t, OIDSnmpTrapAddress, strings.TrimPrefix(pkt.Variables[2].Name, "."))
	assert.Equal(t, "10.1.2.3", pkt.Variables[2].Value)
	assert.Equal(t, []byte("Critical"), pkt.Variables[3].Value)
	assert.Equal(t, []byte("disk 'u01' is full"), pkt.Variables[4].Value)
}

func TestTrapSink_SendV1(t *testing.T) {
	conn, port := listenUDP(t)

	sink, err := NewTrapSink(TrapSinkConfig{
		Target:     "127.0.0.1",
		Port:       port,
		Timeout:    time.Second,
		SourceHost: "oms.example.com",
		Parameters: testParams,
	}, nil, WithResolver(staticResolver("10.1.2.3")))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), trapRecord()))

	pkt := receiveTrap(t, conn)
	assert.Equal(t, gosnmp.Version1, pkt.Version)
	assert.Equal(t, OIDEnterprise, strings.TrimPrefix(pkt.Enterprise, "."))
	assert.Equal(t, "10.1.2.3", pkt.AgentAddress)
	assert.Equal(t, EventSpecificTrap, pkt.SpecificTrap)
	require.Len(t, pkt.Variables, 5)
}

func TestTrapSink_ResolveFailure(t *testing.T) {
	sink, err := NewTrapSink(TrapSinkConfig{Target: "127.0.0.1", SourceHost: "oms", Parameters: testParams}, nil,
		WithResolver(func(context.Context, string) (string, error) { return "", errors.New("no such host") }))
	require.NoError(t, err)

	err = sink.Send(context.Background(), trapRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such host")
}

func TestLookupIPv4_Literal(t *testing.T) {
	addr, err := LookupIPv4(context.Background(), "192.0.2.7")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", addr)
}
