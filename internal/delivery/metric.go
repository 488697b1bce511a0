package delivery

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"

	"trapforwarder/internal/config"
	"trapforwarder/internal/types"
)

// Zabbix sender protocol framing.
const (
	zbxMagic          = "ZBXD"
	zbxFlagProtocol   = 0x01
	zbxFlagCompressed = 0x02
	zbxHeaderLen      = 13
	zbxMaxResponse    = 1 << 20

	// MetricKey is the trapper item key every record is sent under.
	MetricKey = "data"
)

// MetricSinkConfig configures a MetricSink.
type MetricSinkConfig struct {
	Host     string
	Port     int
	Timeout  time.Duration
	Compress bool

	// Parameters are the payload fields copied into the metric value.
	Parameters []string
}

// MetricSinkConfigFrom assembles the sink settings from the mapping file and
// process configuration.
func MetricSinkConfigFrom(m *config.Mapping, c config.ZabbixConfig) MetricSinkConfig {
	return MetricSinkConfig{
		Host:       m.Zabbix.Host,
		Port:       m.MetricPort(),
		Timeout:    c.Timeout,
		Compress:   c.Compress,
		Parameters: m.TrapParameters,
	}
}

// MetricSink pushes one trapper item per record to a Zabbix server.
type MetricSink struct {
	cfg    MetricSinkConfig
	dialer net.Dialer
	logger types.Logger
}

// NewMetricSink creates a MetricSink.
func NewMetricSink(cfg MetricSinkConfig, logger types.Logger) *MetricSink {
	if cfg.Port == 0 {
		cfg.Port = config.DefaultSenderPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &MetricSink{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type senderItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type senderRequest struct {
	Request string       `json:"request"`
	Data    []senderItem `json:"data"`
}

// SenderResponse is the server's reply to a sender data request.
type SenderResponse struct {
	Response  string `json:"response"`
	Info      string `json:"info"`
	Processed int    `json:"-"`
	Failed    int    `json:"-"`
}

var senderInfoPattern = regexp.MustCompile(`processed: (\d+); failed: (\d+)`)

// Send delivers the metric for rec. A reply reporting failed items is an
// error.
func (s *MetricSink) Send(ctx context.Context, rec types.NotificationRecord) error {
	value, err := BuildMetricValue(rec, s.cfg.Parameters)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(senderRequest{
		Request: "sender data",
		Data:    []senderItem{{Host: rec.HostName(), Key: MetricKey, Value: value}},
	})
	if err != nil {
		return fmt.Errorf("marshal sender request: %w", err)
	}

	resp, err := s.exchange(ctx, payload)
	if err != nil {
		return err
	}
	if resp.Response != "success" || resp.Failed > 0 {
		return fmt.Errorf("zabbix rejected metric: %s %s", resp.Response, resp.Info)
	}

	s.logger.Info("metric sent",
		"zabbix_host", s.cfg.Host,
		"item_host", rec.HostName(),
		"processed", resp.Processed,
	)
	return nil
}

func (s *MetricSink) exchange(ctx context.Context, payload []byte) (*SenderResponse, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial zabbix %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	frame, err := encodeFrame(payload, s.cfg.Compress)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write to zabbix %s: %w", addr, err)
	}

	body, err := decodeFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read from zabbix %s: %w", addr, err)
	}

	var resp SenderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode zabbix response: %w", err)
	}
	if m := senderInfoPattern.FindStringSubmatch(resp.Info); m != nil {
		resp.Processed, _ = strconv.Atoi(m[1])
		resp.Failed, _ = strconv.Atoi(m[2])
	}
	return &resp, nil
}

// encodeFrame prefixes data with the ZBXD header. Compressed frames carry
// the compressed length followed by the original length.
func encodeFrame(data []byte, compress bool) ([]byte, error) {
	flags := byte(zbxFlagProtocol)
	body := data
	reserved := uint32(0)

	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("compress sender request: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress sender request: %w", err)
		}
		flags |= zbxFlagCompressed
		body = buf.Bytes()
		reserved = uint32(len(data))
	}

	frame := make([]byte, zbxHeaderLen, zbxHeaderLen+len(body))
	copy(frame, zbxMagic)
	frame[4] = flags
	binary.LittleEndian.PutUint32(frame[5:9], uint32(len(body)))
	binary.LittleEndian.PutUint32(frame[9:13], reserved)
	return append(frame, body...), nil
}

// decodeFrame reads one framed message from r.
func decodeFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, zbxHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[:4]) != zbxMagic {
		return nil, fmt.Errorf("bad header %q", header[:4])
	}

	size := binary.LittleEndian.Uint32(header[5:9])
	if size > zbxMaxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if header[4]&zbxFlagCompressed == 0 {
		return body, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, zbxMaxResponse))
}

// MetricName strips the MIB prefix and the "Event" token from a field name,
// so oraEMNGEventSeverity becomes Severity.
func MetricName(field string) string {
	return strings.ReplaceAll(strings.ReplaceAll(field, "oraEMNG", ""), "Event", "")
}

// BuildMetricValue renders the payload fields present in rec as a JSON object
// with sorted keys and a three space indent.
func BuildMetricValue(rec types.NotificationRecord, params []string) (string, error) {
	values := make(map[string]string, len(params))
	for _, name := range params {
		if rec.HasField(name) {
			values[MetricName(name)] = rec.Field(name)
		}
	}
	out, err := json.MarshalIndent(values, "", "   ")
	if err != nil {
		return "", fmt.Errorf("marshal metric value: %w", err)
	}
	return string(out), nil
}
