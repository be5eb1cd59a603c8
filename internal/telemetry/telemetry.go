// ABOUTME: Domain telemetry objects produced by instrumentation code
// ABOUTME: Converter maps them onto wire messages for the sender

package telemetry

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-transport/internal/wire"
)

// ErrNoMapping is wrapped by Converter for payload types it does not know.
var ErrNoMapping = errors.New("no wire mapping")

// ServiceType identifies the kind of application an agent instruments.
type ServiceType int32

const (
	ServiceUnknown ServiceType = 0
	ServiceGo      ServiceType = 1800
)

// AgentInfo describes the agent process.
type AgentInfo struct {
	Hostname     string
	IP           string
	Ports        []int
	ServiceType  ServiceType
	PID          int
	AgentVersion string
	RuntimeVer   string
	StartTime    time.Time
	Container    bool
	Properties   map[string]string
}

// APIMetadata is one entry of the API dictionary.
type APIMetadata struct {
	ID   int32
	Info string
	Line int32
	Type int32
}

// SQLMetadata is one entry of the normalized SQL dictionary.
type SQLMetadata struct {
	ID  int32
	SQL string
}

// StringMetadata is one entry of the string dictionary.
type StringMetadata struct {
	ID    int32
	Value string
}

// CollectAgentInfo describes the current process.
func CollectAgentInfo(agentVersion string, start time.Time, props map[string]string) AgentInfo {
	host, _ := os.Hostname()
	return AgentInfo{
		Hostname:     host,
		IP:           firstIPv4(),
		ServiceType:  ServiceGo,
		PID:          os.Getpid(),
		AgentVersion: agentVersion,
		RuntimeVer:   runtime.Version(),
		StartTime:    start,
		Container:    inContainer(),
		Properties:   props,
	}
}

func firstIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if v4 := ipnet.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}

func inContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// Converter maps domain objects onto wire messages. It implements
// sender.MessageConverter.
type Converter struct{}

// ToWire converts payload. Values and pointers are both accepted.
func (Converter) ToWire(payload any) (wire.Message, error) {
	switch p := payload.(type) {
	case AgentInfo:
		return agentInfoToWire(&p), nil
	case *AgentInfo:
		return agentInfoToWire(p), nil
	case APIMetadata:
		return apiToWire(&p), nil
	case *APIMetadata:
		return apiToWire(p), nil
	case SQLMetadata:
		return &wire.SQLMetaData{SQLID: p.ID, SQL: p.SQL}, nil
	case *SQLMetadata:
		return &wire.SQLMetaData{SQLID: p.ID, SQL: p.SQL}, nil
	case StringMetadata:
		return &wire.StringMetaData{StringID: p.ID, StringValue: p.Value}, nil
	case *StringMetadata:
		return &wire.StringMetaData{StringID: p.ID, StringValue: p.Value}, nil
	default:
		return nil, fmt.Errorf("%w for %T", ErrNoMapping, payload)
	}
}

func agentInfoToWire(a *AgentInfo) *wire.AgentInfo {
	ports := make([]string, len(a.Ports))
	for i, p := range a.Ports {
		ports[i] = strconv.Itoa(p)
	}
	var start int64
	if !a.StartTime.IsZero() {
		start = a.StartTime.UnixMilli()
	}
	return &wire.AgentInfo{
		Hostname:     a.Hostname,
		IP:           a.IP,
		Ports:        strings.Join(ports, " "),
		ServiceType:  int32(a.ServiceType),
		PID:          int32(a.PID),
		AgentVersion: a.AgentVersion,
		VMVersion:    a.RuntimeVer,
		StartTime:    start,
		Container:    a.Container,
		Properties:   a.Properties,
	}
}

func apiToWire(m *APIMetadata) *wire.APIMetaData {
	return &wire.APIMetaData{APIID: m.ID, APIInfo: m.Info, Line: m.Line, Type: m.Type}
}
