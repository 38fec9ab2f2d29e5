// Package configserverpb holds the protobuf wire types exchanged with the
// remote configuration server: HeartBeat and FetchPipelineConfig request
// and response messages. The message set mirrors the configserver.proto
// schema the original agent generates via protoc-gen-gogo; this package
// hand-maintains the equivalent Go structs and (de)serialization so the
// rest of the module can depend on github.com/golang/protobuf/proto without
// requiring a protoc toolchain step.
package configserverpb

import "github.com/golang/protobuf/proto"

// ConfigType enumerates the kind of configuration an Agent/Server exchange
// refers to. The core only ever uses PIPELINE_CONFIG; the other values
// exist in the real wire schema for agent and instance configs.
type ConfigType int32

const (
	ConfigTypeAgent    ConfigType = 0
	ConfigTypePipeline ConfigType = 1
	ConfigTypeInstance ConfigType = 2
)

// ConfigCheckStatus enumerates how a named config compares against the
// version the agent last reported.
type ConfigCheckStatus int32

const (
	ConfigStatusUnchanged ConfigCheckStatus = 0
	ConfigStatusNew       ConfigCheckStatus = 1
	ConfigStatusModified  ConfigCheckStatus = 2
	ConfigStatusDeleted   ConfigCheckStatus = 3
)

// ConfigInfo identifies one named configuration and the version the agent
// currently holds (or, in a ConfigDetail request, the version being
// requested).
type ConfigInfo struct {
	Type    ConfigType `protobuf:"varint,1,opt,name=type"`
	Name    string     `protobuf:"bytes,2,opt,name=name"`
	Version int64      `protobuf:"varint,3,opt,name=version"`
	Context []byte     `protobuf:"bytes,4,opt,name=context"`
}

// AgentAttributes carries the agent's version and network identity.
type AgentAttributes struct {
	Version string `protobuf:"bytes,1,opt,name=version"`
	IP      string `protobuf:"bytes,2,opt,name=ip"`
}

// HeartBeatRequest is POSTed to /Agent/HeartBeat.
type HeartBeatRequest struct {
	RequestID       string            `protobuf:"bytes,1,opt,name=request_id"`
	AgentID         string            `protobuf:"bytes,2,opt,name=agent_id"`
	AgentType       string            `protobuf:"bytes,3,opt,name=agent_type"`
	Attributes      AgentAttributes   `protobuf:"bytes,4,opt,name=attributes"`
	Tags            []string          `protobuf:"bytes,5,rep,name=tags"`
	RunningStatus   string            `protobuf:"bytes,6,opt,name=running_status"`
	StartupTime     int64             `protobuf:"varint,7,opt,name=startup_time"`
	Interval        int32             `protobuf:"varint,8,opt,name=interval"`
	PipelineConfigs []ConfigInfo      `protobuf:"bytes,9,rep,name=pipeline_configs"`
}

// ConfigCheckResult reports, for one named config, how the server's
// declared state compares to the version the agent reported.
type ConfigCheckResult struct {
	Name        string            `protobuf:"bytes,1,opt,name=name"`
	NewVersion  int64             `protobuf:"varint,2,opt,name=new_version"`
	CheckStatus ConfigCheckStatus `protobuf:"varint,3,opt,name=check_status"`
	Context     []byte            `protobuf:"bytes,4,opt,name=context"`
}

// HeartBeatResponse is the server's reply to a HeartBeatRequest.
type HeartBeatResponse struct {
	RequestID           string              `protobuf:"bytes,1,opt,name=request_id"`
	Code                int32               `protobuf:"varint,2,opt,name=code"`
	PipelineCheckResults []ConfigCheckResult `protobuf:"bytes,3,rep,name=pipeline_check_results"`
}

// FetchPipelineConfigRequest is POSTed to /Agent/FetchPipelineConfig.
type FetchPipelineConfigRequest struct {
	RequestID  string       `protobuf:"bytes,1,opt,name=request_id"`
	AgentID    string       `protobuf:"bytes,2,opt,name=agent_id"`
	ReqConfigs []ConfigInfo `protobuf:"bytes,3,rep,name=req_configs"`
}

// ConfigDetail is the raw body of one named configuration.
type ConfigDetail struct {
	Name   string `protobuf:"bytes,1,opt,name=name"`
	Detail []byte `protobuf:"bytes,2,opt,name=detail"`
}

// FetchPipelineConfigResponse is the server's reply to a
// FetchPipelineConfigRequest.
type FetchPipelineConfigResponse struct {
	RequestID     string         `protobuf:"bytes,1,opt,name=request_id"`
	Code          int32          `protobuf:"varint,2,opt,name=code"`
	ConfigDetails []ConfigDetail `protobuf:"bytes,3,rep,name=config_details"`
}

var (
	_ proto.Message = (*HeartBeatRequest)(nil)
	_ proto.Message = (*HeartBeatResponse)(nil)
	_ proto.Message = (*FetchPipelineConfigRequest)(nil)
	_ proto.Message = (*FetchPipelineConfigResponse)(nil)
)

func (*HeartBeatRequest) Reset()         {}
func (m *HeartBeatRequest) String() string { return protoString(m) }
func (*HeartBeatRequest) ProtoMessage()  {}

func (*HeartBeatResponse) Reset()         {}
func (m *HeartBeatResponse) String() string { return protoString(m) }
func (*HeartBeatResponse) ProtoMessage()  {}

func (*FetchPipelineConfigRequest) Reset()         {}
func (m *FetchPipelineConfigRequest) String() string { return protoString(m) }
func (*FetchPipelineConfigRequest) ProtoMessage()  {}

func (*FetchPipelineConfigResponse) Reset()         {}
func (m *FetchPipelineConfigResponse) String() string { return protoString(m) }
func (*FetchPipelineConfigResponse) ProtoMessage()  {}

func protoString(m proto.Message) string {
	b, err := Marshal(m)
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}
