package configserverpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal serializes one of this package's messages into its protobuf wire
// representation. Each message hand-rolls its own field encoding in field
// order, the way protoc-gen-gogofaster generates Marshal/MarshalTo methods
// without going through the reflection-based encoder.
func Marshal(m interface{}) ([]byte, error) {
	switch v := m.(type) {
	case *HeartBeatRequest:
		return v.Marshal()
	case *HeartBeatResponse:
		return v.Marshal()
	case *FetchPipelineConfigRequest:
		return v.Marshal()
	case *FetchPipelineConfigResponse:
		return v.Marshal()
	default:
		return nil, fmt.Errorf("configserverpb: unsupported message type %T", m)
	}
}

func appendConfigInfo(b []byte, field int, c ConfigInfo) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(c.Type))
	inner = protowire.AppendTag(inner, 2, protowire.BytesType)
	inner = protowire.AppendString(inner, c.Name)
	inner = protowire.AppendTag(inner, 3, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(c.Version))
	if len(c.Context) > 0 {
		inner = protowire.AppendTag(inner, 4, protowire.BytesType)
		inner = protowire.AppendBytes(inner, c.Context)
	}
	b = protowire.AppendTag(b, protowire.Number(field), protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

func (a AgentAttributes) marshalInto(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, a.Version)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, a.IP)
	return b
}

// Marshal encodes a HeartBeatRequest.
func (r *HeartBeatRequest) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.RequestID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, r.AgentID)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, r.AgentType)

	var attrs []byte
	attrs = r.Attributes.marshalInto(attrs)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, attrs)

	for _, t := range r.Tags {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, t)
	}

	b = protowire.AppendTag(b, 6, protowire.BytesType)
	b = protowire.AppendString(b, r.RunningStatus)
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.StartupTime))
	b = protowire.AppendTag(b, 8, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Interval))

	for _, c := range r.PipelineConfigs {
		b = appendConfigInfo(b, 9, c)
	}
	return b, nil
}

func appendCheckResult(b []byte, field int, c ConfigCheckResult) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.BytesType)
	inner = protowire.AppendString(inner, c.Name)
	inner = protowire.AppendTag(inner, 2, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(c.NewVersion))
	inner = protowire.AppendTag(inner, 3, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(c.CheckStatus))
	if len(c.Context) > 0 {
		inner = protowire.AppendTag(inner, 4, protowire.BytesType)
		inner = protowire.AppendBytes(inner, c.Context)
	}
	b = protowire.AppendTag(b, protowire.Number(field), protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

// Marshal encodes a HeartBeatResponse.
func (r *HeartBeatResponse) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.RequestID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Code))
	for _, c := range r.PipelineCheckResults {
		b = appendCheckResult(b, 3, c)
	}
	return b, nil
}

// Marshal encodes a FetchPipelineConfigRequest.
func (r *FetchPipelineConfigRequest) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.RequestID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, r.AgentID)
	for _, c := range r.ReqConfigs {
		b = appendConfigInfo(b, 3, c)
	}
	return b, nil
}

func appendConfigDetail(b []byte, field int, d ConfigDetail) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.BytesType)
	inner = protowire.AppendString(inner, d.Name)
	inner = protowire.AppendTag(inner, 2, protowire.BytesType)
	inner = protowire.AppendBytes(inner, d.Detail)
	b = protowire.AppendTag(b, protowire.Number(field), protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

// Marshal encodes a FetchPipelineConfigResponse.
func (r *FetchPipelineConfigResponse) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, r.RequestID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Code))
	for _, d := range r.ConfigDetails {
		b = appendConfigDetail(b, 3, d)
	}
	return b, nil
}

// Unmarshal decodes bytes into a HeartBeatResponse, ignoring unknown fields.
func (r *HeartBeatResponse) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return err
			}
			r.RequestID = s
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Code = int32(v)
			data = data[n:]
		case 3:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			cr, err := unmarshalCheckResult(b)
			if err != nil {
				return err
			}
			r.PipelineCheckResults = append(r.PipelineCheckResults, cr)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalCheckResult(data []byte) (ConfigCheckResult, error) {
	var c ConfigCheckResult
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return c, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return c, err
			}
			c.Name = s
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return c, protowire.ParseError(n)
			}
			c.NewVersion = int64(v)
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return c, protowire.ParseError(n)
			}
			c.CheckStatus = ConfigCheckStatus(v)
			data = data[n:]
		case 4:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return c, protowire.ParseError(n)
			}
			c.Context = append([]byte(nil), b...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return c, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return c, nil
}

// Unmarshal decodes bytes into a FetchPipelineConfigResponse, ignoring
// unknown fields.
func (r *FetchPipelineConfigResponse) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return err
			}
			r.RequestID = s
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Code = int32(v)
			data = data[n:]
		case 3:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			d, err := unmarshalConfigDetail(b)
			if err != nil {
				return err
			}
			r.ConfigDetails = append(r.ConfigDetails, d)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalConfigDetail(data []byte) (ConfigDetail, error) {
	var d ConfigDetail
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return d, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return d, err
			}
			d.Name = s
			data = data[n:]
		case 2:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			d.Detail = append([]byte(nil), b...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return d, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return d, nil
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	b, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return string(b), n, nil
}
