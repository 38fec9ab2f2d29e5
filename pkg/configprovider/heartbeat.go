package configprovider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"

	"github.com/yyuuttaaoo/loongcollector/pkg/configprovider/configserverpb"
)

// backoffConfig bounds the retry budget for a single heartbeat or fetch
// call. Transport errors (connection refused, timeout) are retried within
// the call; a non-2xx or malformed response is not, since those indicate
// the server understood and rejected the request.
var backoffConfig = backoff.Config{
	MinBackoff: 100 * time.Millisecond,
	MaxBackoff: time.Second,
	MaxRetries: 3,
}

const (
	contentTypeProtobuf = "application/x-protobuf"
	agentType           = "iLogtail"
)

// heartbeatRequestID mirrors the original provider's
// base64("heartbeat" || unix_seconds()).
func heartbeatRequestID(now time.Time) string {
	return base64.StdEncoding.EncodeToString([]byte("heartbeat" + strconv.FormatInt(now.Unix(), 10)))
}

// fetchRequestID mirrors base64(agent_id || "_" || unix_seconds()).
func fetchRequestID(agentID string, now time.Time) string {
	return base64.StdEncoding.EncodeToString([]byte(agentID + "_" + strconv.FormatInt(now.Unix(), 10)))
}

var (
	localIPOnce sync.Once
	localIPAddr string
)

// localIP returns the outbound IP address of this host, computed once per
// process and cached for its lifetime — the Go analog of the original
// provider's cached LoongCollectorMonitor::mIpAddr. Dialing UDP never puts a
// packet on the wire; it only asks the kernel to pick a route, which is
// enough to read back the local address that route would use. If no route
// exists, it returns "" rather than failing the heartbeat.
func localIP() string {
	localIPOnce.Do(func() {
		conn, err := net.Dial("udp", "8.8.8.8:80")
		if err != nil {
			return
		}
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			localIPAddr = addr.IP.String()
		}
	})
	return localIPAddr
}

// sendHeartbeat POSTs a HeartBeatRequest built from the provider's current
// version map to addr, returning the server's check results. A
// mismatched request id, a non-2xx response, or a transport error is
// treated as a transient failure: the cycle aborts without mutating state
// and the caller is responsible for deciding whether to rotate addresses.
func (p *Provider) sendHeartbeat(ctx context.Context, addr ServerAddress) ([]configserverpb.ConfigCheckResult, error) {
	now := time.Now()
	requestID := heartbeatRequestID(now)

	versions := p.Versions()
	pipelineConfigs := make([]configserverpb.ConfigInfo, 0, len(versions))
	for name, version := range versions {
		pipelineConfigs = append(pipelineConfigs, configserverpb.ConfigInfo{
			Type:    configserverpb.ConfigTypePipeline,
			Name:    name,
			Version: version,
		})
	}

	req := &configserverpb.HeartBeatRequest{
		RequestID:       requestID,
		AgentID:         p.agentID.String(),
		AgentType:       agentType,
		Attributes:      configserverpb.AgentAttributes{Version: buildVersion, IP: localIP()},
		Tags:            p.tags,
		RunningStatus:   "",
		StartupTime:     0,
		Interval:        int32(p.updateInterval / time.Second),
		PipelineConfigs: pipelineConfigs,
	}

	body, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal heartbeat request: %w", err)
	}

	respBody, err := p.postProtobuf(ctx, addr, "/Agent/HeartBeat", body)
	if err != nil {
		return nil, err
	}

	var resp configserverpb.HeartBeatResponse
	if err := resp.Unmarshal(respBody); err != nil {
		return nil, fmt.Errorf("unmarshal heartbeat response: %w", err)
	}
	if resp.RequestID != requestID {
		level.Warn(p.logger).Log("component", "configprovider", "op", "heartbeat", "msg", "request id mismatch, discarding")
		return nil, nil
	}

	level.Debug(p.logger).Log("component", "configprovider", "op", "heartbeat", "msg", "success", "code", resp.Code, "results", len(resp.PipelineCheckResults))
	return resp.PipelineCheckResults, nil
}

// fetchPipelineConfig requests the bodies of every checked config whose
// status is not DELETED.
func (p *Provider) fetchPipelineConfig(ctx context.Context, addr ServerAddress, checkResults []configserverpb.ConfigCheckResult) ([]configserverpb.ConfigDetail, error) {
	now := time.Now()
	requestID := fetchRequestID(p.agentID.String(), now)

	reqConfigs := make([]configserverpb.ConfigInfo, 0, len(checkResults))
	for _, cr := range checkResults {
		if cr.CheckStatus == configserverpb.ConfigStatusDeleted {
			continue
		}
		reqConfigs = append(reqConfigs, configserverpb.ConfigInfo{
			Type:    configserverpb.ConfigTypePipeline,
			Name:    cr.Name,
			Version: cr.NewVersion,
			Context: cr.Context,
		})
	}

	req := &configserverpb.FetchPipelineConfigRequest{
		RequestID:  requestID,
		AgentID:    p.agentID.String(),
		ReqConfigs: reqConfigs,
	}

	body, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal fetch request: %w", err)
	}

	respBody, err := p.postProtobuf(ctx, addr, "/Agent/FetchPipelineConfig", body)
	if err != nil {
		return nil, err
	}

	var resp configserverpb.FetchPipelineConfigResponse
	if err := resp.Unmarshal(respBody); err != nil {
		return nil, fmt.Errorf("unmarshal fetch response: %w", err)
	}
	if resp.RequestID != requestID {
		level.Warn(p.logger).Log("component", "configprovider", "op", "fetch", "msg", "request id mismatch, discarding")
		return nil, nil
	}

	level.Debug(p.logger).Log("component", "configprovider", "op", "fetch", "msg", "success", "code", resp.Code, "details", len(resp.ConfigDetails))
	return resp.ConfigDetails, nil
}

func (p *Provider) postProtobuf(ctx context.Context, addr ServerAddress, path string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("http://%s%s", addr.String(), path)

	bo := backoff.New(ctx, backoffConfig)
	var lastErr error
	for bo.Ongoing() {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", contentTypeProtobuf)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("do request: %w", err)
			bo.Wait()
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("non-2xx response: %s", resp.Status)
		}
		return respBody, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, bo.Err()
}

// buildVersion is a placeholder agent version string; a real binary would
// stamp this at build time the way the teacher's pkg/build package does.
const buildVersion = "dev"
