package configserverpb

import (
	"reflect"
	"testing"
)

func TestHeartBeatResponse_RoundTrip(t *testing.T) {
	want := HeartBeatResponse{
		RequestID: "req-1",
		Code:      0,
		PipelineCheckResults: []ConfigCheckResult{
			{Name: "a", NewVersion: 3, CheckStatus: ConfigStatusNew},
			{Name: "b", NewVersion: 0, CheckStatus: ConfigStatusDeleted},
		},
	}

	b, err := want.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got HeartBeatResponse
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.RequestID != want.RequestID || got.Code != want.Code {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(got.PipelineCheckResults) != len(want.PipelineCheckResults) {
		t.Fatalf("got %d check results, want %d", len(got.PipelineCheckResults), len(want.PipelineCheckResults))
	}
	for i := range want.PipelineCheckResults {
		if !reflect.DeepEqual(got.PipelineCheckResults[i], want.PipelineCheckResults[i]) {
			t.Fatalf("check result %d: got %+v, want %+v", i, got.PipelineCheckResults[i], want.PipelineCheckResults[i])
		}
	}
}

func TestFetchPipelineConfigResponse_RoundTrip(t *testing.T) {
	want := FetchPipelineConfigResponse{
		RequestID: "req-2",
		Code:      0,
		ConfigDetails: []ConfigDetail{
			{Name: "a", Detail: []byte("pipeline body a")},
			{Name: "b", Detail: []byte("pipeline body b")},
		},
	}

	b, err := want.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got FetchPipelineConfigResponse
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.RequestID != want.RequestID {
		t.Fatalf("request id = %q, want %q", got.RequestID, want.RequestID)
	}
	if len(got.ConfigDetails) != len(want.ConfigDetails) {
		t.Fatalf("got %d config details, want %d", len(got.ConfigDetails), len(want.ConfigDetails))
	}
	for i := range want.ConfigDetails {
		if got.ConfigDetails[i].Name != want.ConfigDetails[i].Name ||
			string(got.ConfigDetails[i].Detail) != string(want.ConfigDetails[i].Detail) {
			t.Fatalf("config detail %d: got %+v, want %+v", i, got.ConfigDetails[i], want.ConfigDetails[i])
		}
	}
}

func TestHeartBeatRequest_MarshalProducesNonEmptyBytes(t *testing.T) {
	req := &HeartBeatRequest{
		RequestID: "req-3",
		AgentID:   "agent-1",
		AgentType: "iLogtail",
		Tags:      []string{"env:prod"},
		Interval:  10,
	}
	b, err := Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("expected non-empty wire bytes")
	}
}

func TestMarshal_UnsupportedTypeRejected(t *testing.T) {
	if _, err := Marshal(struct{}{}); err == nil {
		t.Fatalf("expected error for unsupported message type")
	}
}
