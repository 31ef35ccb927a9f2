package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDuration_MarshalJSON(t *testing.T) {
	d := Duration{Duration: 10 * time.Second}
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `"10s"`
	if string(b) != want {
		t.Errorf("MarshalJSON() = %s, want %s", b, want)
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{`"10s"`, 10 * time.Second, false},
		{`"500ms"`, 500 * time.Millisecond, false},
		{`"1m"`, time.Minute, false},
		{`"not-a-duration"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalJSON(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.Duration != tt.want {
				t.Errorf("UnmarshalJSON(%s) = %s, want %s", tt.input, d.Duration, tt.want)
			}
		})
	}
}

func TestExecuteRequest_UseCacheDefault(t *testing.T) {
	var req ExecuteRequest
	if err := json.Unmarshal([]byte(`{"code":"print(1)"}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.UseCache != nil {
		t.Error("UseCache should be nil when omitted (defaulting happens in the handler)")
	}

	if err := json.Unmarshal([]byte(`{"code":"print(1)","use_cache":false}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.UseCache == nil || *req.UseCache {
		t.Error("UseCache = true, want explicit false")
	}
}
