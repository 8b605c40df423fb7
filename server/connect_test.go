package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
)

func newTestConnect(t *testing.T) *ConnectClient {
	t.Helper()
	tc, _ := newTestToolchain(t)
	path, handler := NewConnectHandler(tc)
	if path != "/sahl.v1.ToolchainService/" {
		t.Fatalf("path = %q", path)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewConnectClient(ts.Client(), ts.URL+"/")
}

func TestConnectCompile(t *testing.T) {
	client := newTestConnect(t)

	resp, err := client.Compile(bg(), &CompileRequest{Name: "fact.sahl", Source: factSource})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if !strings.Contains(resp.Disassembly, "Call") {
		t.Errorf("disassembly = \n%s\nwant a Call instruction", resp.Disassembly)
	}
	if len(resp.Program) == 0 {
		t.Error("no encoded program in response")
	}
}

func TestConnectRun(t *testing.T) {
	client := newTestConnect(t)

	resp, err := client.Run(bg(), &RunRequest{Name: "fact.sahl", Source: factSource})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Output != "120\n" {
		t.Errorf("output = %q, want %q", resp.Output, "120\n")
	}
	if resp.RunID == "" {
		t.Error("run id missing")
	}
}

func TestConnectRunRuntimeError(t *testing.T) {
	client := newTestConnect(t)

	resp, err := client.Run(bg(), &RunRequest{Name: "div.sahl", Source: divideSource})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Error == nil || resp.Error.Kind != "division by zero" {
		t.Errorf("error = %+v, want division by zero", resp.Error)
	}
}

func TestConnectErrorCodes(t *testing.T) {
	client := newTestConnect(t)

	tests := []struct {
		name string
		call func() error
		want connect.Code
	}{
		{"compile error", func() error {
			_, err := client.Compile(bg(), &CompileRequest{Name: "a.sahl", Source: "fun main() { ghost(); }"})
			return err
		}, connect.CodeInvalidArgument},
		{"empty source", func() error {
			_, err := client.Run(bg(), &RunRequest{Name: "a.sahl"})
			return err
		}, connect.CodeInvalidArgument},
		{"timeout", func() error {
			_, err := client.Run(bg(), &RunRequest{Name: "spin.sahl", Source: spinSource, TimeoutMs: 50})
			return err
		}, connect.CodeAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := connect.CodeOf(err); got != tt.want {
				t.Errorf("code = %v, want %v (err: %v)", got, tt.want, err)
			}
		})
	}
}
