package discovery_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/orgdesk/realtime-go/pkg/discovery"
)

func TestEncodeDecodeTXT(t *testing.T) {
	info := &discovery.HubInfo{
		Name:    "Office Hub",
		HubID:   "01J9Z3K6D7",
		Port:    4100,
		Path:    "/ws",
		Version: 2,
		TLS:     true,
	}

	txt := discovery.EncodeTXT(info)
	if txt[discovery.TXTKeyHubID] != "01J9Z3K6D7" {
		t.Errorf("id = %q", txt[discovery.TXTKeyHubID])
	}

	decoded, err := discovery.DecodeTXT(txt)
	if err != nil {
		t.Fatalf("DecodeTXT: %v", err)
	}
	if decoded.HubID != info.HubID || decoded.Path != info.Path || decoded.Version != info.Version || !decoded.TLS {
		t.Errorf("decoded = %+v, want id/path/version of %+v", decoded, info)
	}
	if decoded.Name != "" || decoded.Port != 0 {
		t.Errorf("Name and Port are not part of the TXT record: %+v", decoded)
	}
}

func TestEncodeTXTDefaults(t *testing.T) {
	txt := discovery.EncodeTXT(&discovery.HubInfo{HubID: "hub-1"})

	if txt[discovery.TXTKeyVersion] != "1" {
		t.Errorf("v = %q, want 1", txt[discovery.TXTKeyVersion])
	}
	if txt[discovery.TXTKeyPath] != discovery.DefaultPath {
		t.Errorf("path = %q, want %q", txt[discovery.TXTKeyPath], discovery.DefaultPath)
	}
	if _, ok := txt[discovery.TXTKeyTLS]; ok {
		t.Error("tls key set for a plain hub")
	}
}

func TestDecodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  discovery.TXTRecordMap
		want error
	}{
		{"missing id", discovery.TXTRecordMap{"v": "1"}, discovery.ErrMissingRequired},
		{"empty id", discovery.TXTRecordMap{"id": "", "v": "1"}, discovery.ErrMissingRequired},
		{"missing version", discovery.TXTRecordMap{"id": "hub"}, discovery.ErrMissingRequired},
		{"bad version", discovery.TXTRecordMap{"id": "hub", "v": "x"}, discovery.ErrInvalidTXTRecord},
		{"zero version", discovery.TXTRecordMap{"id": "hub", "v": "0"}, discovery.ErrInvalidTXTRecord},
		{"relative path", discovery.TXTRecordMap{"id": "hub", "v": "1", "path": "ws"}, discovery.ErrInvalidTXTRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := discovery.DecodeTXT(tt.txt)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeTXTDefaultPath(t *testing.T) {
	info, err := discovery.DecodeTXT(discovery.TXTRecordMap{"id": "hub", "v": "1"})
	if err != nil {
		t.Fatalf("DecodeTXT: %v", err)
	}
	if info.Path != discovery.DefaultPath {
		t.Errorf("Path = %q, want %q", info.Path, discovery.DefaultPath)
	}
}

func TestTXTRecordStrings(t *testing.T) {
	strs := discovery.TXTRecordsToStrings(discovery.TXTRecordMap{"v": "1", "id": "hub", "path": "/a=b"})
	want := []string{"id=hub", "path=/a=b", "v=1"}
	if strings.Join(strs, ",") != strings.Join(want, ",") {
		t.Errorf("strings = %v, want %v", strs, want)
	}

	txt := discovery.StringsToTXTRecords(append(strs, "flag", ""))
	if txt["path"] != "/a=b" {
		t.Errorf("path = %q, want /a=b", txt["path"])
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v; want empty, true", v, ok)
	}
	if len(txt) != 4 {
		t.Errorf("len = %d, want 4", len(txt))
	}
}

func TestValidateInstanceName(t *testing.T) {
	if err := discovery.ValidateInstanceName("Office Hub"); err != nil {
		t.Errorf("valid name: %v", err)
	}
	if err := discovery.ValidateInstanceName(""); !errors.Is(err, discovery.ErrInvalidInstanceName) {
		t.Errorf("empty name: %v", err)
	}
	if err := discovery.ValidateInstanceName(strings.Repeat("x", 64)); !errors.Is(err, discovery.ErrInvalidInstanceName) {
		t.Errorf("long name: %v", err)
	}
}

func TestHubServiceURL(t *testing.T) {
	tests := []struct {
		name string
		svc  discovery.HubService
		want string
	}{
		{
			name: "ipv4",
			svc: discovery.HubService{
				HubInfo:   discovery.HubInfo{Port: 4000, Path: "/v1/socket"},
				Addresses: []string{"192.168.1.10", "fe80::1"},
			},
			want: "ws://192.168.1.10:4000/v1/socket",
		},
		{
			name: "ipv6",
			svc: discovery.HubService{
				HubInfo:   discovery.HubInfo{Port: 4000},
				Addresses: []string{"fe80::1"},
			},
			want: "ws://[fe80::1]:4000/v1/socket",
		},
		{
			name: "tls",
			svc: discovery.HubService{
				HubInfo:   discovery.HubInfo{Port: 4443, TLS: true},
				Addresses: []string{"10.0.0.7"},
			},
			want: "wss://10.0.0.7:4443/v1/socket",
		},
		{
			name: "no address",
			svc:  discovery.HubService{HubInfo: discovery.HubInfo{Port: 4000}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.svc.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}
