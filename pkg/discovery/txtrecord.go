package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records of a hub.
func EncodeTXT(info *HubInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyHubID] = info.HubID

	version := info.Version
	if version == 0 {
		version = ProtocolVersion
	}
	txt[TXTKeyVersion] = strconv.Itoa(version)

	path := info.Path
	if path == "" {
		path = DefaultPath
	}
	txt[TXTKeyPath] = path

	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}

	return txt
}

// DecodeTXT parses the TXT records of a hub. Name and Port are not part of
// the TXT record and are left zero.
func DecodeTXT(txt TXTRecordMap) (*HubInfo, error) {
	info := &HubInfo{}

	var ok bool
	info.HubID, ok = txt[TXTKeyHubID]
	if !ok || info.HubID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHubID)
	}

	vStr, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	v, err := strconv.Atoi(vStr)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidTXTRecord, vStr)
	}
	info.Version = v

	info.Path = txt[TXTKeyPath]
	if info.Path == "" {
		info.Path = DefaultPath
	}
	if !strings.HasPrefix(info.Path, "/") {
		return nil, fmt.Errorf("%w: path %q", ErrInvalidTXTRecord, info.Path)
	}

	info.TLS = txt[TXTKeyTLS] == "1"

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings,
// the format mDNS libraries use.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidInstanceName, MaxInstanceNameLen)
	}
	return nil
}
