package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

// holderAddressKeys are tried in order on each holder object.
var holderAddressKeys = []string{"proxyWallet", "wallet", "user", "address"}

// leaderboardPnLKeys are tried in order on a leaderboard row.
var leaderboardPnLKeys = []string{
	"pnl", "profit", "PNL", "pnlUsd", "pnl_usd", "pnlAllTime", "pnl_all_time",
	"totalPnl", "totalProfit", "lifetimePnl", "lifetimeProfit", "realizedPnl",
}

// NormalizeAddress returns the lowercase 0x form of s, or "" when s does not
// contain a valid 20-byte hex address.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		m := addressPattern.FindString(s)
		if m == "" {
			return ""
		}
		s = m
	}
	return strings.ToLower(common.HexToAddress(s).Hex())
}

// ExtractHolders pulls wallet addresses out of a /holders payload. The API
// has returned three shapes over time:
//
//	[{"token": "...", "holders": [{"proxyWallet": "0x..."}]}]
//	{"holders": [{"proxyWallet": "0x..."}]}
//	[{"proxyWallet": "0x..."}]
//
// Addresses are deduplicated in first-seen order.
func ExtractHolders(body []byte) ([]string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, nullPayload) {
		return nil, nil
	}

	var objs []map[string]json.RawMessage
	switch body[0] {
	case '[':
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			if nested, ok := item["holders"]; ok {
				var hs []map[string]json.RawMessage
				if err := json.Unmarshal(nested, &hs); err == nil {
					objs = append(objs, hs...)
				}
				continue
			}
			objs = append(objs, item)
		}
	case '{':
		var wrapper struct {
			Holders []map[string]json.RawMessage `json:"holders"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, err
		}
		objs = wrapper.Holders
	default:
		return nil, fmt.Errorf("unexpected holders payload")
	}

	seen := make(map[string]bool, len(objs))
	var out []string
	for _, obj := range objs {
		addr := holderAddress(obj)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

func holderAddress(obj map[string]json.RawMessage) string {
	for _, k := range holderAddressKeys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if addr := NormalizeAddress(s); addr != "" {
			return addr
		}
	}
	return ""
}

// ParseLeaderboardRow extracts the first leaderboard row from a payload that
// is a list, a {"data": [...]} wrapper, or a bare object. It returns nil when
// there is no row or the row has no recognizable PnL field.
func ParseLeaderboardRow(body []byte) *domain.LeaderboardRow {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, nullPayload) {
		return nil
	}

	var row map[string]json.RawMessage
	switch body[0] {
	case '[':
		var rows []map[string]json.RawMessage
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
			return nil
		}
		row = rows[0]
	case '{':
		if err := json.Unmarshal(body, &row); err != nil {
			return nil
		}
		if data, ok := row["data"]; ok {
			var rows []map[string]json.RawMessage
			if err := json.Unmarshal(data, &rows); err != nil || len(rows) == 0 {
				return nil
			}
			row = rows[0]
		}
	default:
		return nil
	}

	pnl, ok := firstNumber(row, leaderboardPnLKeys...)
	if !ok {
		return nil
	}
	out := &domain.LeaderboardRow{PnL: &pnl}
	if vol, ok := firstNumber(row, "vol", "volume"); ok {
		out.Volume = &vol
	}
	for _, k := range []string{"userName", "name", "pseudonym"} {
		var s string
		if raw, ok := row[k]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			out.UserName = s
			break
		}
	}
	return out
}

func firstNumber(row map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := row[k]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), nullPayload) {
			continue
		}
		var f flexFloat
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		// A numeric string that fails to parse decodes as 0; reject it.
		var s string
		if json.Unmarshal(raw, &s) == nil {
			if _, ok := parseNumber(s); !ok {
				continue
			}
		}
		return float64(f), true
	}
	return 0, false
}
