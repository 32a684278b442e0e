package events

import (
	"strconv"
	"strings"
)

// Invite is a parsed /start payload
type Invite struct {
	ReferrerID     *int64 // numeric or ref_<id> token
	CampaignNumber int    // camp_<N> token, 0 when absent
}

// ParseInviteToken reads the deep-link payload. Unknown shapes yield a zero Invite.
func ParseInviteToken(token string) Invite {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return Invite{}
	case strings.HasPrefix(token, "camp_"):
		if n, ok := positive(strings.TrimPrefix(token, "camp_")); ok && n <= int64(^uint32(0)>>1) {
			return Invite{CampaignNumber: int(n)}
		}
	case strings.HasPrefix(token, "ref_"):
		if id, ok := positive(strings.TrimPrefix(token, "ref_")); ok {
			return Invite{ReferrerID: &id}
		}
	default:
		if id, ok := positive(token); ok {
			return Invite{ReferrerID: &id}
		}
	}
	return Invite{}
}

// ParseCampaignCode accepts "7" or "camp_7"
func ParseCampaignCode(code string) (int, bool) {
	code = strings.TrimPrefix(strings.TrimSpace(code), "camp_")
	n, ok := positive(code)
	if !ok || n > int64(^uint32(0)>>1) {
		return 0, false
	}
	return int(n), true
}

func positive(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
