package rtctoken

import (
	"encoding/json"
	"fmt"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
)

// roomPayload is the payload for room-based token04 tokens. See ZEGOCLOUD token04 docs.
type roomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// Zego issues ZEGOCLOUD token04 room tokens.
type Zego struct {
	appID        uint32
	serverSecret string
}

// NewZego creates a token04 provider. serverSecret must be 32 characters.
func NewZego(appID uint32, serverSecret string) *Zego {
	return &Zego{appID: appID, serverSecret: serverSecret}
}

// Issue generates a token04 token for subject in channel (the live stream id).
// Publishers may push a stream; subscribers may only log in and pull.
func (z *Zego) Issue(channel, subject string, role Role, ttlSeconds int64) (string, error) {
	if z.appID == 0 || z.serverSecret == "" {
		return "", ErrConfig
	}
	if len(z.serverSecret) != 32 {
		return "", fmt.Errorf("%w: zego server secret must be 32 characters", ErrConfig)
	}
	privilege := map[int]int{
		token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
		token04.PrivilegeKeyPublish: token04.PrivilegeDisable,
	}
	if role == RolePublisher {
		privilege[token04.PrivilegeKeyPublish] = token04.PrivilegeEnable
	}
	payload, err := json.Marshal(roomPayload{RoomID: channel, Privilege: privilege})
	if err != nil {
		return "", fmt.Errorf("rtctoken: marshal zego payload: %w", err)
	}
	return token04.GenerateToken04(z.appID, subject, z.serverSecret, ttlSeconds, string(payload))
}
