package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// legacyServer is the chat domain used by browser based clients.
const legacyServer = "c.us"

var phoneCleaner = strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizeChatID turns a phone number (optionally already suffixed) into a
// user chat identifier.
func NormalizeChatID(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	if i := strings.IndexByte(p, '@'); i >= 0 {
		server := p[i+1:]
		if server != legacyServer && server != types.DefaultUserServer {
			return "", fmt.Errorf("unsupported chat domain %q", server)
		}
		p = p[:i]
	}

	p = phoneCleaner.Replace(p)
	if len(p) < 7 || len(p) > 15 {
		return "", fmt.Errorf("phone %q must have 7 to 15 digits", phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone %q contains non-digit characters", phone)
		}
	}

	return p + "@" + types.DefaultUserServer, nil
}
