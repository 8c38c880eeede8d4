package ifood

import (
	"net/url"
	"strings"
)

const ProviderID = "ifood"

const (
	pathUserCode      = "/authentication/v1.0/oauth/userCode"
	pathToken         = "/authentication/v1.0/oauth/token"
	pathMerchants     = "/merchant/v1.0/merchants"
	pathEventsPolling = "/order/v1.0/events:polling"
	pathEventsAck     = "/order/v1.0/events/acknowledgment"
	pathOrders        = "/order/v1.0/orders"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

func joinURL(baseURL string, segments ...string) string {
	out := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if strings.HasPrefix(segment, "/") {
			out += segment
			continue
		}
		out += "/" + url.PathEscape(segment)
	}
	return out
}
