package payment

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	gatewaytypes "github.com/frahmantamala/receptionist-billing/internal/core/datamodel/paymentgateway"
)

const topicPayment = "payment"

// Notification is an inbound gateway push. Only GatewayPaymentID is trusted,
// and only as a key for the authoritative lookup.
type Notification struct {
	Topic            string
	Action           string
	GatewayPaymentID string
	Payload          []byte
}

// IsPayment reports whether the delivery concerns a payment. Topic and action
// are advisory; a bare data.id with neither is treated as a payment.
func (n Notification) IsPayment() bool {
	if n.Topic == "" && n.Action == "" {
		return n.GatewayPaymentID != ""
	}
	return n.Topic == topicPayment || strings.HasPrefix(n.Action, topicPayment+".")
}

type notificationBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID gatewaytypes.ID `json:"id"`
	} `json:"data"`
	Resource string `json:"resource"`
}

// ParseNotification reads a webhook delivery. The JSON body wins; query
// parameters (topic/id or type/data.id) fill in whatever the body lacks. A body
// that is not JSON yields an empty notification rather than an error so the
// caller can acknowledge it.
func ParseNotification(body []byte, query url.Values) Notification {
	n := Notification{Payload: normalizePayload(body)}

	var parsed notificationBody
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &parsed) == nil {
		n.Topic = firstNonEmpty(parsed.Type, parsed.Topic)
		n.Action = parsed.Action
		n.GatewayPaymentID = strings.TrimSpace(string(parsed.Data.ID))
		if n.GatewayPaymentID == "" && n.Topic == topicPayment {
			n.GatewayPaymentID = lastPathSegment(parsed.Resource)
		}
	}

	if query != nil {
		if n.Topic == "" {
			n.Topic = firstNonEmpty(query.Get("type"), query.Get("topic"))
		}
		if n.GatewayPaymentID == "" {
			n.GatewayPaymentID = strings.TrimSpace(firstNonEmpty(query.Get("data.id"), query.Get("id")))
		}
	}
	return n
}

func normalizePayload(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("{}")
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
	return wrapped
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func lastPathSegment(resource string) string {
	resource = strings.TrimRight(resource, "/")
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}
