package frame

import "github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"

// Connect builds the CONNECT frame. host is the broker virtual host, not the
// dialed address.
func Connect(login, passcode, host string) Frame {
	return Frame{
		Kind: protocol.KindConnect,
		Headers: map[string]string{
			protocol.HeaderLogin:         login,
			protocol.HeaderPasscode:      passcode,
			protocol.HeaderAcceptVersion: protocol.Version,
			protocol.HeaderHost:          host,
		},
	}
}

func Subscribe(destination, id, receipt string) Frame {
	return Frame{
		Kind: protocol.KindSubscribe,
		Headers: map[string]string{
			protocol.HeaderDestination: destination,
			protocol.HeaderID:          id,
			protocol.HeaderReceipt:     receipt,
		},
	}
}

func Unsubscribe(id, receipt string) Frame {
	return Frame{
		Kind: protocol.KindUnsubscribe,
		Headers: map[string]string{
			protocol.HeaderID:      id,
			protocol.HeaderReceipt: receipt,
		},
	}
}

// Send builds a SEND frame. An empty receipt omits the header.
func Send(destination, receipt, body string) Frame {
	h := map[string]string{protocol.HeaderDestination: destination}
	if receipt != "" {
		h[protocol.HeaderReceipt] = receipt
	}
	return Frame{Kind: protocol.KindSend, Headers: h, Body: body}
}

// Disconnect builds a DISCONNECT frame. An empty receipt omits the header.
func Disconnect(receipt string) Frame {
	h := map[string]string{}
	if receipt != "" {
		h[protocol.HeaderReceipt] = receipt
	}
	return Frame{Kind: protocol.KindDisconnect, Headers: h}
}

// Destination returns the topic-style destination for a channel name.
func Destination(channel string) string {
	return "/" + channel
}

// Channel strips the leading slash from a destination header value.
func Channel(destination string) string {
	if len(destination) > 0 && destination[0] == '/' {
		return destination[1:]
	}
	return destination
}
