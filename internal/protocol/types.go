package protocol

// Kind is the command line of a frame. The set is closed.
type Kind string

const (
	KindConnect     Kind = "CONNECT"
	KindSend        Kind = "SEND"
	KindSubscribe   Kind = "SUBSCRIBE"
	KindUnsubscribe Kind = "UNSUBSCRIBE"
	KindDisconnect  Kind = "DISCONNECT"
	KindConnected   Kind = "CONNECTED"
	KindMessage     Kind = "MESSAGE"
	KindReceipt     Kind = "RECEIPT"
	KindError       Kind = "ERROR"
)

var kinds = map[string]Kind{
	string(KindConnect):     KindConnect,
	string(KindSend):        KindSend,
	string(KindSubscribe):   KindSubscribe,
	string(KindUnsubscribe): KindUnsubscribe,
	string(KindDisconnect):  KindDisconnect,
	string(KindConnected):   KindConnected,
	string(KindMessage):     KindMessage,
	string(KindReceipt):     KindReceipt,
	string(KindError):       KindError,
}

// ParseKind maps an exact command token to its Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

func (k Kind) Valid() bool {
	_, ok := kinds[string(k)]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

// FromServer reports whether frames of this kind are only sent broker->client.
func (k Kind) FromServer() bool {
	switch k {
	case KindConnected, KindMessage, KindReceipt, KindError:
		return true
	default:
		return false
	}
}

// Header names.
const (
	HeaderLogin         = "login"
	HeaderPasscode      = "passcode"
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderVersion       = "version"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderMessage       = "message"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
)

const (
	// Version is the only protocol version the client negotiates.
	Version = "1.2"
	// DefaultHost is the virtual host the reference broker expects in CONNECT.
	DefaultHost = "stomp.cs.bgu.ac.il"
	// Terminator ends every frame on the wire.
	Terminator byte = 0x00
)
