package homie

// MessageHandler receives inbound payloads.
type MessageHandler func(topic, payload string)

// ConnectionHandler receives connectivity changes.
type ConnectionHandler func(connected bool)

// Connection is the boundary to the publish/subscribe transport.
//
// Publish and Subscribe report success as a bool; a device treats a failed
// publish while disconnected as a no-op and replays its retained cache on the
// next connect. Handlers may be invoked from any goroutine.
type Connection interface {
	IsConnected() bool
	// Connect asks the transport to establish its connection. It must not
	// start a second connection monitor if one is already running.
	Connect() error
	Publish(topic, payload string, qos byte, retained bool) bool
	Subscribe(topic string) bool
	// OnMessage and OnConnectionChanged register listeners and return a
	// function that removes them.
	OnMessage(h MessageHandler) (remove func())
	OnConnectionChanged(h ConnectionHandler) (remove func())
}

// HostConnection is a Connection able to carry a last will.
type HostConnection interface {
	Connection
	SetWill(topic, payload string)
}
