package bridge

// Connector opens broker channels. Every call opens a fresh connection and
// channel; there is no pooling. The caller owns closing the returned channel.
type Connector interface {
	CreateChannel() (Channel, error)
}

// ConnectorFunc adapts a plain function to the Connector interface.
type ConnectorFunc func() (Channel, error)

func (f ConnectorFunc) CreateChannel() (Channel, error) { return f() }
