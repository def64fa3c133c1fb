package mailgate

import "github.com/tinylib/msgp/msgp"

// ConnectionTrace is a point-in-time snapshot of a Connection's state,
// used by Server.Snapshot for debug/admin inspection. It is hand-rolled to
// satisfy msgp.Marshaler/msgp.Unmarshaler in the same shape the tinylib/msgp
// code generator would produce, since no generator runs here.
type ConnectionTrace struct {
	ID                   string
	RemoteAddress        string
	ClientHostname       string
	HostNameAppearsAs    string
	Secure               bool
	Ready                bool
	Authenticated        bool
	TransactionCount     int
	UnrecognizedCount    int
	UnauthenticatedCount int
}

var _ msgp.Marshaler = ConnectionTrace{}
var _ msgp.Unmarshaler = (*ConnectionTrace)(nil)

// MarshalMsg implements msgp.Marshaler.
func (z ConnectionTrace) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 10)
	o = msgp.AppendString(o, "ID")
	o = msgp.AppendString(o, z.ID)
	o = msgp.AppendString(o, "RemoteAddress")
	o = msgp.AppendString(o, z.RemoteAddress)
	o = msgp.AppendString(o, "ClientHostname")
	o = msgp.AppendString(o, z.ClientHostname)
	o = msgp.AppendString(o, "HostNameAppearsAs")
	o = msgp.AppendString(o, z.HostNameAppearsAs)
	o = msgp.AppendString(o, "Secure")
	o = msgp.AppendBool(o, z.Secure)
	o = msgp.AppendString(o, "Ready")
	o = msgp.AppendBool(o, z.Ready)
	o = msgp.AppendString(o, "Authenticated")
	o = msgp.AppendBool(o, z.Authenticated)
	o = msgp.AppendString(o, "TransactionCount")
	o = msgp.AppendInt(o, z.TransactionCount)
	o = msgp.AppendString(o, "UnrecognizedCount")
	o = msgp.AppendInt(o, z.UnrecognizedCount)
	o = msgp.AppendString(o, "UnauthenticatedCount")
	o = msgp.AppendInt(o, z.UnauthenticatedCount)
	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
func (z *ConnectionTrace) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < sz; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return nil, err
		}
		switch field {
		case "ID":
			z.ID, bts, err = msgp.ReadStringBytes(bts)
		case "RemoteAddress":
			z.RemoteAddress, bts, err = msgp.ReadStringBytes(bts)
		case "ClientHostname":
			z.ClientHostname, bts, err = msgp.ReadStringBytes(bts)
		case "HostNameAppearsAs":
			z.HostNameAppearsAs, bts, err = msgp.ReadStringBytes(bts)
		case "Secure":
			z.Secure, bts, err = msgp.ReadBoolBytes(bts)
		case "Ready":
			z.Ready, bts, err = msgp.ReadBoolBytes(bts)
		case "Authenticated":
			z.Authenticated, bts, err = msgp.ReadBoolBytes(bts)
		case "TransactionCount":
			z.TransactionCount, bts, err = msgp.ReadIntBytes(bts)
		case "UnrecognizedCount":
			z.UnrecognizedCount, bts, err = msgp.ReadIntBytes(bts)
		case "UnauthenticatedCount":
			z.UnauthenticatedCount, bts, err = msgp.ReadIntBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return nil, err
		}
	}
	return bts, nil
}
