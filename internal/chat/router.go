package chat

// Plan is the live delivery decided for one message. A chat message goes to
// the broadcast channel; a direct message goes to Targets, which may be
// empty when nobody by that name is connected.
type Plan struct {
	Broadcast bool
	Targets   []*Outbound
	Frame     []byte
}

// Recipients returns how many queues will receive the frame directly.
func (p Plan) Recipients() int {
	return len(p.Targets)
}

// Route decides how ev is delivered. It has no side effects. Direct messages
// fan out to every session sharing the target's display name and are never
// echoed to the sender.
func Route(ev MessageEvent, dir Directory) Plan {
	switch ev.Kind {
	case KindChat:
		return Plan{Broadcast: true, Frame: EncodeChat(ev)}
	case KindDirect:
		return Plan{Targets: dir.LookupHandlesByName(ev.Target), Frame: EncodeDirect(ev)}
	default:
		return Plan{}
	}
}
